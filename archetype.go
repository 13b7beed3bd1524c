package hako

import (
	"unsafe"

	"github.com/edwinsyarief/hako/internal/assert"
)

// MaxArchetypes is the number of distinct archetypes a World may create.
const MaxArchetypes = 2000

// ArchetypeState tracks the lifecycle of an ArchetypeStorage.
type ArchetypeState uint8

const (
	// ArchetypeEmpty storage has never reserved a page.
	ArchetypeEmpty ArchetypeState = iota
	// ArchetypeGrowing storage is in the middle of reserving pages.
	ArchetypeGrowing
	// ArchetypePopulated storage owns at least one page per column.
	ArchetypePopulated
)

func (s ArchetypeState) String() string {
	switch s {
	case ArchetypeEmpty:
		return "empty"
	case ArchetypeGrowing:
		return "growing"
	case ArchetypePopulated:
		return "populated"
	default:
		return "unknown"
	}
}

// column is one component's view into its shared pool: the pages this
// archetype acquired, in slot order.
type column struct {
	info  *ComponentInfo
	pages []unsafe.Pointer
}

func (c *column) at(slot, chunkSize int) unsafe.Pointer {
	return unsafe.Add(c.pages[slot/chunkSize], uintptr(slot%chunkSize)*c.info.Size)
}

// ArchetypeStorage holds every entity of one archetype in parallel columns:
// one for entity handles and one per component. All columns hold the same
// number of pages, so size and capacity are shared.
type ArchetypeStorage struct {
	entityPool  *ChunkPool
	acquire     func(*ChunkPool) unsafe.Pointer
	entityPages []unsafe.Pointer
	columns     []column
	colIndex    [MaxComponentTypes]int16 // column position per component, -1 if absent
	arch        Arch
	index       int
	size        int
	capacity    int
	chunkSize   int
	state       ArchetypeState
}

func newArchetypeStorage(reg *Registry, entityPool *ChunkPool, arch Arch, index int) *ArchetypeStorage {
	s := &ArchetypeStorage{
		entityPool: entityPool,
		acquire:    (*ChunkPool).AcquireChunk,
		arch:       arch,
		index:      index,
		chunkSize:  reg.ChunkSize(),
		columns:    make([]column, 0, arch.Count()),
	}
	for i := range s.colIndex {
		s.colIndex[i] = -1
	}
	arch.ForEach(func(id ComponentID) {
		s.colIndex[id] = int16(len(s.columns))
		s.columns = append(s.columns, column{info: reg.Info(id)})
	})
	return s
}

// Arch returns the component set stored here.
func (s *ArchetypeStorage) Arch() Arch { return s.arch }

// Index returns the position of the storage in its World.
func (s *ArchetypeStorage) Index() int { return s.index }

// Size returns the number of live slots.
func (s *ArchetypeStorage) Size() int { return s.size }

// Capacity returns the number of slots backed by pages.
func (s *ArchetypeStorage) Capacity() int { return s.capacity }

// State returns the lifecycle state.
func (s *ArchetypeStorage) State() ArchetypeState { return s.state }

// Entity returns the handle stored at slot.
func (s *ArchetypeStorage) Entity(slot int) Entity {
	assert.That(slot >= 0 && slot < s.size, "archetype %v: slot %d out of range [0,%d)", s.arch, slot, s.size)
	return *s.entityAt(slot)
}

// Component returns the address of component id at slot.
func (s *ArchetypeStorage) Component(slot int, id ComponentID) unsafe.Pointer {
	assert.That(slot >= 0 && slot < s.size, "archetype %v: slot %d out of range [0,%d)", s.arch, slot, s.size)
	c := s.colIndex[id]
	assert.That(c >= 0, "archetype %v: component %d not present", s.arch, id)
	return s.columns[c].at(slot, s.chunkSize)
}

func (s *ArchetypeStorage) entityAt(slot int) *Entity {
	return (*Entity)(unsafe.Add(s.entityPages[slot/s.chunkSize], uintptr(slot%s.chunkSize)*s.entityPool.ElemSize()))
}

// column returns the column of id or nil.
func (s *ArchetypeStorage) column(id ComponentID) *column {
	c := s.colIndex[id]
	if c < 0 {
		return nil
	}
	return &s.columns[c]
}

// columnSizes reports the number of slots each column can address, entity
// column first. Used to check lockstep growth.
func (s *ArchetypeStorage) columnSizes() []int {
	out := make([]int, 0, len(s.columns)+1)
	out = append(out, len(s.entityPages)*s.chunkSize)
	for i := range s.columns {
		out = append(out, len(s.columns[i].pages)*s.chunkSize)
	}
	return out
}

// makeEntity appends e, constructs its components and returns its slot.
func (s *ArchetypeStorage) makeEntity(e Entity) int {
	if s.size == s.capacity {
		s.grow()
	}
	slot := s.size
	*s.entityAt(slot) = e
	for i := range s.columns {
		c := &s.columns[i]
		c.info.Ops.Construct(c.at(slot, s.chunkSize))
	}
	s.size++
	return slot
}

// grow adds one page to every column. Pages are reserved for all columns
// first and only committed once every reservation succeeded; on panic the
// reserved pages go back to their pools and no column changes.
func (s *ArchetypeStorage) grow() {
	prev := s.state
	s.state = ArchetypeGrowing

	reserved := make([]unsafe.Pointer, 0, len(s.columns)+1)
	committed := false
	defer func() {
		if committed {
			return
		}
		for i, page := range reserved {
			if i == 0 {
				s.entityPool.Recycle(page)
				continue
			}
			s.columns[i-1].info.pool.Recycle(page)
		}
		s.state = prev
	}()

	reserved = append(reserved, s.acquire(s.entityPool))
	for i := range s.columns {
		reserved = append(reserved, s.acquire(s.columns[i].info.pool))
	}

	s.entityPages = append(s.entityPages, reserved[0])
	for i := range s.columns {
		s.columns[i].pages = append(s.columns[i].pages, reserved[i+1])
	}
	s.capacity += s.chunkSize
	s.state = ArchetypePopulated
	committed = true
}

// destroyEntity removes slot by swapping it with the last slot. It reports
// whether another entity was moved into slot, in which case the caller must
// patch that entity's record.
func (s *ArchetypeStorage) destroyEntity(slot int) bool {
	assert.That(slot >= 0 && slot < s.size, "archetype %v: destroy slot %d out of range [0,%d)", s.arch, slot, s.size)
	last := s.size - 1
	moved := slot != last
	if moved {
		a, b := s.entityAt(slot), s.entityAt(last)
		*a, *b = *b, *a
		for i := range s.columns {
			c := &s.columns[i]
			c.info.Ops.Swap(c.at(slot, s.chunkSize), c.at(last, s.chunkSize))
		}
	}
	for i := range s.columns {
		c := &s.columns[i]
		c.info.Ops.Destroy(c.at(last, s.chunkSize))
	}
	*s.entityAt(last) = InvalidEntity
	s.size--
	return moved
}

// clear destructs every live slot and keeps the pages.
func (s *ArchetypeStorage) clear() {
	for slot := 0; slot < s.size; slot++ {
		for i := range s.columns {
			c := &s.columns[i]
			c.info.Ops.Destroy(c.at(slot, s.chunkSize))
		}
		*s.entityAt(slot) = InvalidEntity
	}
	s.size = 0
}

// release clears the storage and hands its pages back to the pools.
func (s *ArchetypeStorage) release() {
	s.clear()
	for _, page := range s.entityPages {
		s.entityPool.Recycle(page)
	}
	s.entityPages = nil
	for i := range s.columns {
		c := &s.columns[i]
		for _, page := range c.pages {
			c.info.pool.Recycle(page)
		}
		c.pages = nil
	}
	s.capacity = 0
	s.state = ArchetypeEmpty
}

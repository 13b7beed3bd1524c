package hako

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/armon/go-metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edwinsyarief/hako/internal/assert"
)

var (
	metricEntityMade     = []string{"ecs", "entity", "made"}
	metricEntityDestroy  = []string{"ecs", "entity", "destroyed"}
	metricEntityMigrated = []string{"ecs", "entity", "migrated"}
	metricCommandFlushed = []string{"ecs", "command", "flushed"}
	metricArchetypes     = []string{"ecs", "archetypes"}
)

var typeOfEntity = reflect.TypeOf((*Entity)(nil)).Elem()

// World owns entity records and one ArchetypeStorage per archetype.
//
// Structural mutation (MakeEntity, RearchEntity, DestroyEntity, Clear,
// Sync and the component functions that migrate entities) must happen on a
// single goroutine and never while async or parallel queries are running.
// AllocateEntity and the CommandQueue are safe to use from query bodies.
type World struct {
	logger      zerolog.Logger
	registry    *Registry
	metrics     *metrics.Metrics
	events      *EventBus
	entityPool  *ChunkPool
	archIndex   map[Arch]int
	archetypes  []*ArchetypeStorage
	metas       []entityMeta
	hooks       []destroyHook
	inflight    []inflightQuery
	free        []Entity // guarded by mu
	queue       CommandQueue
	resources   Resources
	alive       int
	counter     uint32 // guarded by mu
	epoch       uint32 // bumped by Clear
	mu          sync.Mutex
	qmu         sync.Mutex
	id          uuid.UUID
	accessCheck AccessCheck
}

type destroyHook struct {
	fn     QueryFunc
	access Access
}

// Option configures a World.
type Option func(*World)

// WithLogger sets the world logger. The world adds its id as a field.
func WithLogger(logger zerolog.Logger) Option {
	return func(w *World) {
		w.logger = logger
	}
}

// WithMetrics sets the metrics sink. Defaults to the go-metrics global.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *World) {
		w.metrics = m
	}
}

// WithAccessCheck selects how conflicting concurrent queries are handled.
func WithAccessCheck(mode AccessCheck) Option {
	return func(w *World) {
		w.accessCheck = mode
	}
}

// WithEventBus makes the world publish its events on bus.
func WithEventBus(bus *EventBus) Option {
	return func(w *World) {
		w.events = bus
	}
}

// NewWorld creates an empty world using the component types of reg.
func NewWorld(reg *Registry, opts ...Option) *World {
	assert.That(reg != nil, "hako: nil registry")
	w := &World{
		id:          uuid.New(),
		logger:      zerolog.Nop(),
		registry:    reg,
		events:      &EventBus{},
		entityPool:  NewChunkPool(typeOfEntity, reg.ChunkSize(), reg.ExpandSize()),
		archIndex:   make(map[Arch]int, 16),
		archetypes:  make([]*ArchetypeStorage, 0, 16),
		accessCheck: AccessCheckPanic,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.metrics == nil {
		w.metrics = metrics.Default()
	}
	w.logger = w.logger.With().Str("world", w.id.String()).Logger()
	return w
}

// ID returns the unique id of the world.
func (w *World) ID() uuid.UUID { return w.id }

// Registry returns the component registry.
func (w *World) Registry() *Registry { return w.registry }

// Events returns the bus the world publishes on.
func (w *World) Events() *EventBus { return w.events }

// Queue returns the deferred mutation queue.
func (w *World) Queue() *CommandQueue { return &w.queue }

// Alive returns the number of live entities.
func (w *World) Alive() int { return w.alive }

// AllocateEntity reserves a handle without binding it to storage. Recycled
// indices keep their bumped generation. It is safe for concurrent use.
func (w *World) AllocateEntity() Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n := len(w.free); n > 0 {
		e := w.free[n-1]
		w.free = w.free[:n-1]
		return e
	}
	assert.That(w.counter != ^uint32(0), "hako: entity index space exhausted")
	e := Entity{ID: w.counter}
	w.counter++
	return e
}

// NewEntity allocates a handle and makes it alive in arch.
func (w *World) NewEntity(arch Arch) Entity {
	e := w.AllocateEntity()
	w.MakeEntity(e, arch)
	return e
}

// MakeEntity binds an allocated handle to a new slot of arch's storage and
// default-constructs its components.
func (w *World) MakeEntity(e Entity, arch Arch) {
	assert.That(e.IsValid(), "hako: make entity: invalid handle")
	w.mu.Lock()
	n := w.counter
	w.mu.Unlock()
	assert.That(e.ID < n, "hako: make entity: %v was never allocated", e)
	if int(n) > len(w.metas) {
		w.growMetas(int(n))
	}

	meta := &w.metas[e.ID]
	assert.That(meta.state != entityAlive, "hako: make entity: %v is already alive", e)
	assert.That(meta.version == e.Version, "hako: make entity: %v is stale, index is at generation %d", e, meta.version)

	st := w.storageFor(arch)
	slot := st.makeEntity(e)
	*meta = entityMeta{
		archetypeIndex: st.index,
		slot:           slot,
		version:        e.Version,
		state:          entityAlive,
	}
	w.alive++
	w.metrics.IncrCounter(metricEntityMade, 1)
}

// RearchEntity moves e to arch. Components present in both archetypes keep
// their values, added ones are default-constructed, removed ones are
// destroyed. On-destroy hooks matching the old archetype but not arch run
// first. The entity displaced by the swap-remove in the old storage is
// patched before returning.
func (w *World) RearchEntity(e Entity, arch Arch) {
	meta := w.liveMeta(e, "rearch entity")
	src := w.archetypes[meta.archetypeIndex]
	if src.arch == arch {
		return
	}
	w.runDestroyHooks(src, meta.slot, &arch)

	meta = w.liveMeta(e, "rearch entity")
	dst := w.storageFor(arch)
	oldSlot := meta.slot
	newSlot := dst.makeEntity(e)
	for i := range src.columns {
		c := &src.columns[i]
		if dc := dst.column(c.info.ID); dc != nil {
			c.info.Ops.Swap(dc.at(newSlot, dst.chunkSize), c.at(oldSlot, src.chunkSize))
		}
	}
	w.removeSlot(src, oldSlot)

	meta.archetypeIndex = dst.index
	meta.slot = newSlot
	w.metrics.IncrCounter(metricEntityMigrated, 1)
}

// DestroyEntity runs the matching on-destroy hooks, destroys e's components
// and recycles its index with the next generation. e must be alive.
func (w *World) DestroyEntity(e Entity) {
	meta := w.liveMeta(e, "destroy entity")
	st := w.archetypes[meta.archetypeIndex]
	w.runDestroyHooks(st, meta.slot, nil)

	meta = w.liveMeta(e, "destroy entity")
	w.removeSlot(st, meta.slot)
	meta.state = entityDead
	meta.version = (meta.version + 1) % MaxGenerations
	meta.unbind()

	w.mu.Lock()
	w.free = append(w.free, Entity{ID: e.ID, Version: meta.version})
	w.mu.Unlock()

	w.alive--
	w.metrics.IncrCounter(metricEntityDestroy, 1)
	Publish(w.events, EntityDestroyed{Entity: e, Arch: st.arch})
}

// IsAlive reports whether e refers to a live entity.
func (w *World) IsAlive(e Entity) bool {
	if int(e.ID) >= len(w.metas) {
		return false
	}
	m := &w.metas[e.ID]
	return m.state == entityAlive && m.version == e.Version
}

// ArchOf returns the archetype of a live entity.
func (w *World) ArchOf(e Entity) Arch {
	meta := w.liveMeta(e, "arch of")
	return w.archetypes[meta.archetypeIndex].arch
}

// RegisterArch creates the storage for arch ahead of time.
func (w *World) RegisterArch(arch Arch) {
	w.storageFor(arch)
}

// Storage returns the storage of arch if it exists.
func (w *World) Storage(arch Arch) (*ArchetypeStorage, bool) {
	idx, ok := w.archIndex[arch]
	if !ok {
		return nil, false
	}
	return w.archetypes[idx], true
}

// Archetypes returns the number of storages created so far.
func (w *World) Archetypes() int { return len(w.archetypes) }

// OnDestroy registers fn to run for every entity matching access right
// before DestroyEntity removes it. The hook must not mutate the world
// directly; use the queue.
func (w *World) OnDestroy(access Access, fn QueryFunc) {
	w.hooks = append(w.hooks, destroyHook{access: access, fn: fn})
}

// Clear destroys every live entity and drops all storages. Pending
// commands are discarded. Index generations are kept, so handles from
// before the clear stay dead.
func (w *World) Clear() {
	w.assertIdle("clear")
	w.queue.Clear()

	destroyed := 0
	for idx := range w.metas {
		m := &w.metas[idx]
		if m.state != entityAlive {
			continue
		}
		w.DestroyEntity(Entity{ID: uint32(idx), Version: m.version})
		destroyed++
	}
	for _, st := range w.archetypes {
		assert.That(st.size == 0, "hako: clear: archetype %v still holds %d entities", st.arch, st.size)
		st.release()
	}
	clear(w.archetypes)
	w.archetypes = w.archetypes[:0]
	clear(w.archIndex)
	w.epoch++
	w.metrics.SetGauge(metricArchetypes, 0)

	w.logger.Debug().Int("destroyed", destroyed).Msg("world cleared")
	Publish(w.events, WorldCleared{Destroyed: destroyed})
}

// Sync runs the commands queued so far and returns how many ran. Commands
// queued while flushing run on the next Sync.
func (w *World) Sync() int {
	w.assertIdle("sync")
	n := w.queue.flush(w)
	if n > 0 {
		w.metrics.IncrCounter(metricCommandFlushed, float32(n))
	}
	return n
}

// liveMeta returns the record of e, asserting that e is alive.
func (w *World) liveMeta(e Entity, op string) *entityMeta {
	assert.That(w.IsAlive(e), "hako: %s: %v is not alive", op, e)
	return &w.metas[e.ID]
}

func (w *World) growMetas(n int) {
	for len(w.metas) < n {
		w.metas = append(w.metas, entityMeta{archetypeIndex: -1, slot: -1})
	}
}

// removeSlot swap-removes slot from st and repoints the entity that took
// its place.
func (w *World) removeSlot(st *ArchetypeStorage, slot int) {
	if st.destroyEntity(slot) {
		moved := *st.entityAt(slot)
		m := &w.metas[moved.ID]
		assert.That(m.archetypeIndex == st.index, "hako: displaced %v belongs to archetype %d, not %d", moved, m.archetypeIndex, st.index)
		m.slot = slot
	}
}

// runDestroyHooks runs the hooks matching st for the entity at slot. When
// next is set the entity is migrating and hooks that still match next are
// skipped.
func (w *World) runDestroyHooks(st *ArchetypeStorage, slot int, next *Arch) {
	for i := range w.hooks {
		h := &w.hooks[i]
		if !h.access.Match(st.arch) || (next != nil && h.access.Match(*next)) {
			continue
		}
		q := QueryContext{world: w, storage: st, access: &h.access, slot: slot}
		h.fn(&q)
	}
}

// storageFor returns the storage of arch, creating it on first use.
func (w *World) storageFor(arch Arch) *ArchetypeStorage {
	if idx, ok := w.archIndex[arch]; ok {
		return w.archetypes[idx]
	}
	if len(w.archetypes) >= MaxArchetypes {
		panic(fmt.Sprintf("hako: cannot create archetype %v: maximum number of archetypes (%d) reached", arch, MaxArchetypes))
	}
	st := newArchetypeStorage(w.registry, w.entityPool, arch, len(w.archetypes))
	w.archetypes = append(w.archetypes, st)
	w.archIndex[arch] = st.index
	w.metrics.SetGauge(metricArchetypes, float32(len(w.archetypes)))

	w.logger.Debug().
		Int("archetype", st.index).
		Stringer("arch", arch).
		Msg("archetype created")
	Publish(w.events, ArchetypeCreated{Index: st.index, Arch: arch})
	return st
}

package hako

import "fmt"

// MaxGenerations bounds the generation counter of an entity index. The
// counter wraps to zero after MaxGenerations reuses of the same index.
const MaxGenerations = 1 << 24

// Entity is a generation-counted handle. ID indexes the World's entity
// table and Version is the generation the handle was minted with, so a
// handle to a destroyed entity never resolves to a newer occupant of the
// same index.
type Entity struct {
	// ID is the recyclable index of the entity.
	ID uint32
	// Version is the generation of ID at the time the handle was created.
	Version uint32
}

// InvalidEntity is the sentinel handle with every bit set.
var InvalidEntity = Entity{ID: ^uint32(0), Version: ^uint32(0)}

// Bits packs the handle into 64 bits, index low and generation high.
func (e Entity) Bits() uint64 {
	return uint64(e.Version)<<32 | uint64(e.ID)
}

// EntityFromBits is the inverse of Bits.
func EntityFromBits(b uint64) Entity {
	return Entity{ID: uint32(b), Version: uint32(b >> 32)}
}

// IsValid reports whether e is not the InvalidEntity sentinel. It says
// nothing about liveness; use World.IsAlive for that.
func (e Entity) IsValid() bool {
	return e != InvalidEntity
}

func (e Entity) String() string {
	if e == InvalidEntity {
		return "Entity(invalid)"
	}
	return fmt.Sprintf("Entity(%d:%d)", e.ID, e.Version)
}

type entityState uint8

const (
	entityDead entityState = iota
	entityAlive
)

// entityMeta is the World's record for one entity index.
type entityMeta struct {
	archetypeIndex int    // index in World.archetypes, -1 when not bound
	slot           int    // row inside the archetype storage
	version        uint32 // current generation of this index
	state          entityState
}

func (m *entityMeta) unbind() {
	m.archetypeIndex = -1
	m.slot = -1
}

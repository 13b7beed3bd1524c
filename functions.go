package hako

import (
	"unsafe"

	"github.com/edwinsyarief/hako/internal/assert"
)

// componentPtr resolves the address of component id for a live entity, or
// nil when its archetype lacks id.
func (w *World) componentPtr(e Entity, id ComponentID) unsafe.Pointer {
	meta := &w.metas[e.ID]
	st := w.archetypes[meta.archetypeIndex]
	c := st.column(id)
	if c == nil {
		return nil
	}
	return c.at(meta.slot, st.chunkSize)
}

// GetOrCreateComponent returns a pointer to component T of e, first
// migrating e to the archetype that adds T when it is missing.
//
// The pointer stays valid only until the next structural change touching
// e's archetype. Use RefOf to keep a handle that survives migrations.
//
// Parameters:
//   - w: The World containing the entity.
//   - e: A live entity.
//
// Returns:
//   - A pointer to the component stored for e.
func GetOrCreateComponent[T any](w *World, e Entity) *T {
	id := ComponentOf[T](w.registry)
	arch := w.ArchOf(e)
	if !arch.Has(id) {
		w.RearchEntity(e, arch.With(id))
	}
	return (*T)(w.componentPtr(e, id))
}

// GetComponent returns a pointer to component T of e. It asserts that e is
// alive and holds T.
//
// Parameters:
//   - w: The World containing the entity.
//   - e: A live entity holding T.
//
// Returns:
//   - A pointer to the component stored for e.
func GetComponent[T any](w *World, e Entity) *T {
	id := ComponentOf[T](w.registry)
	assert.That(w.ArchOf(e).Has(id), "hako: %v has no component %d", e, id)
	return (*T)(w.componentPtr(e, id))
}

// TryGetComponent returns component T of e, or nil when e is dead or lacks
// T.
func TryGetComponent[T any](w *World, e Entity) *T {
	id, ok := TryComponentOf[T](w.registry)
	if !ok || !w.IsAlive(e) {
		return nil
	}
	return (*T)(w.componentPtr(e, id))
}

// HasComponent reports whether the live entity e holds T.
func HasComponent[T any](w *World, e Entity) bool {
	id, ok := TryComponentOf[T](w.registry)
	return ok && w.ArchOf(e).Has(id)
}

// SetComponent stores v as component T of e, adding T when missing.
//
// Parameters:
//   - w: The World containing the entity.
//   - e: A live entity.
//   - v: The value to store.
func SetComponent[T any](w *World, e Entity, v T) {
	*GetOrCreateComponent[T](w, e) = v
}

// RemoveComponent migrates e to the archetype without T. It does nothing
// when e lacks T.
func RemoveComponent[T any](w *World, e Entity) {
	id := ComponentOf[T](w.registry)
	arch := w.ArchOf(e)
	if arch.Has(id) {
		w.RearchEntity(e, arch.Without(id))
	}
}

// ComponentRef is a re-resolvable reference to component T of an entity.
// It stores the handle, not an address, so it survives storage growth and
// migrations and reports nil once the entity is gone.
type ComponentRef[T any] struct {
	world  *World
	entity Entity
	id     ComponentID
}

// RefOf returns a ComponentRef to T of e. e does not need to hold T yet.
func RefOf[T any](w *World, e Entity) ComponentRef[T] {
	return ComponentRef[T]{world: w, entity: e, id: ComponentOf[T](w.registry)}
}

// Entity returns the referenced entity.
func (r ComponentRef[T]) Entity() Entity { return r.entity }

// Get resolves the reference. It returns nil when the entity died or no
// longer holds T.
func (r ComponentRef[T]) Get() *T {
	if r.world == nil || !r.world.IsAlive(r.entity) {
		return nil
	}
	return (*T)(r.world.componentPtr(r.entity, r.id))
}

// Valid reports whether Get would return a non-nil pointer.
func (r ComponentRef[T]) Valid() bool {
	return r.Get() != nil
}

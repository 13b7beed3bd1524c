package hako

import "unsafe"

// Builder creates entities of one archetype in bulk. The archetype's
// storage is created up front so spawning never hits the archetype map.
type Builder struct {
	world *World
	arch  Arch
}

// NewBuilder returns a Builder for arch and registers its storage.
func NewBuilder(w *World, arch Arch) *Builder {
	w.RegisterArch(arch)
	return &Builder{world: w, arch: arch}
}

// BuilderOf returns a Builder for the archetype holding only T.
func BuilderOf[T any](w *World) *Builder {
	return NewBuilder(w, MakeArch(ComponentOf[T](w.registry)))
}

// Arch returns the archetype entities are created in.
func (b *Builder) Arch() Arch { return b.arch }

// With returns a Builder whose archetype also holds ids.
func (b *Builder) With(ids ...ComponentID) *Builder {
	return NewBuilder(b.world, b.arch.Or(MakeArch(ids...)))
}

// NewEntity creates one entity.
func (b *Builder) NewEntity() Entity {
	return b.world.NewEntity(b.arch)
}

// NewEntities creates count entities and returns their handles.
func (b *Builder) NewEntities(count int) []Entity {
	if count <= 0 {
		return nil
	}
	w := b.world
	st := w.storageFor(b.arch)
	ents := make([]Entity, count)
	for i := range ents {
		e := w.AllocateEntity()
		w.MakeEntity(e, st.arch)
		ents[i] = e
	}
	return ents
}

// NewEntitiesWith creates count entities and copies v into component T of
// each one through the component's Copy operation. T must belong to the
// builder's archetype.
func NewEntitiesWith[T any](b *Builder, count int, v T) []Entity {
	info := InfoOf[T](b.world.registry)
	if !b.arch.Has(info.ID) {
		panic("hako: builder archetype does not hold the component")
	}
	ents := b.NewEntities(count)
	for _, e := range ents {
		info.Ops.Copy(b.world.componentPtr(e, info.ID), unsafe.Pointer(&v))
	}
	return ents
}

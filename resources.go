package hako

import (
	"reflect"
	"sync"
)

// Resources holds at most one value per type: world-wide singletons such as
// clocks, input state or asset tables that do not belong to any entity.
// It is safe for concurrent use, so query bodies may read resources.
type Resources struct {
	items map[reflect.Type]any
	mu    sync.RWMutex
}

// Resources returns the world's resource store. Clear leaves it untouched.
func (w *World) Resources() *Resources { return &w.resources }

// AddResource stores v as the resource of type T. It panics when a T is
// already present.
func AddResource[T any](r *Resources, v *T) {
	if v == nil {
		panic("hako: cannot add nil resource")
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items == nil {
		r.items = make(map[reflect.Type]any)
	}
	if _, ok := r.items[t]; ok {
		panic("hako: resource " + t.String() + " already exists")
	}
	r.items[t] = v
}

// GetResource returns the resource of type T, or nil.
func GetResource[T any](r *Resources) *T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[reflect.TypeOf((*T)(nil)).Elem()]
	if !ok {
		return nil
	}
	return v.(*T)
}

// HasResource reports whether a resource of type T is stored.
func HasResource[T any](r *Resources) bool {
	return GetResource[T](r) != nil
}

// RemoveResource deletes the resource of type T, if any.
func RemoveResource[T any](r *Resources) {
	r.mu.Lock()
	delete(r.items, reflect.TypeOf((*T)(nil)).Elem())
	r.mu.Unlock()
}

// Len returns the number of stored resources.
func (r *Resources) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Clear removes every resource.
func (r *Resources) Clear() {
	r.mu.Lock()
	clear(r.items)
	r.mu.Unlock()
}

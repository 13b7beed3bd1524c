package hako

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/edwinsyarief/hako/config"
	"github.com/edwinsyarief/hako/internal/assert"
)

// ComponentID is a dense index assigned to a component type at registration.
type ComponentID uint8

const (
	// MaxComponentTypes is the number of distinct component types a Registry
	// can hold. It matches the width of Arch.
	MaxComponentTypes = 256
	// DefaultChunkSize is the number of elements per page when the config
	// source does not set ecs.chunk_size.
	DefaultChunkSize = 16
	// DefaultExpandSize is the number of pages reserved per pool growth when
	// the config source does not set ecs.expand_size.
	DefaultExpandSize = 2
)

// Initializer is implemented by components that need setup after being
// default-constructed in storage.
type Initializer interface {
	Init()
}

// Releaser is implemented by components that own resources which must be
// released before the slot is reused.
type Releaser interface {
	Release()
}

// ComponentOps is the type-erased capability set storage uses to manage a
// component in place. It is built once per concrete type by OpsFor so the
// call sites stay type-safe while columns remain untyped memory.
type ComponentOps struct {
	Construct func(p unsafe.Pointer)
	Destroy   func(p unsafe.Pointer)
	Swap      func(a, b unsafe.Pointer)
	Copy      func(dst, src unsafe.Pointer)
}

// OpsFor builds the default ComponentOps for T. Construct writes the zero
// value and then calls Init when *T implements Initializer. Destroy calls
// Release when *T implements Releaser and then zeroes the slot so the GC
// drops anything the component referenced.
func OpsFor[T any]() ComponentOps {
	var probe T
	_, hasInit := any(&probe).(Initializer)
	_, hasRelease := any(&probe).(Releaser)

	ops := ComponentOps{
		Construct: func(p unsafe.Pointer) {
			var zero T
			*(*T)(p) = zero
		},
		Destroy: func(p unsafe.Pointer) {
			var zero T
			*(*T)(p) = zero
		},
		Swap: func(a, b unsafe.Pointer) {
			pa, pb := (*T)(a), (*T)(b)
			*pa, *pb = *pb, *pa
		},
		Copy: func(dst, src unsafe.Pointer) {
			*(*T)(dst) = *(*T)(src)
		},
	}
	if hasInit {
		ops.Construct = func(p unsafe.Pointer) {
			var zero T
			c := (*T)(p)
			*c = zero
			any(c).(Initializer).Init()
		}
	}
	if hasRelease {
		ops.Destroy = func(p unsafe.Pointer) {
			var zero T
			c := (*T)(p)
			any(c).(Releaser).Release()
			*c = zero
		}
	}
	return ops
}

// ComponentInfo describes a registered component type.
type ComponentInfo struct {
	Type reflect.Type
	pool *ChunkPool
	Ops  ComponentOps
	Name string
	Size uintptr
	ID   ComponentID
}

// Pool returns the ChunkPool shared by every archetype column of this type.
func (c *ComponentInfo) Pool() *ChunkPool {
	return c.pool
}

// Registry is the catalog of component types used by one or more worlds.
// It is an explicit object owned by the caller, so independent worlds (for
// example in tests) never share hidden global state.
//
// Registration is guarded by a mutex. Lookups by type go through a sync.Map
// and an array of atomic pointers, so query bodies running on workers can
// resolve component IDs without taking a lock.
//
// The per-type ChunkPools are mutated when storage grows. Worlds sharing a
// Registry must perform structural mutation from the same goroutine.
type Registry struct {
	logger     zerolog.Logger
	byType     sync.Map // reflect.Type -> ComponentID
	byName     map[string]ComponentID
	infos      [MaxComponentTypes]atomic.Pointer[ComponentInfo]
	count      atomic.Uint32
	chunkSize  int
	expandSize int
	mu         sync.Mutex
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used for registration events.
func WithRegistryLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty Registry. The chunk and expand sizes are
// read once from src (keys ecs.chunk_size and ecs.expand_size). A nil src
// yields the defaults.
func NewRegistry(src config.Source, opts ...RegistryOption) *Registry {
	if src == nil {
		src = config.Values{}
	}
	r := &Registry{
		logger:     zerolog.Nop(),
		byName:     make(map[string]ComponentID, 16),
		chunkSize:  src.GetInt(config.KeyChunkSize, DefaultChunkSize),
		expandSize: src.GetInt(config.KeyExpandSize, DefaultExpandSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.chunkSize < 1 {
		panic(fmt.Sprintf("hako: %s must be positive, got %d", config.KeyChunkSize, r.chunkSize))
	}
	if r.expandSize < 1 {
		r.expandSize = 1
	}
	return r
}

// RegisterComponent registers T with its default ComponentOps and returns
// its ID. If T is already registered the existing ID is returned. It panics
// when MaxComponentTypes types are already registered.
func RegisterComponent[T any](r *Registry) ComponentID {
	return r.register(reflect.TypeOf((*T)(nil)).Elem(), OpsFor[T]())
}

// RegisterComponentWith registers T with custom operations. Nil fields fall
// back to the defaults produced by OpsFor.
func RegisterComponentWith[T any](r *Registry, ops ComponentOps) ComponentID {
	def := OpsFor[T]()
	if ops.Construct == nil {
		ops.Construct = def.Construct
	}
	if ops.Destroy == nil {
		ops.Destroy = def.Destroy
	}
	if ops.Swap == nil {
		ops.Swap = def.Swap
	}
	if ops.Copy == nil {
		ops.Copy = def.Copy
	}
	return r.register(reflect.TypeOf((*T)(nil)).Elem(), ops)
}

// ComponentOf returns the ID of T. T must have been registered.
func ComponentOf[T any](r *Registry) ComponentID {
	id, ok := TryComponentOf[T](r)
	assert.That(ok, "hako: component type %s not registered", reflect.TypeOf((*T)(nil)).Elem())
	return id
}

// TryComponentOf returns the ID of T and whether T is registered.
func TryComponentOf[T any](r *Registry) (ComponentID, bool) {
	v, ok := r.byType.Load(reflect.TypeOf((*T)(nil)).Elem())
	if !ok {
		return 0, false
	}
	return v.(ComponentID), true
}

// InfoOf returns the ComponentInfo of T. T must have been registered.
func InfoOf[T any](r *Registry) *ComponentInfo {
	return r.Info(ComponentOf[T](r))
}

// Info returns the ComponentInfo registered under id.
func (r *Registry) Info(id ComponentID) *ComponentInfo {
	info := r.infos[id].Load()
	assert.That(info != nil, "hako: component id %d not registered", id)
	return info
}

// InfoByName returns the ComponentInfo of the type whose reflect name
// (package-qualified, e.g. "game.Position") is name.
func (r *Registry) InfoByName(name string) *ComponentInfo {
	r.mu.Lock()
	id, ok := r.byName[name]
	r.mu.Unlock()
	assert.That(ok, "hako: component %q not registered", name)
	return r.Info(id)
}

// Count returns the number of registered component types.
func (r *Registry) Count() int {
	return int(r.count.Load())
}

// ChunkSize returns the number of elements per storage page.
func (r *Registry) ChunkSize() int {
	return r.chunkSize
}

// ExpandSize returns the number of pages a pool reserves per growth.
func (r *Registry) ExpandSize() int {
	return r.expandSize
}

// register assigns the next free ID to t.
func (r *Registry) register(t reflect.Type, ops ComponentOps) ComponentID {
	if v, ok := r.byType.Load(t); ok {
		return v.(ComponentID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.byType.Load(t); ok {
		return v.(ComponentID)
	}
	n := r.count.Load()
	if n >= MaxComponentTypes {
		panic(fmt.Sprintf("hako: cannot register component %s: maximum number of component types (%d) reached", t, MaxComponentTypes))
	}

	id := ComponentID(n)
	info := &ComponentInfo{
		ID:   id,
		Name: t.String(),
		Type: t,
		Size: t.Size(),
		Ops:  ops,
		pool: NewChunkPool(t, r.chunkSize, r.expandSize),
	}
	r.infos[id].Store(info)
	r.byName[info.Name] = id
	r.byType.Store(t, id)
	r.count.Store(n + 1)

	r.logger.Debug().
		Str("component", info.Name).
		Uint8("component_id", uint8(id)).
		Uint64("size", uint64(info.Size)).
		Msg("component registered")
	return id
}

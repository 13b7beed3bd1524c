package hako

import "reflect"

// MaxEventTypes is the number of distinct event types one EventBus can
// route.
const MaxEventTypes = 64

// ArchetypeCreated is published when a World creates a new storage.
type ArchetypeCreated struct {
	Arch  Arch
	Index int
}

// EntityDestroyed is published after an entity left its storage.
type EntityDestroyed struct {
	Arch   Arch
	Entity Entity
}

// WorldCleared is published at the end of World.Clear.
type WorldCleared struct {
	Destroyed int
}

// EventBus routes typed events to subscribers synchronously, in
// subscription order. It is not safe for concurrent use; a World publishes
// only from the goroutine performing structural mutation.
type EventBus struct {
	typeIDs  map[reflect.Type]uint8
	handlers [MaxEventTypes][]subscriber
	nextSub  uint64
	nextType uint8
}

type subscriber struct {
	fn any
	id uint64
}

// Subscribe registers handler for events of type T and returns a function
// that removes it.
func Subscribe[T any](bus *EventBus, handler func(T)) (unsubscribe func()) {
	tid := bus.typeID(reflect.TypeOf((*T)(nil)).Elem())
	bus.nextSub++
	sid := bus.nextSub
	bus.handlers[tid] = append(bus.handlers[tid], subscriber{id: sid, fn: handler})
	return func() {
		subs := bus.handlers[tid]
		for i := range subs {
			if subs[i].id == sid {
				bus.handlers[tid] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers event to every handler subscribed to T. It is a no-op
// on a nil bus.
func Publish[T any](bus *EventBus, event T) {
	if bus == nil || bus.typeIDs == nil {
		return
	}
	tid, ok := bus.typeIDs[reflect.TypeOf((*T)(nil)).Elem()]
	if !ok {
		return
	}
	for _, s := range bus.handlers[tid] {
		s.fn.(func(T))(event)
	}
}

func (bus *EventBus) typeID(t reflect.Type) uint8 {
	if bus.typeIDs == nil {
		bus.typeIDs = make(map[reflect.Type]uint8)
	}
	if id, ok := bus.typeIDs[t]; ok {
		return id
	}
	if int(bus.nextType) >= MaxEventTypes {
		panic("hako: too many event types")
	}
	id := bus.nextType
	bus.nextType++
	bus.typeIDs[t] = id
	return id
}

package hako

import "sync"

// Command is a deferred structural change applied by World.Sync.
type Command func(w *World)

// CommandQueue buffers structural changes requested while queries run. It
// is safe for concurrent use. Commands run in push order on the goroutine
// calling World.Sync.
type CommandQueue struct {
	cmds  []Command
	spare []Command
	mu    sync.Mutex
}

// Push appends cmd to the queue.
func (q *CommandQueue) Push(cmd Command) {
	q.mu.Lock()
	q.cmds = append(q.cmds, cmd)
	q.mu.Unlock()
}

// MakeEntity queues w.MakeEntity(e, arch). e usually comes from
// World.AllocateEntity.
func (q *CommandQueue) MakeEntity(e Entity, arch Arch) {
	q.Push(func(w *World) {
		w.MakeEntity(e, arch)
	})
}

// RearchEntity queues a migration of e. It is skipped if e died before the
// flush.
func (q *CommandQueue) RearchEntity(e Entity, arch Arch) {
	q.Push(func(w *World) {
		if !w.IsAlive(e) {
			w.logger.Debug().Stringer("entity", e).Msg("queued rearch skipped, entity not alive")
			return
		}
		w.RearchEntity(e, arch)
	})
}

// DestroyEntity queues the destruction of e. Destroying the same entity
// twice in one batch is not an error; the second request is skipped.
func (q *CommandQueue) DestroyEntity(e Entity) {
	q.Push(func(w *World) {
		if !w.IsAlive(e) {
			w.logger.Debug().Stringer("entity", e).Msg("queued destroy skipped, entity not alive")
			return
		}
		w.DestroyEntity(e)
	})
}

// Len returns the number of pending commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.cmds)
}

// Clear drops every pending command.
func (q *CommandQueue) Clear() {
	q.mu.Lock()
	clear(q.cmds)
	q.cmds = q.cmds[:0]
	q.mu.Unlock()
}

// flush runs a snapshot of the pending commands. Commands pushed by the
// running commands land in the next snapshot.
func (q *CommandQueue) flush(w *World) int {
	q.mu.Lock()
	batch := q.cmds
	q.cmds = q.spare[:0]
	q.mu.Unlock()

	for _, cmd := range batch {
		cmd(w)
	}
	n := len(batch)
	clear(batch)

	q.mu.Lock()
	q.spare = batch[:0]
	q.mu.Unlock()
	return n
}

// QueueSetComponent queues SetComponent(w, e, v). It is skipped if e died
// before the flush.
func QueueSetComponent[T any](q *CommandQueue, e Entity, v T) {
	q.Push(func(w *World) {
		if w.IsAlive(e) {
			SetComponent(w, e, v)
		}
	})
}

// QueueRemoveComponent queues RemoveComponent[T](w, e). It is skipped if e
// died before the flush.
func QueueRemoveComponent[T any](q *CommandQueue, e Entity) {
	q.Push(func(w *World) {
		if w.IsAlive(e) {
			RemoveComponent[T](w, e)
		}
	})
}

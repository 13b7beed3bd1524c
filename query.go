package hako

import (
	"context"
	"fmt"

	"github.com/edwinsyarief/hako/internal/assert"
	"github.com/edwinsyarief/hako/task"
)

// QueryFunc is called once per matching live slot. The QueryContext is only
// valid for the duration of the call.
type QueryFunc func(q *QueryContext)

// Access declares which components a query touches. Read and Write are
// required components (Write implies read); Optional components may be read
// when present; Exclude rejects archetypes holding any of its components.
type Access struct {
	Name     string
	Read     Arch
	Write    Arch
	Optional Arch
	Exclude  Arch
}

// NewAccess returns an empty Access named name.
func NewAccess(name string) Access {
	return Access{Name: name}
}

// Reading adds required read-only components.
func (a Access) Reading(ids ...ComponentID) Access {
	a.Read = a.Read.Or(MakeArch(ids...))
	return a
}

// Writing adds required read-write components.
func (a Access) Writing(ids ...ComponentID) Access {
	a.Write = a.Write.Or(MakeArch(ids...))
	return a
}

// Optionally adds components that are read when present.
func (a Access) Optionally(ids ...ComponentID) Access {
	a.Optional = a.Optional.Or(MakeArch(ids...))
	return a
}

// Excluding adds components whose presence rejects an archetype.
func (a Access) Excluding(ids ...ComponentID) Access {
	a.Exclude = a.Exclude.Or(MakeArch(ids...))
	return a
}

// Required returns the components an archetype must hold to match.
func (a Access) Required() Arch {
	return a.Read.Or(a.Write)
}

// Readable returns every component the query may read.
func (a Access) Readable() Arch {
	return a.Read.Or(a.Write).Or(a.Optional)
}

// Match reports whether arch holds every required component and none of
// the excluded ones.
func (a Access) Match(arch Arch) bool {
	return arch.Contains(a.Required()) && !arch.Intersects(a.Exclude)
}

// Conflicts reports whether running a and b at the same time could race:
// one of them writes a component the other reads or writes.
func (a Access) Conflicts(b Access) bool {
	return a.Write.Intersects(b.Readable()) || b.Write.Intersects(a.Readable())
}

func (a Access) String() string {
	return fmt.Sprintf("%s{read=%v write=%v optional=%v exclude=%v}", a.Name, a.Read, a.Write, a.Optional, a.Exclude)
}

// AccessCheck selects what happens when an async or parallel query is
// submitted while a conflicting query it does not depend on is in flight.
type AccessCheck uint8

const (
	// AccessCheckPanic panics on conflicts.
	AccessCheckPanic AccessCheck = iota
	// AccessCheckLog logs a warning and submits anyway.
	AccessCheckLog
	// AccessCheckOff skips conflict detection.
	AccessCheckOff
)

// QueryContext gives a query body access to one slot of one archetype.
type QueryContext struct {
	world   *World
	storage *ArchetypeStorage
	access  *Access
	slot    int
}

// Entity returns the handle of the current slot.
func (q *QueryContext) Entity() Entity { return *q.storage.entityAt(q.slot) }

// Slot returns the current slot inside the archetype storage.
func (q *QueryContext) Slot() int { return q.slot }

// Arch returns the archetype being iterated.
func (q *QueryContext) Arch() Arch { return q.storage.arch }

// Access returns the declared access of the running query.
func (q *QueryContext) Access() Access { return *q.access }

// World returns the world being queried.
func (q *QueryContext) World() *World { return q.world }

// Queue returns the world's command queue, the only way a query body may
// request structural changes.
func (q *QueryContext) Queue() *CommandQueue { return &q.world.queue }

// Read returns a copy of component T of the current entity. T must be
// declared in Read or Write.
func Read[T any](q *QueryContext) T {
	id := ComponentOf[T](q.world.registry)
	assert.That(q.access.Required().Has(id), "query %q: component %d read outside declared access", q.access.Name, id)
	return *(*T)(q.storage.columns[q.storage.colIndex[id]].at(q.slot, q.storage.chunkSize))
}

// Write returns a pointer to component T of the current entity. T must be
// declared in Write.
func Write[T any](q *QueryContext) *T {
	id := ComponentOf[T](q.world.registry)
	assert.That(q.access.Write.Has(id), "query %q: component %d written outside declared access", q.access.Name, id)
	return (*T)(q.storage.columns[q.storage.colIndex[id]].at(q.slot, q.storage.chunkSize))
}

// TryRead returns component T when the current archetype holds it. T must
// be declared in Read, Write or Optional.
func TryRead[T any](q *QueryContext) (T, bool) {
	var zero T
	id, ok := TryComponentOf[T](q.world.registry)
	if !ok {
		return zero, false
	}
	assert.That(q.access.Readable().Has(id), "query %q: component %d read outside declared access", q.access.Name, id)
	c := q.storage.column(id)
	if c == nil {
		return zero, false
	}
	return *(*T)(c.at(q.slot, q.storage.chunkSize)), true
}

// Has reports whether the current archetype holds T.
func Has[T any](q *QueryContext) bool {
	id, ok := TryComponentOf[T](q.world.registry)
	return ok && q.storage.arch.Has(id)
}

// Execute runs fn on the calling goroutine for every live slot of every
// archetype matching access.
func (w *World) Execute(access Access, fn QueryFunc) {
	w.checkAccess(access, nil)
	w.execute(&access, fn)
}

// ExecuteAsync submits a job to s that runs the query once dependsOn has
// resolved. dependsOn may be nil.
func (w *World) ExecuteAsync(s task.Scheduler, dependsOn task.Token, access Access, fn QueryFunc) task.Token {
	w.checkAccess(access, dependsOn)
	tok := s.Submit(queryName(access), func(context.Context) error {
		w.execute(&access, fn)
		return nil
	}, dependsOn)
	w.track(access, tok)
	return tok
}

// ExecuteParallel splits every matching archetype into s.Workers()
// contiguous batches and runs each batch as its own job.
func (w *World) ExecuteParallel(s task.Scheduler, dependsOn task.Token, access Access, fn QueryFunc) task.Token {
	w.checkAccess(access, dependsOn)
	batches := max(s.Workers(), 1)
	tok := task.ParallelFor(s, queryName(access), batches, func(_ context.Context, batch int) error {
		for _, st := range w.archetypes {
			if st.size == 0 || !access.Match(st.arch) {
				continue
			}
			start, count := batchStartCount(st.size, batch, batches)
			w.executeRange(st, &access, start, count, fn)
		}
		return nil
	}, dependsOn)
	w.track(access, tok)
	return tok
}

func (w *World) execute(access *Access, fn QueryFunc) {
	for _, st := range w.archetypes {
		if st.size == 0 || !access.Match(st.arch) {
			continue
		}
		w.executeRange(st, access, 0, st.size, fn)
	}
}

func (w *World) executeRange(st *ArchetypeStorage, access *Access, start, count int, fn QueryFunc) {
	q := QueryContext{world: w, storage: st, access: access}
	for slot := start; slot < start+count; slot++ {
		q.slot = slot
		fn(&q)
	}
}

// batchStartCount splits size items into batches near-equal ranges and
// returns the range of batch.
func batchStartCount(size, batch, batches int) (start, count int) {
	base := size / batches
	rem := size % batches
	start = batch*base + min(batch, rem)
	count = base
	if batch < rem {
		count++
	}
	return start, count
}

func queryName(access Access) string {
	if access.Name == "" {
		return "query"
	}
	return access.Name
}

type inflightQuery struct {
	token  task.Token
	access Access
}

// checkAccess compares access against every unfinished query that
// dependsOn does not wait for.
func (w *World) checkAccess(access Access, dependsOn task.Token) {
	if w.accessCheck == AccessCheckOff {
		return
	}
	w.qmu.Lock()
	defer w.qmu.Unlock()
	w.pruneLocked()
	for _, f := range w.inflight {
		if !access.Conflicts(f.access) {
			continue
		}
		if dependsOn != nil && (dependsOn == f.token || task.DependsOn(dependsOn, f.token)) {
			continue
		}
		if w.accessCheck == AccessCheckPanic {
			panic(fmt.Sprintf("hako: query %q conflicts with in-flight query %q", queryName(access), queryName(f.access)))
		}
		w.logger.Warn().
			Str("query", queryName(access)).
			Str("in_flight", queryName(f.access)).
			Msg("conflicting query access")
	}
}

func (w *World) track(access Access, tok task.Token) {
	w.qmu.Lock()
	w.pruneLocked()
	w.inflight = append(w.inflight, inflightQuery{token: tok, access: access})
	w.qmu.Unlock()
}

func (w *World) pruneLocked() {
	kept := w.inflight[:0]
	for _, f := range w.inflight {
		if !f.token.IsDone() {
			kept = append(kept, f)
		}
	}
	clear(w.inflight[len(kept):])
	w.inflight = kept
}

// InFlight returns the number of async or parallel queries that have not
// finished yet.
func (w *World) InFlight() int {
	w.qmu.Lock()
	defer w.qmu.Unlock()
	w.pruneLocked()
	return len(w.inflight)
}

func (w *World) assertIdle(op string) {
	assert.That(w.InFlight() == 0, "hako: %s while queries are in flight", op)
}

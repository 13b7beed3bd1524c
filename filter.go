package hako

// Filter iterates the entities matching an Access without a callback. It
// caches the matching storages and only scans archetypes created since the
// last Reset, so reusing one Filter per system each tick is cheap.
//
// The world must not be mutated structurally during an iteration.
//
//	f := hako.NewFilter(w, access)
//	for f.Next() {
//		p := hako.Write[Position](f.Context())
//		...
//	}
type Filter struct {
	world   *World
	matches []*ArchetypeStorage
	q       QueryContext
	access  Access
	scanned int    // archetypes already tested against access
	epoch   uint32 // world clear count the cache was built for
	cur     int    // index into matches
}

// NewFilter returns a Filter positioned before the first entity.
func NewFilter(w *World, access Access) *Filter {
	f := &Filter{world: w, access: access}
	f.q = QueryContext{world: w, access: &f.access}
	f.Reset()
	return f
}

// Reset refreshes the archetype cache and rewinds the iteration.
func (f *Filter) Reset() {
	w := f.world
	if f.epoch != w.epoch {
		clear(f.matches)
		f.matches = f.matches[:0]
		f.scanned = 0
		f.epoch = w.epoch
	}
	for ; f.scanned < len(w.archetypes); f.scanned++ {
		st := w.archetypes[f.scanned]
		if f.access.Match(st.arch) {
			f.matches = append(f.matches, st)
		}
	}
	f.cur = 0
	f.q.storage = nil
	f.q.slot = -1
}

// Next advances to the next entity and reports whether there is one.
func (f *Filter) Next() bool {
	f.q.slot++
	for f.q.storage == nil || f.q.slot >= f.q.storage.size {
		if f.cur >= len(f.matches) {
			return false
		}
		f.q.storage = f.matches[f.cur]
		f.q.slot = 0
		f.cur++
	}
	return true
}

// Entity returns the current entity.
func (f *Filter) Entity() Entity { return f.q.Entity() }

// Context returns the QueryContext of the current entity. It is reused by
// every call to Next.
func (f *Filter) Context() *QueryContext { return &f.q }

// Count returns the number of entities the filter currently matches.
func (f *Filter) Count() int {
	n := 0
	for _, st := range f.matches {
		n += st.size
	}
	return n
}

// Entities collects the matching handles into a new slice. The result may
// be used for structural changes after iteration.
func (f *Filter) Entities() []Entity {
	f.Reset()
	out := make([]Entity, 0, f.Count())
	for f.Next() {
		out = append(out, f.Entity())
	}
	return out
}

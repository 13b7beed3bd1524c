package hako

import (
	"github.com/rs/zerolog"
)

// ArchetypeStats describes one storage.
type ArchetypeStats struct {
	Components []string
	Arch       Arch
	Index      int
	Size       int
	Capacity   int
	State      ArchetypeState
}

// Stats is a snapshot of a World's bookkeeping.
type Stats struct {
	Archetypes []ArchetypeStats
	Alive      int
	Allocated  int
	Free       int
	Queued     int
	Components int
}

// Stats collects a snapshot. Call it from the mutating goroutine.
func (w *World) Stats() Stats {
	w.mu.Lock()
	allocated, free := int(w.counter), len(w.free)
	w.mu.Unlock()

	s := Stats{
		Alive:      w.alive,
		Allocated:  allocated,
		Free:       free,
		Queued:     w.queue.Len(),
		Components: w.registry.Count(),
		Archetypes: make([]ArchetypeStats, 0, len(w.archetypes)),
	}
	for _, st := range w.archetypes {
		names := make([]string, 0, len(st.columns))
		for i := range st.columns {
			names = append(names, st.columns[i].info.Name)
		}
		s.Archetypes = append(s.Archetypes, ArchetypeStats{
			Index:      st.index,
			Arch:       st.arch,
			Components: names,
			Size:       st.size,
			Capacity:   st.capacity,
			State:      st.state,
		})
	}
	return s
}

// LogStats writes the Stats snapshot to the world logger at level.
func (w *World) LogStats(level zerolog.Level) {
	s := w.Stats()
	archs := zerolog.Arr()
	for _, a := range s.Archetypes {
		comps := zerolog.Arr()
		for _, name := range a.Components {
			comps = comps.Str(name)
		}
		archs = archs.Dict(zerolog.Dict().
			Int("archetype_id", a.Index).
			Array("components", comps).
			Int("size", a.Size).
			Int("capacity", a.Capacity).
			Str("state", a.State.String()))
	}
	w.logger.WithLevel(level).
		Int("alive", s.Alive).
		Int("allocated", s.Allocated).
		Int("free", s.Free).
		Int("queued", s.Queued).
		Int("total_components", s.Components).
		Int("total_archetypes", len(s.Archetypes)).
		Array("archetypes", archs).
		Msg("world stats")
}

package hako_test

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/armon/go-metrics"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edwinsyarief/hako"
	"github.com/edwinsyarief/hako/config"
)

type Position struct{ mgl32.Vec3 }

type Velocity struct{ mgl32.Vec3 }

type Health struct{ HP int }

type Frozen struct{}

type resource struct{ closed bool }

type Handle struct{ res *resource }

func (h *Handle) Release() {
	if h.res != nil {
		h.res.closed = true
	}
}

type fixture struct {
	reg    *hako.Registry
	world  *hako.World
	pos    hako.ComponentID
	vel    hako.ComponentID
	health hako.ComponentID
	frozen hako.ComponentID
	handle hako.ComponentID
}

func newFixture(t *testing.T, opts ...hako.Option) *fixture {
	t.Helper()
	reg := hako.NewRegistry(config.Values{config.KeyChunkSize: 4})
	f := &fixture{
		reg:    reg,
		pos:    hako.RegisterComponent[Position](reg),
		vel:    hako.RegisterComponent[Velocity](reg),
		health: hako.RegisterComponent[Health](reg),
		frozen: hako.RegisterComponent[Frozen](reg),
		handle: hako.RegisterComponent[Handle](reg),
	}
	f.world = hako.NewWorld(reg, opts...)
	return f
}

func TestEntityBits(t *testing.T) {
	e := hako.Entity{ID: 5, Version: 3}
	assert.Equal(t, uint64(3)<<32|5, e.Bits())
	assert.Equal(t, e, hako.EntityFromBits(e.Bits()))
	assert.Equal(t, ^uint64(0), hako.InvalidEntity.Bits())
	assert.False(t, hako.InvalidEntity.IsValid())
	assert.Equal(t, "Entity(5:3)", e.String())
}

func TestHandleSafety(t *testing.T) {
	f := newFixture(t)
	w := f.world

	e := w.NewEntity(hako.MakeArch(f.pos))
	require.True(t, w.IsAlive(e))
	w.DestroyEntity(e)
	assert.False(t, w.IsAlive(e))

	reused := w.AllocateEntity()
	assert.Equal(t, e.ID, reused.ID)
	assert.Equal(t, e.Version+1, reused.Version)
	assert.False(t, w.IsAlive(reused))

	w.MakeEntity(reused, hako.MakeArch(f.vel))
	assert.True(t, w.IsAlive(reused))
	assert.False(t, w.IsAlive(e))
	assert.False(t, w.IsAlive(hako.Entity{ID: 999}))
}

func TestDestroyTwicePanics(t *testing.T) {
	f := newFixture(t)
	e := f.world.NewEntity(hako.MakeArch(f.pos))
	f.world.DestroyEntity(e)
	assert.Panics(t, func() { f.world.DestroyEntity(e) })
}

func TestMakeEntityChecksHandle(t *testing.T) {
	f := newFixture(t)
	w := f.world
	assert.Panics(t, func() { w.MakeEntity(hako.Entity{ID: 3}, hako.Arch{}) })
	assert.Panics(t, func() { w.MakeEntity(hako.InvalidEntity, hako.Arch{}) })

	e := w.AllocateEntity()
	w.MakeEntity(e, hako.Arch{})
	assert.Panics(t, func() { w.MakeEntity(e, hako.Arch{}) })
}

func TestAllocateEntityConcurrent(t *testing.T) {
	f := newFixture(t)
	const perWorker, workers = 200, 8
	results := make(chan hako.Entity, perWorker*workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				results <- f.world.AllocateEntity()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[uint32]bool)
	for e := range results {
		require.False(t, seen[e.ID], "index %d handed out twice", e.ID)
		seen[e.ID] = true
	}
	assert.Len(t, seen, perWorker*workers)
}

func TestSwapRemoveKeepsData(t *testing.T) {
	f := newFixture(t)
	w := f.world
	arch := hako.MakeArch(f.pos, f.health)

	ents := make([]hako.Entity, 6)
	for i := range ents {
		ents[i] = w.NewEntity(arch)
		hako.SetComponent(w, ents[i], Health{HP: i})
	}
	last := ents[5]
	w.DestroyEntity(ents[1])

	assert.Equal(t, 5, hako.GetComponent[Health](w, last).HP)
	st, ok := w.Storage(arch)
	require.True(t, ok)
	assert.Equal(t, last, st.Entity(1))
	assert.Equal(t, 5, st.Size())
}

func TestGetOrCreateComponentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	w := f.world
	e := w.NewEntity(hako.MakeArch(f.pos))

	a := hako.GetOrCreateComponent[Velocity](w, e)
	b := hako.GetOrCreateComponent[Velocity](w, e)
	assert.Same(t, a, b)
}

func TestGetOrCreateComponentMigrates(t *testing.T) {
	f := newFixture(t)
	w := f.world
	e := w.NewEntity(hako.MakeArch(f.pos))
	hako.GetComponent[Position](w, e).Vec3 = mgl32.Vec3{1, 2, 3}

	vel := hako.GetOrCreateComponent[Velocity](w, e)
	assert.Equal(t, Velocity{}, *vel)
	assert.Equal(t, hako.MakeArch(f.pos, f.vel), w.ArchOf(e))
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, hako.GetComponent[Position](w, e).Vec3)
}

func TestRearchPreservesCommonComponents(t *testing.T) {
	f := newFixture(t)
	w := f.world
	from := hako.MakeArch(f.pos, f.vel, f.health)
	to := hako.MakeArch(f.pos, f.health, f.frozen)

	var ents []hako.Entity
	for i := 0; i < 9; i++ {
		e := w.NewEntity(from)
		hako.GetComponent[Position](w, e).Vec3 = mgl32.Vec3{float32(i), 0, 0}
		hako.GetComponent[Health](w, e).HP = 100 + i
		ents = append(ents, e)
	}
	for i := 0; i < len(ents); i += 2 {
		w.RearchEntity(ents[i], to)
	}
	for i, e := range ents {
		assert.Equal(t, float32(i), hako.GetComponent[Position](w, e).X(), "entity %d", i)
		assert.Equal(t, 100+i, hako.GetComponent[Health](w, e).HP, "entity %d", i)
		assert.Equal(t, i%2 == 1, hako.HasComponent[Velocity](w, e))
		assert.Equal(t, i%2 == 0, hako.HasComponent[Frozen](w, e))
	}
}

func TestMigrationDoesNotReleaseMovedValues(t *testing.T) {
	f := newFixture(t)
	w := f.world
	res := &resource{}
	e := w.NewEntity(hako.MakeArch(f.handle))
	hako.SetComponent(w, e, Handle{res: res})

	hako.SetComponent(w, e, Health{HP: 1})
	hako.RemoveComponent[Health](w, e)
	assert.False(t, res.closed)
	assert.Same(t, res, hako.GetComponent[Handle](w, e).res)

	w.DestroyEntity(e)
	assert.True(t, res.closed)
}

func TestRemoveComponent(t *testing.T) {
	f := newFixture(t)
	w := f.world
	e := w.NewEntity(hako.MakeArch(f.pos, f.vel))
	hako.RemoveComponent[Velocity](w, e)
	assert.Equal(t, hako.MakeArch(f.pos), w.ArchOf(e))
	hako.RemoveComponent[Velocity](w, e)
	assert.Equal(t, hako.MakeArch(f.pos), w.ArchOf(e))
	assert.Nil(t, hako.TryGetComponent[Velocity](w, e))
	assert.Panics(t, func() { hako.GetComponent[Velocity](w, e) })
}

func TestComponentRefSurvivesMigration(t *testing.T) {
	f := newFixture(t)
	w := f.world
	e := w.NewEntity(hako.MakeArch(f.health))
	ref := hako.RefOf[Health](w, e)
	ref.Get().HP = 42

	for i := 0; i < 10; i++ {
		w.NewEntity(hako.MakeArch(f.health))
	}
	hako.GetOrCreateComponent[Position](w, e)
	require.True(t, ref.Valid())
	assert.Equal(t, 42, ref.Get().HP)
	assert.Equal(t, e, ref.Entity())

	w.DestroyEntity(e)
	assert.Nil(t, ref.Get())
	assert.False(t, ref.Valid())
}

func TestExecuteVisitsMatchingEntitiesOnce(t *testing.T) {
	f := newFixture(t)
	w := f.world
	want := map[hako.Entity]bool{}
	for i := 0; i < 10; i++ {
		want[w.NewEntity(hako.MakeArch(f.pos, f.vel))] = true
		want[w.NewEntity(hako.MakeArch(f.pos, f.vel, f.health))] = true
		w.NewEntity(hako.MakeArch(f.pos))
		w.NewEntity(hako.MakeArch(f.pos, f.vel, f.frozen))
	}
	dead := w.NewEntity(hako.MakeArch(f.pos, f.vel))
	w.DestroyEntity(dead)

	seen := map[hako.Entity]int{}
	access := hako.NewAccess("move").Reading(f.vel).Writing(f.pos).Excluding(f.frozen)
	w.Execute(access, func(q *hako.QueryContext) {
		seen[q.Entity()]++
		p := hako.Write[Position](q)
		p.Vec3 = p.Add(hako.Read[Velocity](q).Vec3)
	})

	assert.Len(t, seen, len(want))
	for e, n := range seen {
		assert.True(t, want[e], "unexpected %v", e)
		assert.Equal(t, 1, n, "%v visited %d times", e, n)
	}
}

func TestOnDestroyHook(t *testing.T) {
	f := newFixture(t)
	w := f.world
	var got []int
	w.OnDestroy(hako.NewAccess("bury").Reading(f.health), func(q *hako.QueryContext) {
		got = append(got, hako.Read[Health](q).HP)
	})

	a := w.NewEntity(hako.MakeArch(f.health))
	hako.SetComponent(w, a, Health{HP: 3})
	b := w.NewEntity(hako.MakeArch(f.pos))
	w.DestroyEntity(b)
	w.DestroyEntity(a)
	assert.Equal(t, []int{3}, got)
}

func TestOnDestroyHookRunsWhenLeavingMatch(t *testing.T) {
	f := newFixture(t)
	w := f.world
	var got []int
	w.OnDestroy(hako.NewAccess("bury").Reading(f.health), func(q *hako.QueryContext) {
		got = append(got, hako.Read[Health](q).HP)
	})

	e := w.NewEntity(hako.MakeArch(f.health, f.pos))
	hako.SetComponent(w, e, Health{HP: 9})
	hako.SetComponent(w, e, Velocity{})
	assert.Empty(t, got, "still matches after gaining a component")

	hako.RemoveComponent[Health](w, e)
	assert.Equal(t, []int{9}, got)
	assert.True(t, w.IsAlive(e))

	w.DestroyEntity(e)
	assert.Equal(t, []int{9}, got, "no longer matches")

	q := w.NewEntity(hako.MakeArch(f.health))
	hako.SetComponent(w, q, Health{HP: 4})
	hako.QueueRemoveComponent[Health](w.Queue(), q)
	assert.Equal(t, []int{9}, got)
	w.Sync()
	assert.Equal(t, []int{9, 4}, got)
}

func TestOnDestroyHookRunsBeforeDisplacement(t *testing.T) {
	f := newFixture(t)
	w := f.world
	var got []hako.Entity
	w.OnDestroy(hako.NewAccess("leave").Reading(f.vel), func(q *hako.QueryContext) {
		got = append(got, q.Entity())
	})

	a := w.NewEntity(hako.MakeArch(f.pos, f.vel))
	b := w.NewEntity(hako.MakeArch(f.pos, f.vel))
	hako.SetComponent(w, b, Position{mgl32.Vec3{2, 0, 0}})

	w.RearchEntity(a, hako.MakeArch(f.pos))
	assert.Equal(t, []hako.Entity{a}, got)
	assert.Equal(t, float32(2), hako.GetComponent[Position](w, b).X())
	assert.Equal(t, hako.MakeArch(f.pos), w.ArchOf(a))
}

func TestQueueDefersUntilSync(t *testing.T) {
	f := newFixture(t)
	w := f.world
	e := w.NewEntity(hako.MakeArch(f.pos))
	q := w.Queue()

	q.DestroyEntity(e)
	q.DestroyEntity(e)
	created := w.AllocateEntity()
	q.MakeEntity(created, hako.MakeArch(f.vel))
	hako.QueueSetComponent(q, created, Health{HP: 9})
	q.Push(func(w *hako.World) {
		w.Queue().Push(func(*hako.World) {})
	})
	assert.Equal(t, 5, q.Len())
	assert.True(t, w.IsAlive(e))

	assert.Equal(t, 5, w.Sync())
	assert.False(t, w.IsAlive(e))
	assert.True(t, w.IsAlive(created))
	assert.Equal(t, 9, hako.GetComponent[Health](w, created).HP)

	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 1, w.Sync())
	assert.Equal(t, 0, w.Sync())

	hako.QueueRemoveComponent[Health](q, created)
	w.Sync()
	assert.False(t, hako.HasComponent[Health](w, created))

	q.DestroyEntity(created)
	q.Clear()
	assert.Equal(t, 0, w.Sync())
	assert.True(t, w.IsAlive(created))
}

func TestClear(t *testing.T) {
	bus := &hako.EventBus{}
	f := newFixture(t, hako.WithEventBus(bus))
	w := f.world
	var cleared []hako.WorldCleared
	hako.Subscribe(bus, func(ev hako.WorldCleared) { cleared = append(cleared, ev) })

	var ents []hako.Entity
	for i := 0; i < 5; i++ {
		ents = append(ents, w.NewEntity(hako.MakeArch(f.pos, f.vel)))
	}
	w.NewEntity(hako.MakeArch(f.health))
	w.Queue().DestroyEntity(ents[0])

	w.Clear()
	assert.Equal(t, 0, w.Alive())
	assert.Equal(t, 0, w.Archetypes())
	assert.Equal(t, 0, w.Queue().Len())
	assert.Equal(t, []hako.WorldCleared{{Destroyed: 6}}, cleared)
	stats := w.Stats()
	assert.Equal(t, 6, stats.Allocated, "indices are kept")
	assert.Equal(t, 6, stats.Free)
	for _, e := range ents {
		assert.False(t, w.IsAlive(e))
	}

	fresh := w.NewEntity(hako.MakeArch(f.pos))
	assert.True(t, w.IsAlive(fresh))
	for _, e := range ents {
		assert.False(t, w.IsAlive(e))
	}
}

func TestRegisterArch(t *testing.T) {
	bus := &hako.EventBus{}
	f := newFixture(t, hako.WithEventBus(bus))
	var created []hako.ArchetypeCreated
	hako.Subscribe(bus, func(ev hako.ArchetypeCreated) { created = append(created, ev) })

	arch := hako.MakeArch(f.pos, f.vel)
	f.world.RegisterArch(arch)
	f.world.RegisterArch(arch)
	st, ok := f.world.Storage(arch)
	require.True(t, ok)
	assert.Equal(t, hako.ArchetypeEmpty, st.State())
	assert.Equal(t, 0, st.Capacity())
	assert.Equal(t, []hako.ArchetypeCreated{{Arch: arch, Index: 0}}, created)
}

func TestWorldMetrics(t *testing.T) {
	sink := metrics.NewInmemSink(time.Hour, time.Hour)
	cfg := metrics.DefaultConfig("hako")
	cfg.EnableHostname = false
	cfg.EnableRuntimeMetrics = false
	m, err := metrics.New(cfg, sink)
	require.NoError(t, err)

	f := newFixture(t, hako.WithMetrics(m))
	w := f.world
	a := w.NewEntity(hako.MakeArch(f.pos))
	w.NewEntity(hako.MakeArch(f.pos))
	hako.SetComponent(w, a, Health{})
	w.DestroyEntity(a)
	w.Queue().Push(func(*hako.World) {})
	w.Sync()

	data := sink.Data()
	require.NotEmpty(t, data)
	counters := data[0].Counters
	assert.Equal(t, 2, counters["hako.ecs.entity.made"].Count)
	assert.Equal(t, 1, counters["hako.ecs.entity.migrated"].Count)
	assert.Equal(t, 1, counters["hako.ecs.entity.destroyed"].Count)
	assert.Equal(t, float64(1), counters["hako.ecs.command.flushed"].Sum)
	assert.Equal(t, float32(2), data[0].Gauges["hako.ecs.archetypes"].Value)
}

func TestLogStats(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(t, hako.WithLogger(zerolog.New(&buf)))
	w := f.world
	for i := 0; i < 3; i++ {
		w.NewEntity(hako.MakeArch(f.pos, f.vel))
	}

	s := w.Stats()
	assert.Equal(t, 3, s.Alive)
	assert.Equal(t, 5, s.Components)
	require.Len(t, s.Archetypes, 1)
	assert.Equal(t, []string{"hako_test.Position", "hako_test.Velocity"}, s.Archetypes[0].Components)
	assert.Equal(t, 4, s.Archetypes[0].Capacity)

	buf.Reset()
	w.LogStats(zerolog.InfoLevel)
	out := buf.String()
	assert.Contains(t, out, `"alive":3`)
	assert.Contains(t, out, `"hako_test.Velocity"`)
	assert.Contains(t, out, `"world":"`+w.ID().String()+`"`)
}

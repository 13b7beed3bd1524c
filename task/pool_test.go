package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edwinsyarief/hako/config"
)

func newTestPool(t *testing.T, workers int) *Pool {
	t.Helper()
	p := NewPool(nil, WithWorkers(workers))
	t.Cleanup(p.Close)
	return p
}

func TestPoolRunsJob(t *testing.T) {
	p := newTestPool(t, 2)
	var ran atomic.Bool
	tok := p.Submit("run", func(context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, tok.Wait())
	assert.True(t, tok.IsDone())
	assert.True(t, ran.Load())
}

func TestPoolWorkersFromConfig(t *testing.T) {
	p := NewPool(config.Values{config.KeyWorkers: 3})
	defer p.Close()
	assert.Equal(t, 3, p.Workers())

	q := NewPool(config.Values{config.KeyWorkers: 0})
	defer q.Close()
	assert.Equal(t, 1, q.Workers())
}

func TestPoolDependencyOrder(t *testing.T) {
	p := newTestPool(t, 4)
	var mu sync.Mutex
	var order []string
	record := func(name string) Job {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	release := make(chan struct{})
	first := p.Submit("first", func(ctx context.Context) error {
		<-release
		return record("first")(ctx)
	})
	second := p.Submit("second", record("second"), first)
	third := p.Submit("third", record("third"), second)

	assert.False(t, third.IsDone())
	close(release)
	require.NoError(t, third.Wait())
	assert.Equal(t, []string{"first", "second", "third"}, order)
	assert.True(t, DependsOn(third, first))
	assert.False(t, DependsOn(first, third))
}

func TestPoolDependencyFailureSkipsJob(t *testing.T) {
	p := newTestPool(t, 2)
	boom := errors.New("boom")
	failed := p.Submit("fail", func(context.Context) error { return boom })

	var ran atomic.Bool
	skipped := p.Submit("skipped", func(context.Context) error {
		ran.Store(true)
		return nil
	}, failed)

	assert.ErrorIs(t, failed.Wait(), boom)
	assert.ErrorIs(t, skipped.Wait(), ErrDependencyFailed)
	assert.False(t, ran.Load())
}

func TestPoolRecoversPanic(t *testing.T) {
	p := newTestPool(t, 1)
	tok := p.Submit("panics", func(context.Context) error {
		panic("kaboom")
	})
	err := tok.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	// the worker survives
	require.NoError(t, p.Submit("after", func(context.Context) error { return nil }).Wait())
}

func TestPoolClosed(t *testing.T) {
	p := NewPool(nil, WithWorkers(1))
	p.Close()
	p.Close()
	tok := p.Submit("late", func(context.Context) error { return nil })
	assert.ErrorIs(t, tok.Wait(), ErrPoolClosed)
}

func TestPoolCloseFailsPendingDependents(t *testing.T) {
	p := NewPool(nil, WithWorkers(1))
	never := make(chan struct{})
	blocked := &handle{done: never}
	tok := p.Submit("pending", func(context.Context) error { return nil }, blocked)
	p.Close()
	select {
	case <-tok.Done():
	case <-time.After(time.Second):
		t.Fatal("pending job not resolved after close")
	}
	assert.ErrorIs(t, tok.Wait(), ErrPoolClosed)
}

func TestAllAndGroup(t *testing.T) {
	p := newTestPool(t, 2)
	boom := errors.New("boom")
	ok := p.Submit("ok", func(context.Context) error { return nil })
	bad := p.Submit("bad", func(context.Context) error { return boom })

	assert.NoError(t, All(ok, nil))
	assert.ErrorIs(t, All(ok, bad), boom)

	g := Group("both", ok, bad)
	assert.ErrorIs(t, g.Wait(), boom)
	assert.True(t, DependsOn(g, bad))

	assert.NoError(t, Resolved(nil).Wait())
	assert.True(t, Resolved(boom).IsDone())
}

func TestParallelFor(t *testing.T) {
	p := newTestPool(t, 4)
	gate := p.Submit("gate", func(context.Context) error { return nil })

	hits := make([]atomic.Int32, 16)
	tok := ParallelFor(p, "fill", len(hits), func(_ context.Context, i int) error {
		hits[i].Add(1)
		return nil
	}, gate)
	require.NoError(t, tok.Wait())
	for i := range hits {
		assert.EqualValues(t, 1, hits[i].Load(), "index %d", i)
	}
	assert.True(t, DependsOn(tok, gate))

	require.NoError(t, ParallelFor(p, "empty", 0, nil).Wait())
}

package task

import (
	"context"
	"runtime"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/edwinsyarief/hako/config"
)

// Pool is a fixed set of worker goroutines implementing Scheduler.
type Pool struct {
	logger  zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    chan func()
	wg      sync.WaitGroup
	workers int
	once    sync.Once
}

var _ Scheduler = (*Pool)(nil)

// Option configures a Pool.
type Option func(*Pool)

// WithWorkers overrides the number of workers.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		p.workers = n
	}
}

// WithLogger sets the logger used for job failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// NewPool starts a pool. The worker count is read from task.workers in src
// and defaults to GOMAXPROCS.
func NewPool(src config.Source, opts ...Option) *Pool {
	workers := runtime.GOMAXPROCS(0)
	if src != nil {
		workers = src.GetInt(config.KeyWorkers, workers)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		logger:  zerolog.Nop(),
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(chan func()),
		workers: workers,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers < 1 {
		p.workers = 1
	}
	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.worker()
	}
	p.logger.Debug().Int("workers", p.workers).Msg("task pool started")
	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Submit schedules job to run once every dep has resolved. If a dependency
// fails, job is skipped and the returned Token fails with
// ErrDependencyFailed. Nil deps are ignored.
func (p *Pool) Submit(name string, job Job, deps ...Token) Token {
	h := newHandle(name, deps)
	if p.ctx.Err() != nil {
		h.finish(eris.Wrapf(ErrPoolClosed, "task %q", name))
		return h
	}
	go p.dispatch(h, job)
	return h
}

// Close stops the workers and waits for running jobs to return. Jobs still
// waiting for a worker or a dependency fail with ErrPoolClosed.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.cancel()
		p.wg.Wait()
		p.logger.Debug().Msg("task pool closed")
	})
}

func (p *Pool) dispatch(h *handle, job Job) {
	for _, d := range h.deps {
		select {
		case <-d.Done():
			if err := d.Wait(); err != nil {
				h.finish(eris.Wrapf(ErrDependencyFailed, "task %q: %v", h.name, err))
				return
			}
		case <-p.ctx.Done():
			h.finish(eris.Wrapf(ErrPoolClosed, "task %q", h.name))
			return
		}
	}

	run := func() { h.finish(p.run(h, job)) }
	select {
	case p.jobs <- run:
	case <-p.ctx.Done():
		h.finish(eris.Wrapf(ErrPoolClosed, "task %q", h.name))
	}
}

func (p *Pool) run(h *handle, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("task %q panicked: %v", h.name, r)
			p.logger.Error().
				Str("task", h.name).
				Str("task_id", h.id.String()).
				Interface("panic", r).
				Msg("task panicked")
		}
	}()
	if err = job(p.ctx); err != nil {
		p.logger.Debug().Err(err).Str("task", h.name).Msg("task failed")
	}
	return err
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case run := <-p.jobs:
			run()
		}
	}
}

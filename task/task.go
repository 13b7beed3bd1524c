// Package task is a small dependency-aware job scheduler. A Scheduler runs
// Jobs on worker goroutines; every submission returns a Token that resolves
// once the job has finished. A job only starts after every Token it depends
// on has resolved successfully.
package task

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

var (
	// ErrPoolClosed is returned by tokens of jobs that could not run because
	// their pool was closed.
	ErrPoolClosed = eris.New("task: pool closed")
	// ErrDependencyFailed is returned by tokens of jobs skipped because a
	// dependency failed.
	ErrDependencyFailed = eris.New("task: dependency failed")
)

// Job is a unit of work. The context is cancelled when the pool closes.
type Job func(ctx context.Context) error

// Token tracks a submitted job. There is no cancellation: once a job is
// scheduled it runs to completion.
type Token interface {
	// Wait blocks until the job has finished and returns its error.
	Wait() error
	// IsDone reports whether the job has finished, without blocking.
	IsDone() bool
	// Done is closed when the job has finished.
	Done() <-chan struct{}
}

// Scheduler runs jobs after their dependencies.
type Scheduler interface {
	Submit(name string, job Job, deps ...Token) Token
	Workers() int
}

// handle is the Token implementation used by this package.
type handle struct {
	err  error
	done chan struct{}
	name string
	deps []Token
	id   uuid.UUID
}

func newHandle(name string, deps []Token) *handle {
	kept := make([]Token, 0, len(deps))
	for _, d := range deps {
		if d != nil {
			kept = append(kept, d)
		}
	}
	return &handle{
		id:   uuid.New(),
		name: name,
		deps: kept,
		done: make(chan struct{}),
	}
}

func (h *handle) finish(err error) {
	h.err = err
	close(h.done)
}

func (h *handle) Wait() error {
	<-h.done
	return h.err
}

func (h *handle) IsDone() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *handle) Done() <-chan struct{} { return h.done }

// ID returns the unique id of the submission.
func (h *handle) ID() uuid.UUID { return h.id }

// Name returns the name given at submission.
func (h *handle) Name() string { return h.name }

// DependsOn reports whether t is a direct or transitive dependency of h.
func (h *handle) DependsOn(t Token) bool {
	for _, d := range h.deps {
		if d == t {
			return true
		}
		if dd, ok := d.(interface{ DependsOn(Token) bool }); ok && dd.DependsOn(t) {
			return true
		}
	}
	return false
}

// Resolved returns a Token that is already finished with err.
func Resolved(err error) Token {
	h := newHandle("resolved", nil)
	h.finish(err)
	return h
}

// DependsOn reports whether a depends on b, directly or transitively. Tokens
// that do not track their dependencies never depend on anything.
func DependsOn(a, b Token) bool {
	if a == nil || b == nil {
		return false
	}
	if d, ok := a.(interface{ DependsOn(Token) bool }); ok {
		return d.DependsOn(b)
	}
	return false
}

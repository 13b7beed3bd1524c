package task

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// All waits for every token and returns the first error.
func All(tokens ...Token) error {
	var g errgroup.Group
	for _, t := range tokens {
		if t == nil {
			continue
		}
		g.Go(t.Wait)
	}
	return g.Wait()
}

// Group returns a Token that resolves once every token has resolved. Its
// error is the one All would return.
func Group(name string, tokens ...Token) Token {
	h := newHandle(name, tokens)
	go func() {
		h.finish(All(h.deps...))
	}()
	return h
}

// ParallelFor submits n jobs to s, calling fn with indices 0..n-1, and
// returns a Token for the whole batch. Each job waits on deps.
func ParallelFor(s Scheduler, name string, n int, fn func(ctx context.Context, i int) error, deps ...Token) Token {
	if n <= 0 {
		return Group(name, deps...)
	}
	tokens := make([]Token, n)
	for i := 0; i < n; i++ {
		i := i
		tokens[i] = s.Submit(fmt.Sprintf("%s[%d]", name, i), func(ctx context.Context) error {
			return fn(ctx, i)
		}, deps...)
	}
	return Group(name, tokens...)
}

// Package worker provides a generic bounded worker pool for fan-out/fan-in
// batch work. The batch runner uses it to spread independent root runs
// across available CPUs.
package worker

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Result pairs a processed value with its original index to preserve ordering.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// Pool fans out work items to at most concurrency goroutines and collects
// results preserving the original input order.
type Pool[In, Out any] struct {
	concurrency int
}

// NewPool creates a worker pool with the given concurrency.
// If concurrency <= 0, defaults to runtime.NumCPU().
func NewPool[In, Out any](concurrency int) *Pool[In, Out] {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Pool[In, Out]{concurrency: concurrency}
}

// Concurrency returns the worker limit.
func (p *Pool[In, Out]) Concurrency() int {
	return p.concurrency
}

// Process applies fn to every item and returns results in input order.
// Errors from individual items are captured per-result rather than aborting
// the whole batch. Once ctx is done, items not yet started get ctx.Err().
func (p *Pool[In, Out]) Process(ctx context.Context, items []In, fn func(context.Context, In) (Out, error)) []Result[Out] {
	if len(items) == 0 {
		return nil
	}

	results := make([]Result[Out], len(items))
	var g errgroup.Group
	g.SetLimit(min(p.concurrency, len(items)))

	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result[Out]{Index: i, Err: err}
				return nil
			}
			val, err := fn(ctx, item)
			results[i] = Result[Out]{Index: i, Value: val, Err: err}
			return nil
		})
	}

	_ = g.Wait()
	return results
}

package graph

import (
	"context"
	"sort"
	"sync"
)

// Outcome is the result of processing one fan-out item.
type Outcome[T any] struct {
	// Key identifies the item (for papers, the paper ID).
	Key string

	// Value is the worker's result. Only meaningful when Err is nil.
	Value T

	// Err is the item's failure. A failed item never aborts the batch.
	Err error
}

// Pool configures FanOut.
type Pool struct {
	// Workers bounds concurrency. Values < 1 mean 1.
	Workers int

	// Stage labels item outcome metrics, e.g. "download".
	Stage string

	// Metrics is optional.
	Metrics *PrometheusMetrics
}

// FanOut applies fn to every item using at most pool.Workers goroutines.
//
// Workers never touch shared state: each returns an independent Outcome
// and the caller merges them. Outcomes are returned sorted by key (stable
// for equal keys), so the merge is deterministic regardless of completion
// order.
//
// FanOut does not stop early on ctx cancellation; in-flight work is
// expected to observe ctx itself and the caller checks cancellation
// between steps.
func FanOut[I, T any](ctx context.Context, pool Pool, items []I, key func(I) string, fn func(ctx context.Context, item I) (T, error)) []Outcome[T] {
	out := make([]Outcome[T], len(items))
	if len(items) == 0 {
		return out
	}

	workers := pool.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				pool.Metrics.addInflight(1)
				v, err := fn(ctx, items[i])
				pool.Metrics.addInflight(-1)
				if pool.Stage != "" {
					pool.Metrics.RecordItemOutcome(pool.Stage, err == nil)
				}
				out[i] = Outcome[T]{Key: key(items[i]), Value: v, Err: err}
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	sort.SliceStable(out, func(a, b int) bool { return out[a].Key < out[b].Key })
	return out
}

// Split separates successful outcomes from failed ones, preserving order.
func Split[T any](outcomes []Outcome[T]) (ok []Outcome[T], failed []Outcome[T]) {
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		} else {
			ok = append(ok, o)
		}
	}
	return ok, failed
}

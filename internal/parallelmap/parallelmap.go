// Package parallelmap implements the bounded-parallelism primitive used by
// frame-level processors and the upload step: an index-ordered fan-out that
// reifies per-item errors instead of aborting the batch.
package parallelmap

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// MaxConcurrency is the system-wide hard cap on concurrency regardless of
// what a caller requests.
const MaxConcurrency = 50

// defaultConcurrencyByKind gives each processor-type its own default
// fan-out width, overridable via step options (see GetConcurrency).
var defaultConcurrencyByKind = map[string]int{
	"download":        4,
	"extract-frames":  1,
	"score-frames":    8,
	"classify":        8,
	"extract-product": 4,
	"bg-remove":       4,
	"upload-frames":   10,
	"generate-commercial": 4,
}

const fallbackConcurrency = 4

// GetConcurrency resolves the concurrency to use for a processor kind:
// the per-kind default on missing/invalid values, floored if fractional,
// and always clamped into [1, MaxConcurrency].
func GetConcurrency(kind string, options map[string]any) int {
	def, ok := defaultConcurrencyByKind[kind]
	if !ok {
		def = fallbackConcurrency
	}

	n := def
	if raw, ok := options["concurrency"]; ok {
		if v, ok := toInt(raw); ok {
			n = v
		}
	}
	if n < 1 {
		n = def
	}
	if n > MaxConcurrency {
		n = MaxConcurrency
	}
	return n
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// ParallelError tags an error at its originating index so consumers can
// distinguish it from a successful result without aborting the batch.
type ParallelError struct {
	Index int
	Err   error
}

func (e *ParallelError) Error() string { return e.Err.Error() }

// IsParallelError is the type-guard consumers use to post-filter results.
func IsParallelError(v any) (*ParallelError, bool) {
	pe, ok := v.(*ParallelError)
	return pe, ok
}

// Map launches up to concurrency in-flight invocations of fn over items,
// preserving result order by index. A panic or error from fn becomes a
// tagged *ParallelError at its slot rather than aborting the batch.
func Map[T any, R any](ctx context.Context, items []T, concurrency int, fn func(context.Context, T) (R, error)) []any {
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > MaxConcurrency {
		concurrency = MaxConcurrency
	}

	results := make([]any, len(items))
	sem := semaphore.NewWeighted(int64(concurrency))
	var wg sync.WaitGroup

	for i, item := range items {
		i, item := i, item
		wg.Add(1)
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = &ParallelError{Index: i, Err: err}
			wg.Done()
			continue
		}
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					results[i] = &ParallelError{Index: i, Err: panicError(r)}
				}
			}()
			r, err := fn(ctx, item)
			if err != nil {
				results[i] = &ParallelError{Index: i, Err: err}
				return
			}
			results[i] = r
		}()
	}
	wg.Wait()
	return results
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &panicWrap{v: r}
}

type panicWrap struct{ v any }

func (p *panicWrap) Error() string { return "panic in parallelmap.Map" }

package parallelmap_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framestudio/pipeline-core/internal/parallelmap"
)

func TestMapPreservesOrder(t *testing.T) {
	items := []int{5, 4, 3, 2, 1}
	results := parallelmap.Map(context.Background(), items, 3, func(_ context.Context, n int) (int, error) {
		return n * 10, nil
	})

	require.Len(t, results, len(items))
	for i, want := range []int{50, 40, 30, 20, 10} {
		got, ok := results[i].(int)
		require.True(t, ok, "index %d should hold a plain result, not an error", i)
		assert.Equal(t, want, got)
	}
}

func TestMapRespectsConcurrencyBound(t *testing.T) {
	var inFlight, maxObserved int32
	items := make([]int, 20)

	parallelmap.Map(context.Background(), items, 3, func(_ context.Context, n int) (int, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxObserved)
			if cur <= old || atomic.CompareAndSwapInt32(&maxObserved, old, cur) {
				break
			}
		}
		atomic.AddInt32(&inFlight, -1)
		return n, nil
	})

	assert.LessOrEqual(t, int(maxObserved), 3)
}

func TestMapTagsPerItemErrors(t *testing.T) {
	items := []int{1, 2, 3}
	boom := errors.New("boom")

	results := parallelmap.Map(context.Background(), items, 2, func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		return n, nil
	})

	_, isErr0 := parallelmap.IsParallelError(results[0])
	assert.False(t, isErr0)

	pe, isErr1 := parallelmap.IsParallelError(results[1])
	require.True(t, isErr1)
	assert.Equal(t, 1, pe.Index)
	assert.ErrorIs(t, pe.Err, boom)

	_, isErr2 := parallelmap.IsParallelError(results[2])
	assert.False(t, isErr2)
}

func TestMapRecoversPanics(t *testing.T) {
	results := parallelmap.Map(context.Background(), []int{1}, 1, func(_ context.Context, n int) (int, error) {
		panic("kaboom")
	})

	pe, isErr := parallelmap.IsParallelError(results[0])
	require.True(t, isErr)
	assert.Contains(t, pe.Error(), "panic")
}

func TestGetConcurrencyDefaultsAndOverrides(t *testing.T) {
	assert.Equal(t, 8, parallelmap.GetConcurrency("score-frames", nil))
	assert.Equal(t, 4, parallelmap.GetConcurrency("unknown-kind", nil))
	assert.Equal(t, 2, parallelmap.GetConcurrency("score-frames", map[string]any{"concurrency": 2}))
	assert.Equal(t, parallelmap.MaxConcurrency, parallelmap.GetConcurrency("score-frames", map[string]any{"concurrency": 1000}))
	assert.Equal(t, 8, parallelmap.GetConcurrency("score-frames", map[string]any{"concurrency": 0}))
}

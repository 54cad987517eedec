package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/framestudio/pipeline-core/internal/queue"
)

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	opts := queue.DefaultOptions()
	return queue.New(rdb, opts, zap.NewNop())
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "job-1"))

	jobID, ok, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "job-1", jobID)
}

func TestEnqueueIsDedupedWhileAlreadyQueued(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "job-1"))
	require.NoError(t, q.Enqueue(ctx, "job-1"))

	_, ok, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// Both Enqueue calls happened while job-1 was still queued, so the second
	// was a no-op and only one copy was pushed: nothing further is pending to
	// dequeue.
	_, ok, err = q.Dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnqueueAfterCompleteIsAccepted(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "job-1"))
	_, _, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, "job-1"))

	require.NoError(t, q.Enqueue(ctx, "job-1"))
	jobID, ok, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "job-1", jobID)
}

func TestFailDefersRequeueByBackoff(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "job-1"))
	_, _, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)

	// Attempt 1 of 3 fails; the queue schedules a requeue after a backoff
	// delay rather than marking the job terminally failed.
	require.NoError(t, q.Fail(ctx, "job-1", assert.AnError))

	// DefaultOptions uses a 5s base backoff, long enough that no requeue has
	// landed yet.
	_, ok, err := q.Dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateProgressSucceedsForDequeuedJob(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "job-1"))
	_, _, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)

	assert.NoError(t, q.UpdateProgress(ctx, "job-1", 42))
}

package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/framestudio/pipeline-core/internal/envelope"
	"github.com/framestudio/pipeline-core/internal/job"
	"github.com/framestudio/pipeline-core/internal/processor"
	"github.com/framestudio/pipeline-core/internal/queue"
	"github.com/framestudio/pipeline-core/internal/worker"
)

type fakeRunner struct {
	calls  int
	result *envelope.Result
	err    error
}

func (f *fakeRunner) RunPipeline(ctx context.Context, row *job.Row, onProgress processor.ProgressFunc, callSiteStackCfg *job.StackConfig, initialData *envelope.Data) (*envelope.Result, error) {
	f.calls++
	if onProgress != nil {
		onProgress(processor.Progress{Status: envelope.StatusProcessing, Percentage: 50})
	}
	return f.result, f.err
}

type fakeRepo struct {
	row *job.Row
}

func (f *fakeRepo) Get(ctx context.Context, id string) (*job.Row, error) { return f.row, nil }
func (f *fakeRepo) UpdateStatus(ctx context.Context, id string, status envelope.Status) error {
	return nil
}
func (f *fakeRepo) UpdateProgress(ctx context.Context, id string, p job.Progress) error { return nil }
func (f *fakeRepo) RecordResult(ctx context.Context, id string, result envelope.Result) error {
	return nil
}
func (f *fakeRepo) RecordFailure(ctx context.Context, id string, errMsg string) error { return nil }

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return queue.New(rdb, queue.DefaultOptions(), zap.NewNop())
}

func TestPoolSkipsAlreadyCompletedJob(t *testing.T) {
	repo := &fakeRepo{row: &job.Row{ID: "job-1", Status: envelope.StatusCompleted}}
	runner := &fakeRunner{result: &envelope.Result{}}
	logger := zap.NewNop()

	q := newTestQueue(t)
	require.NoError(t, q.Enqueue(context.Background(), "job-1"))

	pool := worker.New(1, q, repo, runner, nil, logger, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	pool.Run(ctx)

	assert.Zero(t, runner.calls, "a completed job must not be re-run through the pipeline")
}

func TestPoolRunsPendingJobThroughPipeline(t *testing.T) {
	repo := &fakeRepo{row: &job.Row{ID: "job-2", Status: envelope.StatusPending}}
	runner := &fakeRunner{result: &envelope.Result{FramesAnalyzed: 3}}
	logger := zap.NewNop()

	q := newTestQueue(t)
	require.NoError(t, q.Enqueue(context.Background(), "job-2"))

	pool := worker.New(1, q, repo, runner, nil, logger, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	pool.Run(ctx)

	assert.Equal(t, 1, runner.calls)
}

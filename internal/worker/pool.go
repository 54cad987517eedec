// Package worker implements the bounded worker pool that dequeues jobs and
// invokes the pipeline service.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/framestudio/pipeline-core/internal/callback"
	"github.com/framestudio/pipeline-core/internal/envelope"
	"github.com/framestudio/pipeline-core/internal/job"
	"github.com/framestudio/pipeline-core/internal/metrics"
	"github.com/framestudio/pipeline-core/internal/processor"
	"github.com/framestudio/pipeline-core/internal/queue"
)

// PipelineRunner is the narrow surface Pool depends on from pipelinesvc.Service,
// kept as an interface so tests can substitute a fake runner.
type PipelineRunner interface {
	RunPipeline(ctx context.Context, row *job.Row, onProgress processor.ProgressFunc, callSiteStackCfg *job.StackConfig, initialData *envelope.Data) (*envelope.Result, error)
}

// Pool is a fixed-concurrency worker pool: a configurable number of
// goroutines each loop dequeue-run-ack against the same queue.
type Pool struct {
	concurrency int
	q           *queue.Queue
	repo        job.Repository
	pipeline    PipelineRunner
	dispatcher  *callback.Dispatcher
	logger      *zap.Logger
	metrics     *metrics.Collector

	wg       sync.WaitGroup
	shutdown chan struct{}
}

// New constructs a Pool with the given concurrency. metrics may be nil.
func New(concurrency int, q *queue.Queue, repo job.Repository, pipeline PipelineRunner, dispatcher *callback.Dispatcher, logger *zap.Logger, mc *metrics.Collector) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		concurrency: concurrency,
		q:           q,
		repo:        repo,
		pipeline:    pipeline,
		dispatcher:  dispatcher,
		logger:      logger,
		metrics:     mc,
		shutdown:    make(chan struct{}),
	}
}

// Run starts the worker pool and blocks until ctx is cancelled, then drains
// in-flight jobs before returning.
func (p *Pool) Run(ctx context.Context) {
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
	<-ctx.Done()
	p.wg.Wait()
}

func (p *Pool) loop(ctx context.Context, workerID int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, ok, err := p.q.Dequeue(ctx, 2*time.Second)
		if err != nil {
			if p.logger != nil {
				p.logger.Warn("dequeue failed", zap.Int("worker", workerID), zap.Error(err))
			}
			continue
		}
		if !ok {
			continue
		}
		p.handle(ctx, jobID)
	}
}

func (p *Pool) handle(ctx context.Context, jobID string) {
	row, err := p.repo.Get(ctx, jobID)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("failed to load job row", zap.String("job_id", jobID), zap.Error(err))
		}
		_ = p.q.Fail(ctx, jobID, err)
		return
	}

	// Re-enqueuing a job with the same id while a terminal state already
	// exists is a no-op; short-circuit cancelled/completed jobs the same way
	// rather than re-running them.
	if row.Status == envelope.StatusCompleted || row.Status == envelope.StatusCancelled {
		_ = p.q.Complete(ctx, jobID)
		return
	}

	onProgress := func(pr processor.Progress) {
		if err := p.q.UpdateProgress(ctx, jobID, pr.Percentage); err != nil && p.logger != nil {
			p.logger.Warn("failed to update queue progress", zap.String("job_id", jobID), zap.Error(err))
		}
	}

	if p.metrics != nil {
		p.metrics.JobsInFlight.Inc()
		defer p.metrics.JobsInFlight.Dec()
	}

	result, err := p.pipeline.RunPipeline(ctx, row, onProgress, nil, nil)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("job failed", zap.String("job_id", jobID), zap.Error(err))
		}
		if ferr := p.q.Fail(ctx, jobID, err); ferr != nil && p.logger != nil {
			p.logger.Warn("failed to mark queue job failed", zap.String("job_id", jobID), zap.Error(ferr))
		}
		if p.metrics != nil {
			p.metrics.JobsProcessed.WithLabelValues("failed").Inc()
		}
		return
	}

	if err := p.q.Complete(ctx, jobID); err != nil && p.logger != nil {
		p.logger.Warn("failed to mark queue job completed", zap.String("job_id", jobID), zap.Error(err))
	}
	if p.metrics != nil {
		p.metrics.JobsProcessed.WithLabelValues("completed").Inc()
	}

	if row.CallbackURL != nil && *row.CallbackURL != "" && p.dispatcher != nil {
		p.dispatcher.Deliver(ctx, *row.CallbackURL, callback.Payload{
			JobID:  jobID,
			Status: envelope.StatusCompleted,
			Result: result,
		})
	}
}

package pipelinesvc

import (
	"context"

	"go.uber.org/zap"

	"github.com/framestudio/pipeline-core/internal/job"
	"github.com/framestudio/pipeline-core/internal/processor"
)

// wrapProgress fans a processor's progress report out to both the caller's
// onProgress callback and the job repository. Repository write failures are
// logged, never fatal.
func wrapProgress(onProgress processor.ProgressFunc, repo job.Repository, ctx context.Context, jobID string, logger *zap.Logger) processor.ProgressFunc {
	return func(p processor.Progress) {
		if onProgress != nil {
			onProgress(p)
		}
		if repo == nil {
			return
		}
		err := repo.UpdateProgress(ctx, jobID, job.Progress{
			Status:     p.Status,
			Percentage: p.Percentage,
			Message:    p.Message,
			Step:       p.Step,
			TotalSteps: p.TotalSteps,
		})
		if err != nil && logger != nil {
			logger.Warn("failed to persist job progress", zap.String("job_id", jobID), zap.Error(err))
		}
	}
}

package processors

import (
	"go.uber.org/zap"

	"github.com/framestudio/pipeline-core/internal/envelope"
	"github.com/framestudio/pipeline-core/internal/iotype"
	"github.com/framestudio/pipeline-core/internal/job"
	"github.com/framestudio/pipeline-core/internal/processor"
)

// CompleteJob is the terminal processor every stack ends on. It derives the
// final envelope.Result, records it onto the job row, and reports the
// closing 100% progress update.
type CompleteJob struct {
	Repo   job.Repository
	Logger *zap.Logger
}

func NewCompleteJob(repo job.Repository, logger *zap.Logger) *CompleteJob {
	return &CompleteJob{Repo: repo, Logger: logger}
}

func (c *CompleteJob) ID() string          { return "complete-job" }
func (c *CompleteJob) DisplayName() string { return "Complete Job" }
func (c *CompleteJob) StatusKey() envelope.Status { return envelope.StatusCompleted }

func (c *CompleteJob) IO() processor.IO {
	return processor.IO{
		Requires: []iotype.Tag{},
		Produces: []iotype.Tag{},
	}
}

func (c *CompleteJob) Execute(ctx *processor.Context, data *envelope.Data, opts processor.Options) processor.Result {
	result := deriveResult(data)
	data.SetResult(result)

	if c.Repo != nil {
		if err := c.Repo.RecordResult(ctx.GoContext, ctx.JobID, *result); err != nil {
			// A failure to persist the already-computed result must not fail
			// an otherwise successful pipeline run.
			if c.Logger != nil {
				c.Logger.Error("failed to record job result",
					zap.String("job_id", ctx.JobID), zap.Error(err))
			}
		}
	}

	ctx.ReportProgress(processor.Progress{Status: envelope.StatusCompleted, Percentage: BandComplete.End})

	out := envelope.NewData()
	return processor.Result{Success: true, Data: out}
}

func deriveResult(data *envelope.Data) *envelope.Result {
	if r, ok := data.Result(); ok {
		return r
	}

	finalFrames := make([]string, 0, len(data.Frames))
	for _, f := range data.Frames {
		if f.IsFinalSelection && f.RemoteURL != "" {
			finalFrames = append(finalFrames, f.RemoteURL)
		}
	}

	commercial := make(map[string]map[string]string, len(data.CommercialImages))
	for _, img := range data.CommercialImages {
		versions, ok := commercial[img.FrameID]
		if !ok {
			versions = make(map[string]string)
			commercial[img.FrameID] = versions
		}
		versions[img.Version] = img.URL
	}

	return &envelope.Result{
		FramesAnalyzed:   len(data.Frames),
		FinalFrames:      finalFrames,
		CommercialImages: commercial,
	}
}

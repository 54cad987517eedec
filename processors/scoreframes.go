package processors

import (
	"context"
	"fmt"

	"github.com/framestudio/pipeline-core/internal/envelope"
	"github.com/framestudio/pipeline-core/internal/iotype"
	"github.com/framestudio/pipeline-core/internal/parallelmap"
	"github.com/framestudio/pipeline-core/internal/processor"
)

// Scorer assigns a quality score to one frame. The real scorer calls an
// external AI service; it is modeled as a narrow collaborator interface so
// the worker can run without it wired.
type Scorer interface {
	Score(ctx *processor.Context, frame *envelope.Frame) (float64, error)
}

// ScoreFrames is the flow-shape processor that assigns data.Frames[i].Score
// via bounded intra-stage parallelism over the frame collection.
type ScoreFrames struct {
	Scorer Scorer
}

func NewScoreFrames(scorer Scorer) *ScoreFrames {
	return &ScoreFrames{Scorer: scorer}
}

func (s *ScoreFrames) ID() string          { return "score-frames" }
func (s *ScoreFrames) DisplayName() string { return "Score Candidate Frames" }
func (s *ScoreFrames) StatusKey() envelope.Status { return envelope.StatusScoring }

func (s *ScoreFrames) IO() processor.IO {
	return processor.IO{
		Requires: []iotype.Tag{iotype.Frames, iotype.Images},
		Produces: []iotype.Tag{iotype.FramesScores},
	}
}

func (s *ScoreFrames) Execute(ctx *processor.Context, data *envelope.Data, opts processor.Options) processor.Result {
	if len(data.Frames) == 0 {
		out := envelope.NewData()
		out.Frames = data.Frames
		return processor.Result{Success: true, Data: out}
	}
	if s.Scorer == nil {
		return processor.Result{Success: false, Error: "score-frames has no scorer configured"}
	}

	concurrency := parallelmap.GetConcurrency("score-frames", opts)
	results := parallelmap.Map(ctx.GoContext, data.Frames, concurrency, func(_ context.Context, f *envelope.Frame) (*envelope.Frame, error) {
		score, err := s.Scorer.Score(ctx, f)
		if err != nil {
			return nil, err
		}
		updated := *f
		updated.Score = &score
		return &updated, nil
	})

	frames := make([]*envelope.Frame, len(results))
	for i, r := range results {
		if pe, isErr := parallelmap.IsParallelError(r); isErr {
			return processor.Result{Success: false, Error: fmt.Sprintf("failed to score frame %d: %v", i, pe.Err)}
		}
		frames[i] = r.(*envelope.Frame)
		ctx.ReportProgress(processor.Progress{Status: s.StatusKey(), Percentage: BandScoreFrames.At(i, len(results))})
	}

	out := envelope.NewData()
	out.Frames = frames
	return processor.Result{Success: true, Data: out}
}

package processors

import (
	"context"
	"fmt"

	"github.com/framestudio/pipeline-core/internal/envelope"
	"github.com/framestudio/pipeline-core/internal/iotype"
	"github.com/framestudio/pipeline-core/internal/parallelmap"
	"github.com/framestudio/pipeline-core/internal/processor"
)

// Classifier attaches classification attributes (e.g. product category,
// orientation) to one frame. Modeled as a narrow collaborator interface so
// the worker can run without it wired.
type Classifier interface {
	Classify(ctx *processor.Context, frame *envelope.Frame) (map[string]string, error)
}

// Classify is a flow-shape processor that fans out Classifier over the
// scored frame collection.
type Classify struct {
	Classifier Classifier
}

func NewClassify(classifier Classifier) *Classify {
	return &Classify{Classifier: classifier}
}

func (c *Classify) ID() string          { return "classify" }
func (c *Classify) DisplayName() string { return "Classify Frames" }
func (c *Classify) StatusKey() envelope.Status { return envelope.StatusClassifying }

func (c *Classify) IO() processor.IO {
	return processor.IO{
		Requires: []iotype.Tag{iotype.Frames, iotype.FramesScores},
		Produces: []iotype.Tag{iotype.FramesClassifications},
	}
}

func (c *Classify) Execute(ctx *processor.Context, data *envelope.Data, opts processor.Options) processor.Result {
	if len(data.Frames) == 0 {
		out := envelope.NewData()
		out.Frames = data.Frames
		return processor.Result{Success: true, Data: out}
	}
	if c.Classifier == nil {
		return processor.Result{Success: false, Error: "classify has no classifier configured"}
	}

	concurrency := parallelmap.GetConcurrency("classify", opts)
	results := parallelmap.Map(ctx.GoContext, data.Frames, concurrency, func(_ context.Context, f *envelope.Frame) (*envelope.Frame, error) {
		attrs, err := c.Classifier.Classify(ctx, f)
		if err != nil {
			return nil, err
		}
		updated := *f
		updated.Classification = attrs
		return &updated, nil
	})

	frames := make([]*envelope.Frame, len(results))
	for i, r := range results {
		if pe, isErr := parallelmap.IsParallelError(r); isErr {
			return processor.Result{Success: false, Error: fmt.Sprintf("failed to classify frame %d: %v", i, pe.Err)}
		}
		frames[i] = r.(*envelope.Frame)
		ctx.ReportProgress(processor.Progress{Status: c.StatusKey(), Percentage: BandClassify.At(i, len(results))})
	}

	out := envelope.NewData()
	out.Frames = frames
	return processor.Result{Success: true, Data: out}
}

package processors

import (
	"context"

	"github.com/framestudio/pipeline-core/internal/envelope"
	"github.com/framestudio/pipeline-core/internal/iotype"
	"github.com/framestudio/pipeline-core/internal/parallelmap"
	"github.com/framestudio/pipeline-core/internal/processor"
)

// ProductExtractor crops or isolates the product region within a frame.
// Modeled as a narrow collaborator interface so the worker can run without
// it wired.
type ProductExtractor interface {
	ExtractProduct(ctx *processor.Context, frame *envelope.Frame, outputDir string) (localPath string, err error)
}

// ExtractProduct is a partial-success flow-shape processor: frames whose
// extraction fails keep their original path rather than aborting the whole
// batch.
type ExtractProduct struct {
	Extractor ProductExtractor
}

func NewExtractProduct(extractor ProductExtractor) *ExtractProduct {
	return &ExtractProduct{Extractor: extractor}
}

func (e *ExtractProduct) ID() string          { return "extract-product" }
func (e *ExtractProduct) DisplayName() string { return "Extract Product Region" }
func (e *ExtractProduct) StatusKey() envelope.Status { return envelope.StatusExtractingProduct }

func (e *ExtractProduct) IO() processor.IO {
	return processor.IO{
		Requires: []iotype.Tag{iotype.Frames, iotype.Images},
		Produces: []iotype.Tag{iotype.FramesProducts, iotype.Images},
	}
}

func (e *ExtractProduct) Execute(ctx *processor.Context, data *envelope.Data, opts processor.Options) processor.Result {
	if len(data.Frames) == 0 {
		out := envelope.NewData()
		out.Frames = data.Frames
		return processor.Result{Success: true, Data: out}
	}
	if e.Extractor == nil {
		out := envelope.NewData()
		out.Frames = data.Frames
		return processor.Result{Success: true, Data: out}
	}

	concurrency := parallelmap.GetConcurrency("extract-product", opts)
	results := parallelmap.Map(ctx.GoContext, data.Frames, concurrency, func(_ context.Context, f *envelope.Frame) (*envelope.Frame, error) {
		path, err := e.Extractor.ExtractProduct(ctx, f, ctx.WorkDirs.Extracted)
		updated := *f
		if err != nil {
			// Keep the original path; this frame simply didn't get a
			// tighter product crop.
			return &updated, nil
		}
		updated.LocalPath = path
		return &updated, nil
	})

	frames := make([]*envelope.Frame, len(results))
	for i, r := range results {
		if pe, isErr := parallelmap.IsParallelError(r); isErr {
			// fn itself never returns an error (extraction failures are
			// absorbed by keeping the original frame); a ParallelError here
			// means a panic, which we also tolerate by keeping the original.
			_ = pe
			frames[i] = data.Frames[i]
			continue
		}
		frames[i] = r.(*envelope.Frame)
		ctx.ReportProgress(processor.Progress{Status: e.StatusKey(), Percentage: BandExtractProducts.At(i, len(results))})
	}

	out := envelope.NewData()
	out.Frames = frames
	return processor.Result{Success: true, Data: out}
}

package processors

import (
	"context"

	"github.com/framestudio/pipeline-core/internal/envelope"
	"github.com/framestudio/pipeline-core/internal/iotype"
	"github.com/framestudio/pipeline-core/internal/parallelmap"
	"github.com/framestudio/pipeline-core/internal/processor"
)

// BackgroundRemover strips the background from a frame's image, returning
// the path to the isolated-subject image.
type BackgroundRemover interface {
	RemoveBackground(ctx *processor.Context, frame *envelope.Frame, outputDir string) (localPath string, err error)
}

// bgRemoveStep is the shared implementation behind two swappable processor
// identities that differ only in id, display name, and which
// BackgroundRemover they delegate to. Both declare the same Requires/Produces
// multiset so a stack can swap one for the other. It is a partial-success
// flow-shape processor: frames whose removal fails keep their original image
// rather than aborting the whole batch.
type bgRemoveStep struct {
	id      string
	name    string
	remover BackgroundRemover
}

func (b *bgRemoveStep) ID() string          { return b.id }
func (b *bgRemoveStep) DisplayName() string { return b.name }
func (b *bgRemoveStep) StatusKey() envelope.Status { return envelope.StatusExtractingProduct }

func (b *bgRemoveStep) IO() processor.IO {
	return processor.IO{
		Requires: []iotype.Tag{iotype.Frames, iotype.Images},
		Produces: []iotype.Tag{iotype.Frames, iotype.Images},
	}
}

func (b *bgRemoveStep) Execute(ctx *processor.Context, data *envelope.Data, opts processor.Options) processor.Result {
	if len(data.Frames) == 0 || b.remover == nil {
		out := envelope.NewData()
		out.Frames = data.Frames
		return processor.Result{Success: true, Data: out}
	}

	concurrency := parallelmap.GetConcurrency("bg-remove", opts)
	results := parallelmap.Map(ctx.GoContext, data.Frames, concurrency, func(_ context.Context, f *envelope.Frame) (*envelope.Frame, error) {
		path, err := b.remover.RemoveBackground(ctx, f, ctx.WorkDirs.Extracted)
		updated := *f
		if err != nil {
			// Keep the original image; this frame simply keeps its
			// background rather than aborting the batch.
			return &updated, nil
		}
		updated.LocalPath = path
		return &updated, nil
	})

	frames := make([]*envelope.Frame, len(results))
	for i, r := range results {
		if pe, isErr := parallelmap.IsParallelError(r); isErr {
			// fn itself never returns an error (removal failures are
			// absorbed by keeping the original frame); a ParallelError here
			// means a panic, which we also tolerate by keeping the original.
			_ = pe
			frames[i] = data.Frames[i]
			continue
		}
		frames[i] = r.(*envelope.Frame)
		ctx.ReportProgress(processor.Progress{Status: b.StatusKey(), Percentage: BandExtractProducts.At(i, len(results))})
	}

	out := envelope.NewData()
	out.Frames = frames
	return processor.Result{Success: true, Data: out}
}

// PhotoroomBgRemove delegates background removal to a Photoroom-backed
// BackgroundRemover.
type PhotoroomBgRemove struct{ *bgRemoveStep }

func NewPhotoroomBgRemove(remover BackgroundRemover) *PhotoroomBgRemove {
	return &PhotoroomBgRemove{&bgRemoveStep{id: "photoroom-bg-remove", name: "Remove Background (Photoroom)", remover: remover}}
}

// ClaidBgRemove delegates background removal to a Claid-backed
// BackgroundRemover. It is swap-compatible with PhotoroomBgRemove.
type ClaidBgRemove struct{ *bgRemoveStep }

func NewClaidBgRemove(remover BackgroundRemover) *ClaidBgRemove {
	return &ClaidBgRemove{&bgRemoveStep{id: "claid-bg-remove", name: "Remove Background (Claid)", remover: remover}}
}

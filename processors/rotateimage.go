package processors

import (
	"github.com/framestudio/pipeline-core/internal/envelope"
	"github.com/framestudio/pipeline-core/internal/iotype"
	"github.com/framestudio/pipeline-core/internal/processor"
)

// RotateImage is a passthrough stand-in for an image-rotation step: it reads
// a "degrees" option but leaves every frame and its image unchanged. It is a
// lightweight, dependency-free step suitable for insertion anywhere in a
// frame-bearing stack.
type RotateImage struct{}

func NewRotateImage() *RotateImage {
	return &RotateImage{}
}

func (r *RotateImage) ID() string          { return "rotate-image" }
func (r *RotateImage) DisplayName() string { return "Rotate Image" }
func (r *RotateImage) StatusKey() envelope.Status { return envelope.StatusExtractingFrames }

func (r *RotateImage) IO() processor.IO {
	return processor.IO{
		Requires: []iotype.Tag{iotype.Frames, iotype.Images},
		Produces: []iotype.Tag{iotype.Frames, iotype.Images},
	}
}

func (r *RotateImage) Execute(ctx *processor.Context, data *envelope.Data, opts processor.Options) processor.Result {
	_ = optInt(opts, "degrees", 0)

	out := envelope.NewData()
	out.Frames = data.Frames
	return processor.Result{Success: true, Data: out}
}

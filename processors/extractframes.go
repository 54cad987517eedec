package processors

import (
	"fmt"

	"github.com/framestudio/pipeline-core/internal/envelope"
	"github.com/framestudio/pipeline-core/internal/iotype"
	"github.com/framestudio/pipeline-core/internal/processor"
)

// FrameExtractor pulls candidate frames out of a local video file. The real
// implementation shells out to a native video tool; it is modeled as a
// narrow collaborator interface so the worker can run without it wired.
type FrameExtractor interface {
	Extract(videoPath, outputDir string) ([]ExtractedFrame, error)
}

// ExtractedFrame is one frame as reported by the extractor, before any
// scoring or classification has run.
type ExtractedFrame struct {
	LocalPath     string
	TimestampMs   int64
	BestPerSecond bool
}

// noopExtractor returns zero frames; used when no real extractor is wired,
// matching scenario S1 ("happy path ... no frames").
type noopExtractor struct{}

func (noopExtractor) Extract(string, string) ([]ExtractedFrame, error) { return nil, nil }

// ExtractFrames is the flow-shape processor that populates data.Frames from
// the downloaded video.
type ExtractFrames struct {
	Extractor FrameExtractor
}

// NewExtractFrames returns an ExtractFrames processor; a nil extractor falls
// back to a zero-frame no-op, matching the minimal-stack happy path.
func NewExtractFrames(extractor FrameExtractor) *ExtractFrames {
	if extractor == nil {
		extractor = noopExtractor{}
	}
	return &ExtractFrames{Extractor: extractor}
}

func (e *ExtractFrames) ID() string          { return "extract-frames" }
func (e *ExtractFrames) DisplayName() string { return "Extract Candidate Frames" }
func (e *ExtractFrames) StatusKey() envelope.Status { return envelope.StatusExtractingFrames }

func (e *ExtractFrames) IO() processor.IO {
	return processor.IO{
		Requires: []iotype.Tag{iotype.Video},
		Produces: []iotype.Tag{iotype.Frames, iotype.Images},
	}
}

func (e *ExtractFrames) Execute(ctx *processor.Context, data *envelope.Data, _ processor.Options) processor.Result {
	if data.Video == nil || data.Video.LocalPath == "" {
		return processor.Result{Success: false, Error: "extract-frames requires a downloaded local video"}
	}

	ctx.ReportProgress(processor.Progress{Status: e.StatusKey(), Percentage: BandExtractFrames.Start})

	extracted, err := e.Extractor.Extract(data.Video.LocalPath, ctx.WorkDirs.Candidates)
	if err != nil {
		return processor.Result{Success: false, Error: fmt.Sprintf("failed to extract frames: %v", err)}
	}

	frames := make([]*envelope.Frame, 0, len(extracted))
	for i, ef := range extracted {
		frames = append(frames, &envelope.Frame{
			ID:            fmt.Sprintf("frame-%04d", i),
			LocalPath:     ef.LocalPath,
			Timestamp:     msToDuration(ef.TimestampMs),
			BestPerSecond: ef.BestPerSecond,
		})
		ctx.ReportProgress(processor.Progress{
			Status:     e.StatusKey(),
			Percentage: BandExtractFrames.At(i, len(extracted)),
		})
	}

	out := envelope.NewData()
	out.Frames = frames

	ctx.ReportProgress(processor.Progress{Status: e.StatusKey(), Percentage: BandExtractFrames.End})
	return processor.Result{Success: true, Data: out}
}

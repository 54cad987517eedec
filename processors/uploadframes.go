package processors

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/framestudio/pipeline-core/internal/envelope"
	"github.com/framestudio/pipeline-core/internal/iotype"
	"github.com/framestudio/pipeline-core/internal/parallelmap"
	"github.com/framestudio/pipeline-core/internal/processor"
	"github.com/framestudio/pipeline-core/internal/storage"
)

// UploadFrames pushes each finally-selected frame's local file to object
// storage and records the resulting remote URL back onto the frame.
type UploadFrames struct {
	Blobs storage.Blobs
}

func NewUploadFrames(blobs storage.Blobs) *UploadFrames {
	return &UploadFrames{Blobs: blobs}
}

func (u *UploadFrames) ID() string          { return "upload-frames" }
func (u *UploadFrames) DisplayName() string { return "Upload Selected Frames" }
func (u *UploadFrames) StatusKey() envelope.Status { return envelope.StatusGenerating }

func (u *UploadFrames) IO() processor.IO {
	return processor.IO{
		Requires: []iotype.Tag{iotype.Frames, iotype.Images},
		Produces: []iotype.Tag{iotype.Frames, iotype.Images},
	}
}

func (u *UploadFrames) Execute(ctx *processor.Context, data *envelope.Data, opts processor.Options) processor.Result {
	selected := make([]*envelope.Frame, 0, len(data.Frames))
	for _, f := range data.Frames {
		if f.IsFinalSelection {
			selected = append(selected, f)
		}
	}
	if len(selected) == 0 || u.Blobs == nil {
		out := envelope.NewData()
		out.Frames = data.Frames
		return processor.Result{Success: true, Data: out}
	}

	concurrency := parallelmap.GetConcurrency("upload-frames", opts)
	results := parallelmap.Map(ctx.GoContext, selected, concurrency, func(c context.Context, f *envelope.Frame) (*envelope.Frame, error) {
		file, err := os.Open(f.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.LocalPath, err)
		}
		defer file.Close()

		key := storage.JobsFramesKey(ctx.JobID, f.ID)
		contentType := mime.TypeByExtension(filepath.Ext(f.LocalPath))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if err := u.Blobs.Upload(c, key, file, contentType); err != nil {
			return nil, fmt.Errorf("upload %s: %w", key, err)
		}

		url, err := u.Blobs.PresignGet(c, key, storage.ClampPresignExpiry(0, false))
		if err != nil {
			return nil, fmt.Errorf("presign %s: %w", key, err)
		}

		updated := *f
		updated.RemoteURL = url
		return &updated, nil
	})

	byID := make(map[string]*envelope.Frame, len(results))
	for i, r := range results {
		if pe, isErr := parallelmap.IsParallelError(r); isErr {
			return processor.Result{Success: false, Error: fmt.Sprintf("failed to upload frame %d: %v", i, pe.Err)}
		}
		updated := r.(*envelope.Frame)
		byID[updated.ID] = updated
		ctx.ReportProgress(processor.Progress{Status: u.StatusKey(), Percentage: BandUploadFrames.At(i, len(results))})
	}

	frames := make([]*envelope.Frame, len(data.Frames))
	for i, f := range data.Frames {
		if updated, ok := byID[f.ID]; ok {
			frames[i] = updated
		} else {
			frames[i] = f
		}
	}

	out := envelope.NewData()
	out.Frames = frames
	return processor.Result{Success: true, Data: out}
}

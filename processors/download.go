package processors

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/framestudio/pipeline-core/internal/envelope"
	"github.com/framestudio/pipeline-core/internal/iotype"
	"github.com/framestudio/pipeline-core/internal/processor"
)

// Fetcher retrieves a remote video into a local path. The concrete
// implementation (HTTP client, storage SDK, ...) is modeled as a narrow
// collaborator interface; Download depends on it this way so it stays
// testable without a real network call.
type Fetcher interface {
	Fetch(sourceURL, destPath string) error
}

// localFileFetcher is the default Fetcher used when none is wired: it writes
// an empty placeholder file at destPath and ignores sourceURL, so nothing is
// fetched or copied.
type localFileFetcher struct{}

func (localFileFetcher) Fetch(sourceURL, destPath string) error {
	return os.WriteFile(destPath, []byte{}, 0o644)
}

// Download is the flow-shape processor that materializes the job's source
// video into the work directory's video/ subdirectory.
type Download struct {
	Fetcher Fetcher
}

// NewDownload returns a Download processor; a nil fetcher falls back to a
// local no-op placeholder suitable for tests exercising stack wiring rather
// than real network fetches.
func NewDownload(fetcher Fetcher) *Download {
	if fetcher == nil {
		fetcher = localFileFetcher{}
	}
	return &Download{Fetcher: fetcher}
}

func (d *Download) ID() string          { return "download" }
func (d *Download) DisplayName() string { return "Download Source Video" }
func (d *Download) StatusKey() envelope.Status { return envelope.StatusProcessing }

func (d *Download) IO() processor.IO {
	return processor.IO{
		Requires: []iotype.Tag{iotype.Video},
		Produces: []iotype.Tag{iotype.Video},
	}
}

func (d *Download) Execute(ctx *processor.Context, data *envelope.Data, _ processor.Options) processor.Result {
	if data.Video == nil || data.Video.SourceURL == "" {
		return processor.Result{Success: false, Error: "download requires a video source URL"}
	}

	ctx.ReportProgress(processor.Progress{Status: d.StatusKey(), Percentage: BandDownload.Start})

	destPath := filepath.Join(ctx.WorkDirs.Video, "source.mp4")
	if err := d.Fetcher.Fetch(data.Video.SourceURL, destPath); err != nil {
		return processor.Result{Success: false, Error: fmt.Sprintf("failed to download source video: %v", err)}
	}

	out := envelope.NewData()
	out.Video = &envelope.Video{
		SourceURL: data.Video.SourceURL,
		LocalPath: destPath,
		Metadata:  data.Video.Metadata,
	}

	ctx.ReportProgress(processor.Progress{Status: d.StatusKey(), Percentage: BandDownload.End})
	return processor.Result{Success: true, Data: out}
}

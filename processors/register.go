package processors

import (
	"go.uber.org/zap"

	"github.com/framestudio/pipeline-core/internal/job"
	"github.com/framestudio/pipeline-core/internal/processor"
	"github.com/framestudio/pipeline-core/internal/storage"
)

// Collaborators bundles every external dependency the built-in processors
// delegate to. Each is optional: a nil collaborator makes its processor a
// passthrough (or, where a stage is mandatory, an explicit failure) rather
// than panicking, so a worker can be stood up incrementally.
type Collaborators struct {
	Fetcher            Fetcher
	FrameExtractor     FrameExtractor
	Scorer             Scorer
	Classifier         Classifier
	ProductExtractor   ProductExtractor
	PhotoroomRemover   BackgroundRemover
	ClaidRemover       BackgroundRemover
	CommercialGenerator CommercialGenerator
	Blobs              storage.Blobs
	Repo               job.Repository
	Logger             *zap.Logger
}

// BuildAll constructs one instance of every built-in processor, ready for
// registration into a processor.Registry.
func BuildAll(c Collaborators) []processor.Processor {
	return []processor.Processor{
		NewDownload(c.Fetcher),
		NewExtractFrames(c.FrameExtractor),
		NewScoreFrames(c.Scorer),
		NewFilterByScore(),
		NewClassify(c.Classifier),
		NewExtractProduct(c.ProductExtractor),
		NewPhotoroomBgRemove(c.PhotoroomRemover),
		NewClaidBgRemove(c.ClaidRemover),
		NewGenerateCommercial(c.CommercialGenerator),
		NewUploadFrames(c.Blobs),
		NewRotateImage(),
		NewCompleteJob(c.Repo, c.Logger),
	}
}

// RegisterAll builds and registers every built-in processor into r.
func RegisterAll(r *processor.Registry, c Collaborators) {
	r.RegisterAll(BuildAll(c))
}

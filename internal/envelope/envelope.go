// Package envelope defines the mutable per-job data accumulator threaded
// through processors, and the job status enumeration used to drive it.
package envelope

import (
	"time"

	"github.com/framestudio/pipeline-core/internal/iotype"
)

// Status mirrors the job row's status column. Transitions are monotonic
// along the processing path; {Completed, Failed, Cancelled} are terminal.
type Status string

const (
	StatusPending            Status = "pending"
	StatusProcessing         Status = "processing"
	StatusExtractingFrames   Status = "extracting-frames"
	StatusScoring            Status = "scoring"
	StatusClassifying        Status = "classifying"
	StatusExtractingProduct  Status = "extracting-product"
	StatusGenerating         Status = "generating"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
	StatusCancelled          Status = "cancelled"
)

// IsTerminal reports whether s is one of the terminal statuses.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Video describes the source video as it moves through the pipeline.
type Video struct {
	SourceURL string            `json:"sourceUrl,omitempty"`
	LocalPath string            `json:"localPath,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Frame is one candidate or selected product frame with its per-frame
// metadata. Score and Classification are nil until the corresponding
// processors have run.
type Frame struct {
	ID                string            `json:"id"`
	DBID              string            `json:"dbId,omitempty"`
	LocalPath         string            `json:"localPath,omitempty"`
	RemoteURL         string            `json:"remoteUrl,omitempty"`
	Timestamp         time.Duration     `json:"timestamp"`
	Score             *float64          `json:"score,omitempty"`
	Classification    map[string]string `json:"classification,omitempty"`
	BestPerSecond     bool              `json:"bestPerSecond,omitempty"`
	IsFinalSelection  bool              `json:"isFinalSelection,omitempty"`
}

// CommercialImage is one generated commercial-ready image tied back to a
// source frame and a named variant ("version").
type CommercialImage struct {
	FrameID string `json:"frameId"`
	Version string `json:"version"`
	URL     string `json:"url"`
}

// TokenUsageSummary is the flattened snapshot recorded into metadata by
// processors that opt into token accounting; the authoritative live tracker
// is the per-job tokentracker.Tracker on processor.Context.Tokens.
type TokenUsageSummary struct {
	Model           string `json:"model"`
	Processor       string `json:"processor"`
	PromptTokens    int64  `json:"promptTokens"`
	CandidatesTokens int64 `json:"candidatesTokens"`
	TotalTokens     int64  `json:"totalTokens"`
	CallCount       int64  `json:"callCount"`
}

// Result is the terminal shape written by the complete-job processor and
// ultimately persisted onto the job row.
type Result struct {
	VariantsDiscovered int                          `json:"variantsDiscovered"`
	FramesAnalyzed     int                          `json:"framesAnalyzed"`
	FinalFrames        []string                     `json:"finalFrames"`
	CommercialImages   map[string]map[string]string `json:"commercialImages"`
}

// Data is the mutable accumulator threaded through a stack's processors.
// A processor may read any field and, on success, must make its declared
// produces tags satisfiable by setting or updating the corresponding field.
type Data struct {
	Video            *Video                       `json:"video,omitempty"`
	Frames           []*Frame                     `json:"frames,omitempty"`
	CommercialImages []*CommercialImage           `json:"commercialImages,omitempty"`
	Metadata         map[string]any               `json:"metadata,omitempty"`
}

// Well-known metadata keys. The metadata map is intentionally untyped at the
// struct level to carry arbitrary auxiliary key-value data; these constants
// keep accessors for the handful of keys the core itself reads.
const (
	MetaResult          = "result"
	MetaExtensions      = "extensions"
	MetaCommercialURLs  = "commercialImageUrls"
)

// SetResult stores the terminal result under the well-known metadata key.
func (d *Data) SetResult(r *Result) {
	d.Metadata[MetaResult] = r
}

// Result returns the terminal result if one has been recorded.
func (d *Data) Result() (*Result, bool) {
	v, ok := d.Metadata[MetaResult]
	if !ok {
		return nil, false
	}
	r, ok := v.(*Result)
	return r, ok
}

// SetExtensions attaches structured failure details to the envelope without
// changing the processor's plain-string error contract.
func (d *Data) SetExtensions(ext map[string]any) {
	d.Metadata[MetaExtensions] = ext
}

// NewData returns an empty envelope ready for a fresh pipeline run.
func NewData() *Data {
	return &Data{Metadata: map[string]any{}}
}

// Clone returns a shallow-at-top-level, deep-at-metadata copy sufficient for
// the runner's merge semantics (see mergeInto in package stack).
func (d *Data) Clone() *Data {
	if d == nil {
		return NewData()
	}
	out := &Data{
		Video:            d.Video,
		Frames:           d.Frames,
		CommercialImages: d.CommercialImages,
		Metadata:         make(map[string]any, len(d.Metadata)),
	}
	for k, v := range d.Metadata {
		out.Metadata[k] = v
	}
	return out
}

// InferIO derives the capability set a Data value already satisfies, by
// inspecting which fields are populated. Used by the stack runner to infer
// the initial capability set from initialData rather than require a caller
// to supply it explicitly.
func (d *Data) InferIO() iotype.Set {
	s := iotype.NewSet()
	if d == nil {
		return s
	}
	if d.Video != nil && (d.Video.SourceURL != "" || d.Video.LocalPath != "") {
		s.Add(iotype.Video)
	}
	if len(d.Frames) > 0 {
		s.Add(iotype.Frames)
		allScored, allClassified := true, true
		for _, f := range d.Frames {
			if f.Score == nil {
				allScored = false
			}
			if len(f.Classification) == 0 {
				allClassified = false
			}
			if f.LocalPath != "" {
				s.Add(iotype.Images)
			}
		}
		if allScored {
			s.Add(iotype.FramesScores)
		}
		if allClassified {
			s.Add(iotype.FramesClassifications)
		}
	}
	if len(d.CommercialImages) > 0 {
		s.Add(iotype.Commercial)
	}
	return s
}

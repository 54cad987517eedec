package processors

import (
	"math"
	"sort"

	"github.com/framestudio/pipeline-core/internal/envelope"
	"github.com/framestudio/pipeline-core/internal/iotype"
	"github.com/framestudio/pipeline-core/internal/processor"
)

// FilterByScore keeps the top-scoring slice of the frame collection. It is a
// pure flow-shape processor: no external collaborator, deterministic given
// its options and the scored frames.
type FilterByScore struct{}

func NewFilterByScore() *FilterByScore {
	return &FilterByScore{}
}

func (f *FilterByScore) ID() string          { return "filter-by-score" }
func (f *FilterByScore) DisplayName() string { return "Filter Frames By Score" }
func (f *FilterByScore) StatusKey() envelope.Status { return envelope.StatusScoring }

func (f *FilterByScore) IO() processor.IO {
	return processor.IO{
		Requires: []iotype.Tag{iotype.Frames, iotype.FramesScores},
		Produces: []iotype.Tag{iotype.Frames},
	}
}

func (f *FilterByScore) Execute(ctx *processor.Context, data *envelope.Data, opts processor.Options) processor.Result {
	topKPercent := optFloat(opts, "topKPercent", 0.1)
	minFrames := optInt(opts, "minFrames", 1)
	maxFrames := optInt(opts, "maxFrames", len(data.Frames))

	n := len(data.Frames)
	if n == 0 {
		return processor.Result{Success: true, Data: envelope.NewData()}
	}

	ordered := make([]*envelope.Frame, n)
	copy(ordered, data.Frames)
	sort.SliceStable(ordered, func(i, j int) bool {
		return scoreOf(ordered[i]) > scoreOf(ordered[j])
	})

	keep := int(math.Ceil(float64(n) * topKPercent))
	if keep < minFrames {
		keep = minFrames
	}
	if keep > maxFrames {
		keep = maxFrames
	}
	if keep > n {
		keep = n
	}
	if keep < 0 {
		keep = 0
	}

	kept := make(map[string]bool, keep)
	for i := 0; i < keep; i++ {
		kept[ordered[i].ID] = true
	}

	frames := make([]*envelope.Frame, n)
	for i, original := range data.Frames {
		updated := *original
		updated.IsFinalSelection = kept[original.ID]
		frames[i] = &updated
	}

	ctx.ReportProgress(processor.Progress{Status: f.StatusKey(), Percentage: BandScoreFrames.End})

	out := envelope.NewData()
	out.Frames = frames
	return processor.Result{Success: true, Data: out}
}

func scoreOf(f *envelope.Frame) float64 {
	if f.Score == nil {
		return 0
	}
	return *f.Score
}

func optFloat(opts processor.Options, key string, def float64) float64 {
	v, ok := opts[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return def
	}
}

func optInt(opts processor.Options, key string, def int) int {
	v, ok := opts[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float32:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

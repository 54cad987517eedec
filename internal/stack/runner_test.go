package stack_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/framestudio/pipeline-core/internal/envelope"
	"github.com/framestudio/pipeline-core/internal/iotype"
	"github.com/framestudio/pipeline-core/internal/job"
	"github.com/framestudio/pipeline-core/internal/processor"
	"github.com/framestudio/pipeline-core/internal/stack"
)

type fakeProcessor struct {
	id       string
	requires []iotype.Tag
	produces []iotype.Tag
	run      func(ctx *processor.Context, data *envelope.Data, opts processor.Options) processor.Result
}

func (f *fakeProcessor) ID() string          { return f.id }
func (f *fakeProcessor) DisplayName() string { return f.id }
func (f *fakeProcessor) StatusKey() envelope.Status { return envelope.StatusProcessing }
func (f *fakeProcessor) IO() processor.IO {
	return processor.IO{Requires: f.requires, Produces: f.produces}
}
func (f *fakeProcessor) Execute(ctx *processor.Context, data *envelope.Data, opts processor.Options) processor.Result {
	if f.run != nil {
		return f.run(ctx, data, opts)
	}
	return processor.Result{Success: true, Data: envelope.NewData()}
}

func passthrough(id string, requires, produces []iotype.Tag) *fakeProcessor {
	return &fakeProcessor{id: id, requires: requires, produces: produces}
}

func newTestContext() *processor.Context {
	return &processor.Context{
		JobID:      "job-1",
		Config:     job.Config{},
		GoContext:  context.Background(),
		OnProgress: func(processor.Progress) {},
	}
}

func TestValidateSucceedsOnSatisfiedChain(t *testing.T) {
	reg := processor.NewRegistry(zap.NewNop())
	reg.Register(passthrough("download", []iotype.Tag{iotype.Video}, []iotype.Tag{iotype.Video}))
	reg.Register(passthrough("extract-frames", []iotype.Tag{iotype.Video}, []iotype.Tag{iotype.Frames, iotype.Images}))

	runner := stack.NewRunner(reg)
	steps := []stack.Step{{ProcessorID: "download"}, {ProcessorID: "extract-frames"}}

	result := runner.Validate(steps, iotype.NewSet(iotype.Video))
	assert.True(t, result.Valid)
	assert.True(t, result.AvailableOutputs.Has(iotype.Frames))
}

func TestValidateFailsWithMissingCapability(t *testing.T) {
	reg := processor.NewRegistry(zap.NewNop())
	reg.Register(passthrough("extract-frames", []iotype.Tag{iotype.Video}, []iotype.Tag{iotype.Frames}))

	runner := stack.NewRunner(reg)
	steps := []stack.Step{{ProcessorID: "extract-frames"}}

	result := runner.Validate(steps, iotype.NewSet())
	require.False(t, result.Valid)
	assert.Contains(t, result.Error, "extract-frames")
	assert.Contains(t, result.Error, "video")
}

func TestApplyConfigAppliesSwap(t *testing.T) {
	reg := processor.NewRegistry(zap.NewNop())
	reg.Register(passthrough("photoroom-bg-remove", []iotype.Tag{iotype.Frames, iotype.Images}, []iotype.Tag{iotype.Frames, iotype.Images}))
	reg.Register(passthrough("claid-bg-remove", []iotype.Tag{iotype.Frames, iotype.Images}, []iotype.Tag{iotype.Frames, iotype.Images}))

	runner := stack.NewRunner(reg)
	steps := []stack.Step{{ProcessorID: "photoroom-bg-remove"}}

	resolved, err := runner.ApplyConfig(steps, job.StackConfig{
		ProcessorSwaps: map[string]string{"photoroom-bg-remove": "claid-bg-remove"},
	})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "claid-bg-remove", resolved[0].ProcessorID)
}

func TestApplyConfigRejectsNonSwappablePair(t *testing.T) {
	reg := processor.NewRegistry(zap.NewNop())
	reg.Register(passthrough("download", []iotype.Tag{iotype.Video}, []iotype.Tag{iotype.Video}))
	reg.Register(passthrough("classify", []iotype.Tag{iotype.Frames}, []iotype.Tag{iotype.FramesClassifications}))

	runner := stack.NewRunner(reg)
	steps := []stack.Step{{ProcessorID: "download"}}

	_, err := runner.ApplyConfig(steps, job.StackConfig{
		ProcessorSwaps: map[string]string{"download": "classify"},
	})
	assert.Error(t, err)
}

func TestApplyConfigInsertsAfterAnchor(t *testing.T) {
	reg := processor.NewRegistry(zap.NewNop())
	reg.Register(passthrough("extract-frames", []iotype.Tag{iotype.Video}, []iotype.Tag{iotype.Frames, iotype.Images}))
	reg.Register(passthrough("rotate-image", []iotype.Tag{iotype.Frames, iotype.Images}, []iotype.Tag{iotype.Frames, iotype.Images}))
	reg.Register(passthrough("score-frames", []iotype.Tag{iotype.Frames, iotype.Images}, []iotype.Tag{iotype.FramesScores}))

	runner := stack.NewRunner(reg)
	steps := []stack.Step{{ProcessorID: "extract-frames"}, {ProcessorID: "score-frames"}}

	resolved, err := runner.ApplyConfig(steps, job.StackConfig{
		InsertProcessors: []job.InsertSpec{{After: "extract-frames", Processor: "rotate-image"}},
	})
	require.NoError(t, err)
	require.Len(t, resolved, 3)
	assert.Equal(t, []string{"extract-frames", "rotate-image", "score-frames"},
		[]string{resolved[0].ProcessorID, resolved[1].ProcessorID, resolved[2].ProcessorID})
}

func TestExecuteStopsOnProcessorFailure(t *testing.T) {
	reg := processor.NewRegistry(zap.NewNop())
	reg.Register(passthrough("download", []iotype.Tag{iotype.Video}, []iotype.Tag{iotype.Video}))
	reg.Register(&fakeProcessor{
		id:       "extract-frames",
		requires: []iotype.Tag{iotype.Video},
		produces: []iotype.Tag{iotype.Frames},
		run: func(ctx *processor.Context, data *envelope.Data, opts processor.Options) processor.Result {
			return processor.Result{Success: false, Error: "extraction failed"}
		},
	})
	reg.Register(passthrough("never-runs", []iotype.Tag{iotype.Frames}, []iotype.Tag{iotype.FramesScores}))

	runner := stack.NewRunner(reg)
	steps := []stack.Step{{ProcessorID: "download"}, {ProcessorID: "extract-frames"}, {ProcessorID: "never-runs"}}

	data := envelope.NewData()
	data.Video = &envelope.Video{SourceURL: "https://example.com/video.mp4"}

	result := runner.Execute(steps, newTestContext(), job.StackConfig{}, data, nil)
	assert.Equal(t, "extraction failed", result.Error)
}

func TestExecuteMergesMetadataKeyWise(t *testing.T) {
	reg := processor.NewRegistry(zap.NewNop())
	reg.Register(&fakeProcessor{
		id: "step-a",
		run: func(ctx *processor.Context, data *envelope.Data, opts processor.Options) processor.Result {
			out := envelope.NewData()
			out.Metadata["a"] = 1
			return processor.Result{Success: true, Data: out}
		},
	})
	reg.Register(&fakeProcessor{
		id: "step-b",
		run: func(ctx *processor.Context, data *envelope.Data, opts processor.Options) processor.Result {
			out := envelope.NewData()
			out.Metadata["b"] = 2
			return processor.Result{Success: true, Data: out}
		},
	})

	runner := stack.NewRunner(reg)
	steps := []stack.Step{{ProcessorID: "step-a"}, {ProcessorID: "step-b"}}

	result := runner.Execute(steps, newTestContext(), job.StackConfig{}, envelope.NewData(), nil)
	require.Empty(t, result.Error)
	assert.Equal(t, 1, result.Data.Metadata["a"])
	assert.Equal(t, 2, result.Data.Metadata["b"])
}

package processors_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framestudio/pipeline-core/internal/envelope"
	"github.com/framestudio/pipeline-core/internal/processor"
	"github.com/framestudio/pipeline-core/processors"
)

type fakeBackgroundRemover struct {
	fail map[string]bool
}

func (f *fakeBackgroundRemover) RemoveBackground(ctx *processor.Context, frame *envelope.Frame, outputDir string) (string, error) {
	if f.fail[frame.ID] {
		return "", errors.New("background removal failed")
	}
	return "/tmp/" + frame.ID + "-nobg.png", nil
}

func TestBgRemoveKeepsOriginalFrameOnPerFrameFailure(t *testing.T) {
	remover := &fakeBackgroundRemover{fail: map[string]bool{"f2": true}}
	step := processors.NewPhotoroomBgRemove(remover)

	data := envelope.NewData()
	data.Frames = []*envelope.Frame{
		{ID: "f1", LocalPath: "/tmp/f1.png"},
		{ID: "f2", LocalPath: "/tmp/f2.png"},
	}

	ctx := &processor.Context{GoContext: context.Background(), OnProgress: func(processor.Progress) {}}
	result := step.Execute(ctx, data, processor.Options{})

	require.True(t, result.Success, "a per-frame failure must not fail the whole batch")
	require.Len(t, result.Data.Frames, 2)

	byID := map[string]*envelope.Frame{}
	for _, f := range result.Data.Frames {
		byID[f.ID] = f
	}
	assert.Equal(t, "/tmp/f1-nobg.png", byID["f1"].LocalPath)
	assert.Equal(t, "/tmp/f2.png", byID["f2"].LocalPath, "failed frame keeps its original image")
}

func TestBgRemovePassesThroughWhenNoRemoverConfigured(t *testing.T) {
	step := processors.NewClaidBgRemove(nil)

	data := envelope.NewData()
	data.Frames = []*envelope.Frame{{ID: "f1", LocalPath: "/tmp/f1.png"}}

	ctx := &processor.Context{GoContext: context.Background(), OnProgress: func(processor.Progress) {}}
	result := step.Execute(ctx, data, processor.Options{})

	require.True(t, result.Success)
	require.Len(t, result.Data.Frames, 1)
	assert.Equal(t, "/tmp/f1.png", result.Data.Frames[0].LocalPath)
}

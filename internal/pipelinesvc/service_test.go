package pipelinesvc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/framestudio/pipeline-core/internal/envelope"
	"github.com/framestudio/pipeline-core/internal/job"
	"github.com/framestudio/pipeline-core/internal/pipelinesvc"
	"github.com/framestudio/pipeline-core/internal/processor"
	"github.com/framestudio/pipeline-core/internal/stack"
	"github.com/framestudio/pipeline-core/processors"
)

type fakeRepo struct {
	recordedResult  *envelope.Result
	recordedFailure string
}

func (f *fakeRepo) Get(ctx context.Context, id string) (*job.Row, error) { return nil, nil }
func (f *fakeRepo) UpdateStatus(ctx context.Context, id string, status envelope.Status) error {
	return nil
}
func (f *fakeRepo) UpdateProgress(ctx context.Context, id string, p job.Progress) error { return nil }
func (f *fakeRepo) RecordResult(ctx context.Context, id string, result envelope.Result) error {
	f.recordedResult = &result
	return nil
}
func (f *fakeRepo) RecordFailure(ctx context.Context, id string, errMsg string) error {
	f.recordedFailure = errMsg
	return nil
}

type fakeTemplates struct {
	byID map[string]stack.Template
}

func (f *fakeTemplates) Get(stackID string) (stack.Template, bool) {
	t, ok := f.byID[stackID]
	return t, ok
}
func (f *fakeTemplates) DefaultForStrategy(strategy string) string { return "minimal" }

func TestRunPipelineMinimalStackCompletesWithEmptyResult(t *testing.T) {
	repo := &fakeRepo{}
	logger := zap.NewNop()

	reg := processor.NewRegistry(logger)
	reg.RegisterAll(processors.BuildAll(processors.Collaborators{Repo: repo, Logger: logger}))

	runner := stack.NewRunner(reg)
	templates := &fakeTemplates{byID: map[string]stack.Template{
		"minimal": stack.CreateStack("minimal", "Minimal", []stack.Step{
			{ProcessorID: "complete-job"},
		}),
	}}

	svc := pipelinesvc.New(reg, runner, templates, repo, nil, logger, t.TempDir(), "video-pipeline", 10*time.Second, false)

	row := &job.Row{ID: "job-1", Status: envelope.StatusPending, ConfigJSON: []byte(`{"stack":{"stackId":"minimal"}}`)}

	result, err := svc.RunPipeline(context.Background(), row, nil, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.FramesAnalyzed)
	assert.Empty(t, result.FinalFrames)
	assert.NotNil(t, repo.recordedResult)
	assert.Empty(t, repo.recordedFailure)
}

func TestRunPipelineRecordsFailureOnUnknownStack(t *testing.T) {
	repo := &fakeRepo{}
	logger := zap.NewNop()

	reg := processor.NewRegistry(logger)
	runner := stack.NewRunner(reg)
	templates := &fakeTemplates{byID: map[string]stack.Template{}}

	svc := pipelinesvc.New(reg, runner, templates, repo, nil, logger, t.TempDir(), "video-pipeline", 10*time.Second, false)

	row := &job.Row{ID: "job-2", Status: envelope.StatusPending, ConfigJSON: []byte(`{"stack":{"stackId":"does-not-exist"}}`)}

	_, err := svc.RunPipeline(context.Background(), row, nil, nil, nil)
	require.Error(t, err)
	assert.NotEmpty(t, repo.recordedFailure)
}

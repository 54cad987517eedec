// Package pipelinesvc implements the per-job orchestration: resolving the
// stack, building the processor context, creating work directories,
// injecting initial data, running the stack, and recording terminal status.
package pipelinesvc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/framestudio/pipeline-core/internal/envelope"
	"github.com/framestudio/pipeline-core/internal/job"
	"github.com/framestudio/pipeline-core/internal/pipelinetimer"
	"github.com/framestudio/pipeline-core/internal/processor"
	"github.com/framestudio/pipeline-core/internal/stack"
	"github.com/framestudio/pipeline-core/internal/storage"
	"github.com/framestudio/pipeline-core/internal/tokentracker"
	"github.com/framestudio/pipeline-core/internal/workdir"
)

// Templates resolves a stack template by id, and the default stack id for a
// given processing strategy. Implementations are expected to be an
// in-process, read-only map populated at startup (mirroring the processor
// registry).
type Templates interface {
	Get(stackID string) (stack.Template, bool)
	DefaultForStrategy(strategy string) string
}

// Service orchestrates one job's run through the stack runner.
type Service struct {
	registry    *processor.Registry
	runner      *stack.Runner
	templates   Templates
	repo        job.Repository
	blobs       storage.Blobs
	logger      *zap.Logger
	tmpDir      string
	namespace   string
	jobTimeout  time.Duration
	debugMode   bool
}

// New constructs a Service. tmpDir/namespace determine the work-directory
// root; jobTimeout bounds a single RunPipeline call.
func New(
	registry *processor.Registry,
	runner *stack.Runner,
	templates Templates,
	repo job.Repository,
	blobs storage.Blobs,
	logger *zap.Logger,
	tmpDir, namespace string,
	jobTimeout time.Duration,
	debugMode bool,
) *Service {
	return &Service{
		registry:   registry,
		runner:     runner,
		templates:  templates,
		repo:       repo,
		blobs:      blobs,
		logger:     logger,
		tmpDir:     tmpDir,
		namespace:  namespace,
		jobTimeout: jobTimeout,
		debugMode:  debugMode,
	}
}

// JobResult is the terminal result of a successful run.
type JobResult = envelope.Result

// RunPipeline executes the full per-job flow: resolve the stack, merge
// configuration, build work directories, run the processor chain, and
// record the terminal outcome. On any configuration, validation, or
// processor-operational error it records the job as failed and returns the
// error; on success it returns the result. Recording the completed result on
// the job row is left to the stack's terminal complete-job processor.
func (s *Service) RunPipeline(
	parentCtx context.Context,
	row *job.Row,
	onProgress processor.ProgressFunc,
	callSiteStackCfg *job.StackConfig,
	initialData *envelope.Data,
) (*JobResult, error) {
	ctx, cancel := context.WithTimeout(parentCtx, s.jobTimeout)
	defer cancel()

	cfg, err := row.ParsedConfig()
	if err != nil {
		return nil, s.fail(ctx, row.ID, fmt.Errorf("invalid job configuration: %w", err))
	}

	stackID := resolveStackID(callSiteStackCfg, cfg, s.templates)
	tmpl, ok := s.templates.Get(stackID)
	if !ok {
		return nil, s.fail(ctx, row.ID, fmt.Errorf("unknown stack id: %s", stackID))
	}

	mergedStackCfg := cfg.Stack
	if callSiteStackCfg != nil {
		mergedStackCfg = mergedStackCfg.Merge(*callSiteStackCfg)
	}

	timer := pipelinetimer.New(s.logger, 2*time.Second)
	tokens := tokentracker.New()

	dirs, err := workdir.Create(s.tmpDir, s.namespace, row.ID)
	if err != nil {
		return nil, s.fail(ctx, row.ID, fmt.Errorf("failed to create work directories: %w", err))
	}
	defer s.cleanupWorkDirs(dirs)

	procCtx := &processor.Context{
		Job:             row,
		JobID:           row.ID,
		Config:          cfg,
		WorkDirs:        dirs,
		OnProgress:      wrapProgress(onProgress, s.repo, ctx, row.ID, s.logger),
		Timer:           timer,
		EffectiveConfig: effectiveConfigSnapshot(cfg),
		Tokens:          tokens,
		GoContext:       ctx,
	}

	prepared := prepareInitialData(initialData, row)

	execResult := s.runner.Execute(tmpl.Steps, procCtx, mergedStackCfg, prepared, timer)
	timer.LogSummary()

	if execResult.Error != "" {
		return nil, s.fail(ctx, row.ID, fmt.Errorf("%s", execResult.Error))
	}

	result := extractResult(execResult.Data)
	s.cleanupSourceVideo(ctx, row)

	return result, nil
}

func (s *Service) fail(ctx context.Context, jobID string, cause error) error {
	if s.logger != nil {
		s.logger.Error("pipeline run failed", zap.String("job_id", jobID), zap.Error(cause))
	}
	if s.repo != nil {
		if err := s.repo.RecordFailure(ctx, jobID, cause.Error()); err != nil {
			if s.logger != nil {
				s.logger.Error("failed to record job failure", zap.String("job_id", jobID), zap.Error(err))
			}
		}
	}
	return cause
}

func (s *Service) cleanupWorkDirs(dirs processor.WorkDirs) {
	if s.debugMode {
		return
	}
	if err := workdir.Remove(dirs); err != nil && s.logger != nil {
		s.logger.Warn("failed to remove work directory", zap.String("root", dirs.Root), zap.Error(err))
	}
}

// cleanupSourceVideo best-effort deletes the source video object if it is
// located under the managed storage's uploads/ prefix. Cleanup errors never
// fail the job.
func (s *Service) cleanupSourceVideo(ctx context.Context, row *job.Row) {
	if s.blobs == nil || row.VideoURL == "" {
		return
	}
	key := extractStorageKey(row.VideoURL)
	if !storage.IsUpload(key) {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil && s.logger != nil {
		s.logger.Warn("failed to delete source video", zap.String("job_id", row.ID), zap.Error(err))
	}
}

func resolveStackID(callSite *job.StackConfig, cfg job.Config, templates Templates) string {
	if callSite != nil && callSite.StackID != "" {
		return callSite.StackID
	}
	if cfg.Stack.StackID != "" {
		return cfg.Stack.StackID
	}
	return templates.DefaultForStrategy(cfg.PipelineStrategy)
}

// prepareInitialData injects the job row's videoUrl into the envelope if the
// caller didn't already supply one.
func prepareInitialData(initialData *envelope.Data, row *job.Row) *envelope.Data {
	data := initialData
	if data == nil {
		data = envelope.NewData()
	} else {
		data = data.Clone()
	}
	if row.VideoURL != "" && (data.Video == nil || data.Video.SourceURL == "") {
		if data.Video == nil {
			data.Video = &envelope.Video{}
		}
		data.Video.SourceURL = row.VideoURL
	}
	return data
}

// extractResult pulls JobResult from data.metadata.result, falling back to a
// derivation from envelope fields for robustness.
func extractResult(data *envelope.Data) *JobResult {
	if data == nil {
		return &JobResult{CommercialImages: map[string]map[string]string{}}
	}
	if r, ok := data.Result(); ok && r != nil {
		return r
	}
	return deriveResult(data)
}

func deriveResult(data *envelope.Data) *JobResult {
	result := &JobResult{
		FramesAnalyzed:   len(data.Frames),
		CommercialImages: map[string]map[string]string{},
	}
	for _, f := range data.Frames {
		if f.IsFinalSelection && f.RemoteURL != "" {
			result.FinalFrames = append(result.FinalFrames, f.RemoteURL)
		}
	}
	for _, c := range data.CommercialImages {
		if _, ok := result.CommercialImages[c.FrameID]; !ok {
			result.CommercialImages[c.FrameID] = map[string]string{}
		}
		result.CommercialImages[c.FrameID][c.Version] = c.URL
	}
	if result.FinalFrames == nil {
		result.FinalFrames = []string{}
	}
	result.VariantsDiscovered = len(data.Frames)
	return result
}

func effectiveConfigSnapshot(cfg job.Config) map[string]any {
	return map[string]any{
		"pipelineStrategy":   cfg.PipelineStrategy,
		"commercialVersions": cfg.CommercialVersions,
	}
}

// extractStorageKey strips a scheme+bucket prefix (e.g. "s3://bucket/") from
// a stored video URL, leaving the bare object key.
func extractStorageKey(url string) string {
	_, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	_, key, ok := strings.Cut(rest, "/")
	if !ok {
		return rest
	}
	return key
}

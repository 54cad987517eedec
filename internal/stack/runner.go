package stack

import (
	"fmt"

	"github.com/framestudio/pipeline-core/internal/envelope"
	"github.com/framestudio/pipeline-core/internal/iotype"
	"github.com/framestudio/pipeline-core/internal/job"
	"github.com/framestudio/pipeline-core/internal/pipelinetimer"
	"github.com/framestudio/pipeline-core/internal/processor"
)

// Runner validates, configures, and executes stacks against a Registry.
type Runner struct {
	registry *processor.Registry
}

// NewRunner binds a Runner to the given processor registry.
func NewRunner(registry *processor.Registry) *Runner {
	return &Runner{registry: registry}
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid             bool
	Error             string
	AvailableOutputs  iotype.Set
}

// Validate sequentially maintains a capability set starting from initialIO;
// it fails at the first step whose Requires are not satisfied, naming the
// offending processor id, the missing tag, and the step index.
func (r *Runner) Validate(steps []Step, initialIO iotype.Set) ValidationResult {
	have := initialIO.Clone()
	for i, step := range steps {
		p, err := r.registry.GetOrThrow(step.ProcessorID)
		if err != nil {
			return ValidationResult{Valid: false, Error: err.Error()}
		}
		io := p.IO()
		if missing := have.Missing(io.Requires); len(missing) > 0 {
			return ValidationResult{
				Valid: false,
				Error: fmt.Sprintf("step %d (%s) requires '%s' which is not available", i, step.ProcessorID, missing[0]),
			}
		}
		have.Add(io.Produces...)
	}
	return ValidationResult{Valid: true, AvailableOutputs: have}
}

// GetRequiredInputs returns the minimal initial capability set the stack
// would need: the union of required tags not already produced by an earlier
// step.
func (r *Runner) GetRequiredInputs(steps []Step) []iotype.Tag {
	have := iotype.NewSet()
	required := iotype.NewSet()
	for _, step := range steps {
		p, ok := r.registry.Get(step.ProcessorID)
		if !ok {
			continue
		}
		io := p.IO()
		for _, t := range io.Requires {
			if !have.Has(t) {
				required.Add(t)
			}
		}
		have.Add(io.Produces...)
	}
	return required.List()
}

// GetAvailableIO returns the capability set after executing the first
// upToIndex+1 steps, starting from an empty initial set.
func (r *Runner) GetAvailableIO(steps []Step, upToIndex int) iotype.Set {
	have := iotype.NewSet()
	for i, step := range steps {
		if i > upToIndex {
			break
		}
		p, ok := r.registry.Get(step.ProcessorID)
		if !ok {
			continue
		}
		have.Add(p.IO().Produces...)
	}
	return have
}

// ValidateSwaps checks that each (from -> to) pair is registered and
// swappable.
func (r *Runner) ValidateSwaps(swaps map[string]string) error {
	for from, to := range swaps {
		if !r.registry.Has(from) {
			return fmt.Errorf("swap source processor %q is not registered", from)
		}
		if !r.registry.Has(to) {
			return fmt.Errorf("swap target processor %q is not registered", to)
		}
		if !r.registry.AreSwappable(from, to) {
			return fmt.Errorf("processors %q and %q are not swappable", from, to)
		}
	}
	return nil
}

// ApplyConfig returns a new step list: swaps are applied first (replacing
// processor ids in place), then inserts (resolved by anchor id and
// before/after position, ties broken by insertion order), then per-step
// options are merged with the overlay winning.
func (r *Runner) ApplyConfig(steps []Step, cfg job.StackConfig) ([]Step, error) {
	if err := r.ValidateSwaps(cfg.ProcessorSwaps); err != nil {
		return nil, err
	}

	swapped := make([]Step, len(steps))
	for i, s := range steps {
		id := s.ProcessorID
		if to, ok := cfg.ProcessorSwaps[id]; ok {
			id = to
		}
		swapped[i] = Step{ProcessorID: id, Options: s.Options}
	}

	withInserts, err := applyInserts(swapped, cfg.InsertProcessors)
	if err != nil {
		return nil, err
	}

	for i, s := range withInserts {
		if overlay, ok := cfg.ProcessorOptions[s.ProcessorID]; ok {
			withInserts[i].Options = mergeOptions(s.Options, overlay)
		}
	}
	return withInserts, nil
}

func mergeOptions(base processor.Options, overlay map[string]any) processor.Options {
	out := make(processor.Options, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func applyInserts(steps []Step, inserts []job.InsertSpec) ([]Step, error) {
	if len(inserts) == 0 {
		return steps, nil
	}

	type pending struct {
		step   Step
		before bool
	}
	byAnchor := map[string][]pending{}
	var anchorOrder []string
	seenAnchor := map[string]bool{}

	for _, ins := range inserts {
		anchor := ins.After
		before := false
		if anchor == "" {
			anchor = ins.Before
			before = true
		}
		if anchor == "" {
			return nil, fmt.Errorf("insert for processor %q has no anchor (before/after)", ins.Processor)
		}
		if !seenAnchor[anchor] {
			seenAnchor[anchor] = true
			anchorOrder = append(anchorOrder, anchor)
		}
		byAnchor[anchor] = append(byAnchor[anchor], pending{
			step:   Step{ProcessorID: ins.Processor, Options: processor.Options(ins.Options)},
			before: before,
		})
	}

	out := make([]Step, 0, len(steps)+len(inserts))
	for _, s := range steps {
		for _, p := range byAnchor[s.ProcessorID] {
			if p.before {
				out = append(out, p.step)
			}
		}
		out = append(out, s)
		for _, p := range byAnchor[s.ProcessorID] {
			if !p.before {
				out = append(out, p.step)
			}
		}
	}
	return out, nil
}

// ExecResult is the outcome of Execute.
type ExecResult struct {
	Data  *envelope.Data
	Error string
}

// Execute applies cfg to steps, validates the resulting order against the
// capability set inferred from initialData, then runs each step in order.
// Execution order is frozen at this call: swaps and inserts only happen
// here, never mid-run. A step returning success=false stops the stack
// immediately.
func (r *Runner) Execute(steps []Step, ctx *processor.Context, cfg job.StackConfig, initialData *envelope.Data, timer *pipelinetimer.Timer) ExecResult {
	resolved, err := r.ApplyConfig(steps, cfg)
	if err != nil {
		return ExecResult{Error: err.Error()}
	}

	data := initialData
	if data == nil {
		data = envelope.NewData()
	}

	initialIO := data.InferIO()
	validation := r.Validate(resolved, initialIO)
	if !validation.Valid {
		return ExecResult{Error: validation.Error}
	}

	totalSteps := len(resolved)
	for _, step := range resolved {
		p, err := r.registry.GetOrThrow(step.ProcessorID)
		if err != nil {
			return ExecResult{Error: err.Error()}
		}

		if timer != nil {
			timer.StartStep(step.ProcessorID)
		}
		ctx.ReportProgress(processor.Progress{
			Status:     p.StatusKey(),
			Step:       step.ProcessorID,
			TotalSteps: totalSteps,
		})

		result := p.Execute(ctx, data, step.Options)
		if timer != nil {
			timer.EndStep()
		}

		if !result.Success {
			return ExecResult{Data: data, Error: result.Error}
		}
		data = mergeInto(data, result.Data)
	}
	return ExecResult{Data: data}
}

// mergeInto applies result additions onto base: shallow merge at top level,
// deep (key-wise) merge for Metadata.
func mergeInto(base, additions *envelope.Data) *envelope.Data {
	if additions == nil {
		return base
	}
	out := base.Clone()
	if additions.Video != nil {
		out.Video = additions.Video
	}
	if additions.Frames != nil {
		out.Frames = additions.Frames
	}
	if additions.CommercialImages != nil {
		out.CommercialImages = additions.CommercialImages
	}
	for k, v := range additions.Metadata {
		out.Metadata[k] = v
	}
	return out
}

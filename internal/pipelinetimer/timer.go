// Package pipelinetimer implements the hierarchical per-job timer: a single
// active "step" (a named pipeline phase) and any number of concurrent
// "operations" labelled by type.
package pipelinetimer

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// apiCallOperationTypes are always logged regardless of the slow-operation
// threshold: these are the external-provider calls worth a permanent record
// even when fast.
var apiCallOperationTypes = map[string]bool{
	"provider.call":   true,
	"storage.upload":  true,
	"storage.presign": true,
	"storage.delete":  true,
}

type stepRecord struct {
	name     string
	start    time.Time
	duration time.Duration
}

type opRecord struct {
	opType   string
	start    time.Time
	duration time.Duration
	metadata map[string]any
}

// Timer records step and operation durations for one job run.
type Timer struct {
	logger *zap.Logger

	mu           sync.Mutex
	steps        []stepRecord
	currentStep  *stepRecord
	ops          []opRecord
	slowThreshold time.Duration
}

// New returns a Timer that logs operations slower than slowThreshold at
// debug level, and any operation in apiCallOperationTypes unconditionally.
func New(logger *zap.Logger, slowThreshold time.Duration) *Timer {
	if slowThreshold <= 0 {
		slowThreshold = 2 * time.Second
	}
	return &Timer{logger: logger, slowThreshold: slowThreshold}
}

// StartStep closes out any currently-active step and begins a new one. At
// most one step is active at a time.
func (t *Timer) StartStep(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closeCurrentStepLocked()
	t.currentStep = &stepRecord{name: name, start: time.Now()}
}

func (t *Timer) closeCurrentStepLocked() {
	if t.currentStep == nil {
		return
	}
	t.currentStep.duration = time.Since(t.currentStep.start)
	t.steps = append(t.steps, *t.currentStep)
	t.currentStep = nil
}

// EndStep closes the currently-active step, if any.
func (t *Timer) EndStep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeCurrentStepLocked()
}

// OperationHandle closes out a single recorded operation.
type OperationHandle struct {
	timer    *Timer
	opType   string
	start    time.Time
	metadata map[string]any
}

// StartOperation records the start of a possibly-concurrent operation
// labelled by opType; call End on the returned handle when it finishes.
func (t *Timer) StartOperation(opType string, metadata map[string]any) *OperationHandle {
	return &OperationHandle{timer: t, opType: opType, start: time.Now(), metadata: metadata}
}

// End records the operation's duration and logs it if it qualifies.
func (h *OperationHandle) End() {
	d := time.Since(h.start)
	h.timer.mu.Lock()
	h.timer.ops = append(h.timer.ops, opRecord{
		opType:   h.opType,
		start:    h.start,
		duration: d,
		metadata: h.metadata,
	})
	slow := d >= h.timer.slowThreshold
	logger := h.timer.logger
	h.timer.mu.Unlock()

	if logger == nil {
		return
	}
	if apiCallOperationTypes[h.opType] {
		logger.Info("pipeline operation", zap.String("type", h.opType), zap.Duration("duration", d))
	} else if slow {
		logger.Debug("slow pipeline operation", zap.String("type", h.opType), zap.Duration("duration", d))
	}
}

// OperationStat is the aggregated (count, total, avg, min, max) for one
// operation type.
type OperationStat struct {
	Type  string        `json:"type"`
	Count int           `json:"count"`
	Total time.Duration `json:"total"`
	Avg   time.Duration `json:"avg"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
}

// StepStat is the total time spent in one named step across the run (a step
// name may recur if the runner re-enters it, though in practice each step
// runs once per job).
type StepStat struct {
	Name  string        `json:"name"`
	Total time.Duration `json:"total"`
}

// Summary is the full aggregation of a job's timer data, with both slices
// sorted by total time descending.
type Summary struct {
	Operations []OperationStat `json:"operations"`
	Steps      []StepStat      `json:"steps"`
}

// Summary aggregates recorded steps and operations, closing out any step
// still active.
func (t *Timer) Summary() Summary {
	t.mu.Lock()
	t.closeCurrentStepLocked()

	opAgg := map[string]*OperationStat{}
	for _, op := range t.ops {
		s, ok := opAgg[op.opType]
		if !ok {
			s = &OperationStat{Type: op.opType, Min: op.duration, Max: op.duration}
			opAgg[op.opType] = s
		}
		s.Count++
		s.Total += op.duration
		if op.duration < s.Min {
			s.Min = op.duration
		}
		if op.duration > s.Max {
			s.Max = op.duration
		}
	}
	stepAgg := map[string]*StepStat{}
	var stepOrder []string
	for _, st := range t.steps {
		s, ok := stepAgg[st.name]
		if !ok {
			s = &StepStat{Name: st.name}
			stepAgg[st.name] = s
			stepOrder = append(stepOrder, st.name)
		}
		s.Total += st.duration
	}
	t.mu.Unlock()

	out := Summary{}
	for _, s := range opAgg {
		s.Avg = s.Total / time.Duration(s.Count)
		out.Operations = append(out.Operations, *s)
	}
	for _, name := range stepOrder {
		out.Steps = append(out.Steps, *stepAgg[name])
	}
	sortOpsDesc(out.Operations)
	sortStepsDesc(out.Steps)
	return out
}

// LogSummary writes the aggregated summary to the logger at info level.
func (t *Timer) LogSummary() {
	if t.logger == nil {
		return
	}
	s := t.Summary()
	for _, st := range s.Steps {
		t.logger.Info("step timing", zap.String("step", st.Name), zap.Duration("total", st.Total))
	}
	for _, op := range s.Operations {
		t.logger.Info("operation timing",
			zap.String("type", op.Type),
			zap.Int("count", op.Count),
			zap.Duration("total", op.Total),
			zap.Duration("avg", op.Avg))
	}
}

func sortOpsDesc(ops []OperationStat) {
	for i := 1; i < len(ops); i++ {
		for j := i; j > 0 && ops[j].Total > ops[j-1].Total; j-- {
			ops[j], ops[j-1] = ops[j-1], ops[j]
		}
	}
}

func sortStepsDesc(steps []StepStat) {
	for i := 1; i < len(steps); i++ {
		for j := i; j > 0 && steps[j].Total > steps[j-1].Total; j-- {
			steps[j], steps[j-1] = steps[j-1], steps[j]
		}
	}
}

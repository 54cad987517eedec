// Package processor defines the processor contract, its execution context,
// and the process-wide registry of processor instances.
package processor

import (
	"context"

	"github.com/framestudio/pipeline-core/internal/envelope"
	"github.com/framestudio/pipeline-core/internal/iotype"
	"github.com/framestudio/pipeline-core/internal/job"
	"github.com/framestudio/pipeline-core/internal/pipelinetimer"
	"github.com/framestudio/pipeline-core/internal/tokentracker"
)

// IO declares a processor's capability requirements and outputs.
type IO struct {
	Requires []iotype.Tag
	Produces []iotype.Tag
}

// Options is the per-step options bag, supplied by the stack template and/or
// overridden at the call site.
type Options map[string]any

// ProgressFunc is invoked by processors (and by the terminal processor at
// 100%) to report progress. Percentage must be monotonically non-decreasing
// within a single run; processors are trusted to respect their documented
// band.
type ProgressFunc func(Progress)

// Progress is one progress update.
type Progress struct {
	Status     envelope.Status
	Percentage int
	Message    string
	Step       string
	TotalSteps int
}

// Context is constructed once per job by the pipeline service and threaded
// through every step of the stack.
type Context struct {
	Job              *job.Row
	JobID            string
	Config           job.Config
	WorkDirs         WorkDirs
	OnProgress       ProgressFunc
	Timer            *pipelinetimer.Timer
	EffectiveConfig  map[string]any
	Tokens           *tokentracker.Tracker
	GoContext        context.Context
}

// WorkDirs is the set of ephemeral per-job directories the pipeline service
// creates before execution and removes on every exit path.
type WorkDirs struct {
	Root       string
	Video      string
	Frames     string
	Candidates string
	Extracted  string
	Final      string
	Commercial string
}

// ReportProgress is a nil-safe convenience wrapper around ctx.OnProgress.
func (c *Context) ReportProgress(p Progress) {
	if c.OnProgress != nil {
		c.OnProgress(p)
	}
}

// Result is what Execute returns: either the envelope additions to merge in
// on success, or an error string on failure. Structured failure detail, if
// any, travels inside Data.Metadata[envelope.MetaExtensions].
type Result struct {
	Success bool
	Data    *envelope.Data
	Error   string
}

// Processor is a stateless (across invocations) unit identified by ID, with
// a declared IO contract and a single execute operation. Implementations may
// have external side effects but must not retain in-memory state between
// calls.
type Processor interface {
	ID() string
	DisplayName() string
	StatusKey() envelope.Status
	IO() IO
	Execute(ctx *Context, data *envelope.Data, opts Options) Result
}

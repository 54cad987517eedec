// Package stack implements stack templates and the runner that validates,
// configures, and executes them against a processor context and envelope.
package stack

import "github.com/framestudio/pipeline-core/internal/processor"

// Step is one (processorId, options) pair in a stack.
type Step struct {
	ProcessorID string
	Options     processor.Options
}

// Template is an ordered list of steps with a name and id.
type Template struct {
	ID    string
	Name  string
	Steps []Step
}

// CreateStack is a trivial constructor for a named, ordered step list.
func CreateStack(id, name string, steps []Step) Template {
	return Template{ID: id, Name: name, Steps: steps}
}

package processor

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/framestudio/pipeline-core/internal/iotype"
)

// Registry is the process-wide map from processor id to instance. It is
// populated once at startup (see setup in cmd/worker) and is immutable
// thereafter; no locking is needed because mutation is confined to startup
// and tests (Clear).
type Registry struct {
	logger *zap.Logger
	order  []string
	byID   map[string]Processor
}

// NewRegistry returns an empty, insertion-ordered registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{logger: logger, byID: make(map[string]Processor)}
}

// Register adds p, keyed by p.ID(). Overwriting an existing id logs a
// warning but still replaces the entry.
func (r *Registry) Register(p Processor) {
	id := p.ID()
	if _, exists := r.byID[id]; exists {
		if r.logger != nil {
			r.logger.Warn("processor id already registered, overwriting", zap.String("id", id))
		}
	} else {
		r.order = append(r.order, id)
	}
	r.byID[id] = p
}

// RegisterAll registers each processor in order.
func (r *Registry) RegisterAll(ps []Processor) {
	for _, p := range ps {
		r.Register(p)
	}
}

// Get returns the processor registered under id, if any.
func (r *Registry) Get(id string) (Processor, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// GetOrThrow returns the processor registered under id, or an error.
func (r *Registry) GetOrThrow(id string) (Processor, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown processor id: %s", id)
	}
	return p, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// GetIds returns every registered id in registration order.
func (r *Registry) GetIds() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// GetAll returns every registered processor in registration order.
func (r *Registry) GetAll() []Processor {
	out := make([]Processor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// GetProducers returns every processor that declares tag in its Produces.
func (r *Registry) GetProducers(tag iotype.Tag) []Processor {
	var out []Processor
	for _, id := range r.order {
		p := r.byID[id]
		for _, t := range p.IO().Produces {
			if t == tag {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// GetConsumers returns every processor that declares tag in its Requires.
func (r *Registry) GetConsumers(tag iotype.Tag) []Processor {
	var out []Processor
	for _, id := range r.order {
		p := r.byID[id]
		for _, t := range p.IO().Requires {
			if t == tag {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// AreSwappable reports whether processors a and b are interchangeable: their
// Requires and Produces lists are equal as multisets.
func (r *Registry) AreSwappable(aID, bID string) bool {
	a, ok := r.byID[aID]
	if !ok {
		return false
	}
	b, ok := r.byID[bID]
	if !ok {
		return false
	}
	aIO, bIO := a.IO(), b.IO()
	return iotype.SameMultiset(aIO.Requires, bIO.Requires) && iotype.SameMultiset(aIO.Produces, bIO.Produces)
}

// Summary describes one registered processor for diagnostics.
type Summary struct {
	ID          string
	DisplayName string
	Requires    []iotype.Tag
	Produces    []iotype.Tag
}

// Summary returns a diagnostic listing of every registered processor.
func (r *Registry) Summary() []Summary {
	out := make([]Summary, 0, len(r.order))
	for _, id := range r.order {
		p := r.byID[id]
		out = append(out, Summary{
			ID:          p.ID(),
			DisplayName: p.DisplayName(),
			Requires:    p.IO().Requires,
			Produces:    p.IO().Produces,
		})
	}
	return out
}

// Clear empties the registry. Tests only.
func (r *Registry) Clear() {
	r.order = nil
	r.byID = make(map[string]Processor)
}

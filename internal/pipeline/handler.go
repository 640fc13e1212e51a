package pipeline

import (
	"context"
	"fmt"

	"archivist/internal/catalog"
)

// Result reports how a step handler finished.
type Result struct {
	// Skipped marks steps whose preconditions made them a no-op (for
	// example OCR when the native text layer sufficed). Skipped steps are
	// logged with outcome skipped and the pipeline advances normally.
	Skipped bool
	// Message is recorded in the processing log.
	Message string
	// ProcessorName and ProcessorVersion attribute the work for the log.
	ProcessorName    string
	ProcessorVersion string
	// InputHash is the content hash of the primary source the step read.
	// Steps that operate on derived text rather than a stored blob leave
	// it empty.
	InputHash string
	// Cost estimates external spend incurred by the step, in the configured
	// currency unit. Only the cloud OCR step reports a nonzero cost.
	Cost float64
}

// Job carries everything a handler needs to run one step for one item.
type Job struct {
	Item  *catalog.Item
	State *catalog.ProcessingState
	RunID string
}

// Handler executes one pipeline step. Implementations classify their errors
// with the services error taxonomy: permanent errors escalate to review,
// everything else retries.
type Handler interface {
	Step() catalog.Step
	Execute(ctx context.Context, job *Job) (Result, error)
}

// Registry maps steps to their handlers.
type Registry struct {
	handlers map[catalog.Step]Handler
}

// NewRegistry builds a registry from the given handlers.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	registry := &Registry{handlers: make(map[catalog.Step]Handler, len(handlers))}
	for _, handler := range handlers {
		step := handler.Step()
		if _, dup := registry.handlers[step]; dup {
			return nil, fmt.Errorf("pipeline: duplicate handler for step %s", step)
		}
		registry.handlers[step] = handler
	}
	return registry, nil
}

// Resolve returns the handler for a step.
func (r *Registry) Resolve(step catalog.Step) (Handler, error) {
	handler, ok := r.handlers[step]
	if !ok {
		return nil, fmt.Errorf("pipeline: no handler for step %s", step)
	}
	return handler, nil
}

package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/parley/pkg/domain"
)

// Handler executes one node shape.
//
// Handle returns the id of the next node to continue with in the same turn, or ""
// to suspend the turn until the next inbound request. A returned error is a fault
// that ends the turn. Blocking work (outbound calls, AI completions) happens inside
// Handle under ctx.
type Handler interface {
	// Name identifies the handler in logs, traces and metrics.
	Name() string
	CanHandle(node *domain.Node, rt *Runtime, vars *Store, program *domain.Program) bool
	Handle(ctx context.Context, node *domain.Node, rt *Runtime, vars *Store, program *domain.Program) (string, error)
}

// Registry is an ordered list of handlers. Order is priority: the first handler
// accepting a node wins, so a command handler placed first sees every node before
// the ordinary input handlers.
type Registry struct {
	handlers []Handler
}

// NewRegistry creates a registry preserving the given order.
func NewRegistry(handlers ...Handler) *Registry {
	return &Registry{handlers: append([]Handler(nil), handlers...)}
}

// Handlers returns the handlers in priority order.
func (r *Registry) Handlers() []Handler {
	return append([]Handler(nil), r.handlers...)
}

// Find returns the first handler accepting node.
func (r *Registry) Find(node *domain.Node, rt *Runtime, vars *Store, program *domain.Program) (Handler, bool) {
	for _, h := range r.handlers {
		if h.CanHandle(node, rt, vars, program) {
			return h, true
		}
	}
	return nil, false
}

// Resolve returns the first handler accepting node. A node no handler accepts is a
// program fault.
func (r *Registry) Resolve(node *domain.Node, rt *Runtime, vars *Store, program *domain.Program) (Handler, error) {
	h, ok := r.Find(node, rt, vars, program)
	if !ok {
		return nil, &domain.ProgramFaultError{
			ProgramID: program.ID,
			NodeID:    node.ID,
			Err:       fmt.Errorf("%w (type %q)", domain.ErrNoHandler, node.Type),
		}
	}
	return h, nil
}

// Dispatch runs the handler Resolve selects.
func (r *Registry) Dispatch(ctx context.Context, node *domain.Node, rt *Runtime, vars *Store, program *domain.Program) (string, error) {
	h, err := r.Resolve(node, rt, vars, program)
	if err != nil {
		return "", err
	}
	return h.Handle(ctx, node, rt, vars, program)
}

package handlers

import (
	"context"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
)

// IntentHandler waits for the single intent bound to the node.
type IntentHandler struct {
	noMatch *NoMatchHandler
}

func NewIntentHandler(noMatch *NoMatchHandler) *IntentHandler {
	if noMatch == nil {
		noMatch = NewNoMatchHandler(nil)
	}
	return &IntentHandler{noMatch: noMatch}
}

func (h *IntentHandler) Name() string { return "intent" }

func (h *IntentHandler) CanHandle(node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) bool {
	_, ok := node.BoundIntent()
	return node.Type == domain.NodeIntent && ok
}

func (h *IntentHandler) Handle(ctx context.Context, node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) (string, error) {
	if !rt.HasPendingRequest() {
		resetNoMatch(rt.Stack().Top())
		return "", nil
	}
	req := rt.Request()
	name, _ := node.BoundIntent()
	if req.IsIntent() && req.IntentName() == name {
		rt.ConsumeRequest()
		ApplyMappings(rt, node.Intent.Mappings, req)
		resetNoMatch(rt.Stack().Top())
		return rt.Follow(node.Next), nil
	}
	return h.noMatch.Handle(ctx, node, rt, vars)
}

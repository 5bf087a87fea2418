package handlers

import (
	"context"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
)

// InteractionHandler waits for input and routes on the node's ordered interactions.
type InteractionHandler struct {
	noMatch *NoMatchHandler
}

// NewInteractionHandler creates the handler. A nil noMatch reprompts silently.
func NewInteractionHandler(noMatch *NoMatchHandler) *InteractionHandler {
	if noMatch == nil {
		noMatch = NewNoMatchHandler(nil)
	}
	return &InteractionHandler{noMatch: noMatch}
}

func (h *InteractionHandler) Name() string { return "interaction" }

func (h *InteractionHandler) CanHandle(node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) bool {
	return node.Type == domain.NodeInteraction
}

func (h *InteractionHandler) Handle(ctx context.Context, node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) (string, error) {
	if !rt.HasPendingRequest() {
		resetNoMatch(rt.Stack().Top())
		if choices := choicesOf(node); len(choices) > 0 {
			rt.AddTrace(domain.Trace{Type: domain.TraceChoice, Payload: domain.ChoicePayload{Choices: choices}})
		}
		return "", nil
	}

	req := rt.Request()
	for i, in := range node.Interactions {
		if !MatchEvent(in.Event, req, vars) {
			continue
		}
		rt.ConsumeRequest()
		ApplyMappings(rt, in.Event.Mappings, req)
		resetNoMatch(rt.Stack().Top())
		rt.AddTrace(domain.Trace{Type: domain.TracePath, Payload: domain.PathPayload{Path: "choice:" + itoa(i+1)}})
		return rt.Follow(in.NextID), nil
	}
	return h.noMatch.Handle(ctx, node, rt, vars)
}

func choicesOf(node *domain.Node) []domain.Choice {
	var out []domain.Choice
	for _, in := range node.Interactions {
		if in.Label != "" {
			out = append(out, domain.Choice{Name: in.Label})
		}
	}
	return out
}

package handlers

import (
	"context"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/ai"
	"github.com/aretw0/parley/pkg/domain"
)

// GenerativeHandler asks the AI model for a completion and speaks it.
// No usable output is not an error: the node simply continues.
type GenerativeHandler struct {
	model ai.Model
}

func NewGenerativeHandler(model ai.Model) *GenerativeHandler {
	return &GenerativeHandler{model: model}
}

func (h *GenerativeHandler) Name() string { return "generative" }

func (h *GenerativeHandler) CanHandle(node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) bool {
	return node.Type == domain.NodeGenerative && node.Generative != nil && h.model != nil
}

func (h *GenerativeHandler) Handle(ctx context.Context, node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) (string, error) {
	p := *node.Generative
	p.System = runtime.Interpolate(p.System, vars)
	prompt := runtime.Interpolate(p.Prompt, vars)

	text, ok, err := h.model.GenerateCompletion(ctx, prompt, ai.ParamsFrom(p))
	if err != nil {
		rt.Logger().Warn("generative completion failed", "node_id", node.ID, "err", err)
		ok = false
	}
	if !ok {
		rt.Debug("generative model produced no output", node.Type)
		return rt.Follow(node.Next), nil
	}

	rt.AddTrace(domain.Trace{Type: domain.TraceGenerative, Payload: domain.SpeakPayload{Message: text}})
	if p.Variable != "" {
		rt.SetVariable(p.Variable, text)
	}
	return rt.Follow(node.Next), nil
}

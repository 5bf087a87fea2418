package handlers

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/ai"
	"github.com/aretw0/parley/pkg/domain"
)

// noMatchCounter is the frame storage key counting consecutive no-matches.
const noMatchCounter = "noMatches"

// NoMatchHandler decides what an input node does with a request none of its events accept:
// a generative reply, the next static reprompt, or the configured fallback path.
type NoMatchHandler struct {
	generator *ai.NoMatchGenerator
}

// NewNoMatchHandler creates a no-match handler. A nil generator disables generative replies.
func NewNoMatchHandler(generator *ai.NoMatchGenerator) *NoMatchHandler {
	return &NoMatchHandler{generator: generator}
}

func (h *NoMatchHandler) Handle(ctx context.Context, node *domain.Node, rt *runtime.Runtime, vars *runtime.Store) (string, error) {
	rt.ConsumeRequest()
	frame := rt.Stack().Top()
	count := noMatchCount(frame) + 1
	frame.Storage().Set(noMatchCounter, json.Number(strconv.Itoa(count)))

	nm := node.NoMatch
	if nm == nil {
		rt.Debug("no match, reprompting", node.Type)
		return "", nil
	}

	if nm.Generative != nil && h.generator != nil {
		memory, _ := vars.Get(ai.MemoryVariable)
		prompt := runtime.Interpolate(nm.Generative.Prompt, vars)
		text, ok, err := h.generator.Generate(ctx, *nm.Generative, ai.MemoryFromVariable(memory), prompt, planOf(rt))
		if err != nil {
			rt.Logger().Warn("generative no-match failed", "node_id", node.ID, "err", err)
		}
		if ok {
			rt.AddTrace(domain.Trace{Type: domain.TraceGenerative, Payload: domain.SpeakPayload{Message: text}})
			return "", nil
		}
	}

	if count <= len(nm.Prompts) {
		speakText(rt, runtime.Interpolate(nm.Prompts[count-1], vars))
		return "", nil
	}
	if nm.NodeID != "" {
		resetNoMatch(frame)
		rt.Debug("no match limit reached, following no-match path", node.Type)
		return nm.NodeID, nil
	}
	if len(nm.Prompts) > 0 {
		speakText(rt, runtime.Interpolate(nm.Prompts[len(nm.Prompts)-1], vars))
	}
	return "", nil
}

func noMatchCount(frame *runtime.Frame) int {
	v, ok := frame.Storage().Get(noMatchCounter)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(runtime.Stringify(v))
	if err != nil {
		return 0
	}
	return n
}

func resetNoMatch(frame *runtime.Frame) {
	frame.Storage().Delete(noMatchCounter)
}

func planOf(rt *runtime.Runtime) string {
	if rt.Version() == nil {
		return ""
	}
	return rt.Version().Prototype.Plan
}

func speakText(rt *runtime.Runtime, text string) {
	rt.AddTrace(domain.Trace{Type: domain.TraceSpeak, Payload: domain.SpeakPayload{Message: text}})
}

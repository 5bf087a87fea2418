package ai

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
)

// MemoryVariable holds the conversation transcript used as chat memory.
const MemoryVariable = "vf_memory"

// DefaultUpgradeMessage is returned when a plan may not use the requested model.
const DefaultUpgradeMessage = "This model is not available on your current plan. Please upgrade to use it."

// PlanGate restricts models by billing plan.
//
// When Enabled, a request for one of RestrictedModels from a project whose plan is set
// and outside AllowedPlans short-circuits to Message without calling the model. When disabled,
// the model is always called.
type PlanGate struct {
	Enabled          bool
	AllowedPlans     []string
	RestrictedModels []string
	Message          string
}

// blocks only applies to projects that carry a plan.
func (g PlanGate) blocks(model, plan string) bool {
	if !g.Enabled || plan == "" || !slices.Contains(g.RestrictedModels, model) {
		return false
	}
	return !slices.Contains(g.AllowedPlans, plan)
}

// NoMatchGenerator answers unmatched input with a chat completion grounded on the
// conversation memory.
type NoMatchGenerator struct {
	model  Model
	gate   PlanGate
	now    func() time.Time
	logger *slog.Logger
}

// GeneratorOption configures a NoMatchGenerator.
type GeneratorOption func(*NoMatchGenerator)

func WithPlanGate(g PlanGate) GeneratorOption {
	return func(n *NoMatchGenerator) {
		n.gate = g
	}
}

func WithClock(now func() time.Time) GeneratorOption {
	return func(n *NoMatchGenerator) {
		n.now = now
	}
}

func WithLogger(logger *slog.Logger) GeneratorOption {
	return func(n *NoMatchGenerator) {
		n.logger = logger
	}
}

func NewNoMatchGenerator(model Model, opts ...GeneratorOption) *NoMatchGenerator {
	g := &NoMatchGenerator{
		model:  model,
		now:    time.Now,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.gate.Message == "" {
		g.gate.Message = DefaultUpgradeMessage
	}
	return g
}

// Generate produces a reply to prompt. ok == false means no usable output and the
// caller falls back to its static reprompts.
func (g *NoMatchGenerator) Generate(ctx context.Context, params domain.AIParams, memory []Message, prompt, plan string) (string, bool, error) {
	if g.gate.blocks(params.Model, plan) {
		g.logger.Debug("model restricted by plan", "model", params.Model, "plan", plan)
		return g.gate.Message, true, nil
	}
	if g.model == nil {
		return "", false, nil
	}

	system := "Current time: " + g.now().UTC().Format(time.RFC1123)
	if params.System != "" {
		system = params.System + "\n\n" + system
	}
	// System instructions follow the transcript.
	messages := make([]Message, 0, len(memory)+2)
	messages = append(messages, memory...)
	messages = append(messages, Message{Role: RoleSystem, Content: system})
	if prompt != "" {
		messages = append(messages, Message{Role: RoleUser, Content: prompt})
	}

	text, ok, err := g.model.GenerateChatCompletion(ctx, messages, ParamsFrom(params))
	if err != nil || !ok || strings.TrimSpace(text) == "" {
		return "", false, err
	}
	return text, true, nil
}

// MemoryFromVariable converts the stored transcript into chat messages.
// Entries that are not {role, content} objects are skipped.
func MemoryFromVariable(v any) []Message {
	var raw []any
	switch val := v.(type) {
	case []any:
		raw = val
	case string:
		if err := json.Unmarshal([]byte(val), &raw); err != nil {
			return nil
		}
	default:
		return nil
	}

	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)
		if content == "" {
			continue
		}
		switch Role(role) {
		case RoleAssistant, RoleSystem:
		default:
			role = string(RoleUser)
		}
		out = append(out, Message{Role: Role(role), Content: content})
	}
	return out
}

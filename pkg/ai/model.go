// Package ai defines the contract of generative models used by the runtime and the
// plan-gated generator that answers unmatched user input.
package ai

import (
	"context"
	"errors"
	"time"

	"github.com/aretw0/parley/pkg/domain"
)

// DefaultTimeout bounds each completion.
const DefaultTimeout = 20 * time.Second

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Params tune a completion.
type Params struct {
	Model       string
	System      string
	Temperature float64
	MaxTokens   int
}

// ParamsFrom converts node parameters.
func ParamsFrom(p domain.AIParams) Params {
	return Params{
		Model:       p.Model,
		System:      p.System,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}
}

// Model generates text. ok == false means "no usable output", which callers handle
// with fallback logic; errors are reserved for faults.
type Model interface {
	GenerateCompletion(ctx context.Context, prompt string, params Params) (text string, ok bool, err error)
	GenerateChatCompletion(ctx context.Context, messages []Message, params Params) (text string, ok bool, err error)
}

type timeoutModel struct {
	next    Model
	timeout time.Duration
}

// WithTimeout bounds every call of m. A call hitting the deadline yields no output
// instead of an error.
func WithTimeout(m Model, d time.Duration) Model {
	if d <= 0 {
		d = DefaultTimeout
	}
	return &timeoutModel{next: m, timeout: d}
}

func (t *timeoutModel) GenerateCompletion(ctx context.Context, prompt string, params Params) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return noOutputOnDeadline(t.next.GenerateCompletion(ctx, prompt, params))
}

func (t *timeoutModel) GenerateChatCompletion(ctx context.Context, messages []Message, params Params) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return noOutputOnDeadline(t.next.GenerateChatCompletion(ctx, messages, params))
}

func noOutputOnDeadline(text string, ok bool, err error) (string, bool, error) {
	if errors.Is(err, context.DeadlineExceeded) {
		return "", false, nil
	}
	return text, ok, err
}

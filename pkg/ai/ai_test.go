package ai_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/ai"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	calls    int
	messages []ai.Message
	reply    string
	ok       bool
	err      error
	block    bool
}

func (f *fakeModel) GenerateCompletion(ctx context.Context, prompt string, params ai.Params) (string, bool, error) {
	return f.GenerateChatCompletion(ctx, []ai.Message{{Role: ai.RoleUser, Content: prompt}}, params)
}

func (f *fakeModel) GenerateChatCompletion(ctx context.Context, messages []ai.Message, params ai.Params) (string, bool, error) {
	f.calls++
	f.messages = messages
	if f.block {
		<-ctx.Done()
		return "", false, ctx.Err()
	}
	return f.reply, f.ok, f.err
}

func TestWithTimeout_DeadlineMeansNoOutput(t *testing.T) {
	m := ai.WithTimeout(&fakeModel{block: true}, 10*time.Millisecond)

	text, ok, err := m.GenerateCompletion(context.Background(), "hi", ai.Params{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, text)

	_, ok, err = m.GenerateChatCompletion(context.Background(), nil, ai.Params{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithTimeout_PassesThroughFaults(t *testing.T) {
	boom := errors.New("boom")
	m := ai.WithTimeout(&fakeModel{err: boom}, time.Second)

	_, _, err := m.GenerateCompletion(context.Background(), "hi", ai.Params{})
	assert.ErrorIs(t, err, boom)
}

func TestNoMatchGenerator_PlanGate(t *testing.T) {
	gate := ai.PlanGate{Enabled: true, AllowedPlans: []string{"pro", "team"}, RestrictedModels: []string{"gpt-4"}}
	params := domain.AIParams{Model: "gpt-4"}

	t.Run("restricted model on starter plan short-circuits", func(t *testing.T) {
		model := &fakeModel{reply: "hello", ok: true}
		g := ai.NewNoMatchGenerator(model, ai.WithPlanGate(gate))

		text, ok, err := g.Generate(context.Background(), params, nil, "hi", "starter")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, ai.DefaultUpgradeMessage, text)
		assert.Zero(t, model.calls)
	})

	t.Run("allowed plan calls the model", func(t *testing.T) {
		model := &fakeModel{reply: "hello", ok: true}
		g := ai.NewNoMatchGenerator(model, ai.WithPlanGate(gate))

		text, ok, err := g.Generate(context.Background(), params, nil, "hi", "pro")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "hello", text)
		assert.Equal(t, 1, model.calls)
	})

	t.Run("project without a plan calls the model", func(t *testing.T) {
		model := &fakeModel{reply: "hello", ok: true}
		g := ai.NewNoMatchGenerator(model, ai.WithPlanGate(gate))

		text, ok, err := g.Generate(context.Background(), params, nil, "hi", "")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "hello", text)
		assert.Equal(t, 1, model.calls)
	})

	t.Run("disabled gate always calls the model", func(t *testing.T) {
		model := &fakeModel{reply: "hello", ok: true}
		disabled := gate
		disabled.Enabled = false
		g := ai.NewNoMatchGenerator(model, ai.WithPlanGate(disabled))

		text, ok, err := g.Generate(context.Background(), params, nil, "hi", "starter")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "hello", text)
		assert.Equal(t, 1, model.calls)
	})
}

func TestNoMatchGenerator_BuildsMessages(t *testing.T) {
	model := &fakeModel{reply: "sure", ok: true}
	clock := func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	g := ai.NewNoMatchGenerator(model, ai.WithClock(clock))

	memory := ai.MemoryFromVariable([]any{
		map[string]any{"role": "user", "content": "hi"},
		map[string]any{"role": "assistant", "content": "hello!"},
		"garbage",
	})
	_, ok, err := g.Generate(context.Background(), domain.AIParams{System: "Be brief."}, memory, "what now?", "")
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, model.messages, 4)
	assert.Equal(t, ai.Message{Role: ai.RoleUser, Content: "hi"}, model.messages[0])
	assert.Equal(t, ai.Message{Role: ai.RoleAssistant, Content: "hello!"}, model.messages[1])
	assert.Equal(t, ai.RoleSystem, model.messages[2].Role)
	assert.Equal(t, "Be brief.\n\nCurrent time: Wed, 01 May 2024 12:00:00 UTC", model.messages[2].Content)
	assert.Equal(t, ai.Message{Role: ai.RoleUser, Content: "what now?"}, model.messages[3])
}

func TestNoMatchGenerator_NoOutput(t *testing.T) {
	for _, model := range []*fakeModel{{ok: false}, {reply: "  ", ok: true}} {
		g := ai.NewNoMatchGenerator(model)
		text, ok, err := g.Generate(context.Background(), domain.AIParams{}, nil, "x", "")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, text)
	}

	g := ai.NewNoMatchGenerator(nil)
	_, ok, err := g.Generate(context.Background(), domain.AIParams{}, nil, "x", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryFromVariable_JSONString(t *testing.T) {
	msgs := ai.MemoryFromVariable(`[{"role":"user","content":"a"},{"role":"bot","content":"b"}]`)
	assert.Equal(t, []ai.Message{{Role: ai.RoleUser, Content: "a"}, {Role: ai.RoleUser, Content: "b"}}, msgs)
	assert.Nil(t, ai.MemoryFromVariable(42))
}

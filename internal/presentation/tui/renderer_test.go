package tui_test

import (
	"bytes"
	"testing"

	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceWriter(t *testing.T) {
	var out bytes.Buffer
	w := &tui.TraceWriter{Out: &out, Render: tui.Plain}

	ended, err := w.Write([]domain.Trace{
		{Type: domain.TraceSpeak, Payload: domain.SpeakPayload{Message: "Hello"}},
		{Type: domain.TraceDebug, Payload: domain.DebugPayload{Message: "hidden"}},
		{Type: domain.TraceSpeak, Payload: map[string]any{"message": "From JSON"}},
		{Type: domain.TraceChoice, Payload: domain.ChoicePayload{Choices: []domain.Choice{{Name: "yes"}, {Name: "no"}}}},
	})
	require.NoError(t, err)
	assert.False(t, ended)
	assert.Contains(t, out.String(), "Hello")
	assert.Contains(t, out.String(), "From JSON")
	assert.Contains(t, out.String(), "[yes] [no]")
	assert.NotContains(t, out.String(), "hidden")
}

func TestTraceWriter_DebugAndEnd(t *testing.T) {
	var out bytes.Buffer
	w := &tui.TraceWriter{Out: &out, Debug: true}

	ended, err := w.Write([]domain.Trace{
		{Type: domain.TraceDebug, Payload: domain.DebugPayload{Message: "entering menu"}},
		{Type: domain.TracePath, Payload: domain.PathPayload{Path: "choice:1"}},
		{Type: domain.TraceEnd},
	})
	require.NoError(t, err)
	assert.True(t, ended)
	assert.Contains(t, out.String(), "entering menu")
	assert.Contains(t, out.String(), "choice:1")
}

func TestTraceWriter_BadPayload(t *testing.T) {
	w := &tui.TraceWriter{Out: &bytes.Buffer{}}
	_, err := w.Write([]domain.Trace{{Type: domain.TraceSpeak, Payload: func() {}}})
	assert.Error(t, err)
}

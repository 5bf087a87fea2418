package observability_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *observability.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Hooks(t *testing.T) {
	m := observability.NewMetrics()
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnNodeEnter(ctx, &domain.NodeEvent{NodeType: domain.NodeSpeak, Handler: "speak"})
	hooks.OnNodeEnter(ctx, &domain.NodeEvent{NodeType: domain.NodeSpeak, Handler: "speak"})
	hooks.OnAPICall(ctx, &domain.APICallEvent{Hostname: "example.com", Status: 200, Duration: 10 * time.Millisecond})
	hooks.OnAPICall(ctx, &domain.APICallEvent{Hostname: "example.com", Throttled: true})
	hooks.OnAPICall(ctx, &domain.APICallEvent{Hostname: "example.com", Err: errors.New("refused")})
	hooks.OnTurnEnd(ctx, &domain.TurnEvent{Steps: 3})
	hooks.OnTurnEnd(ctx, &domain.TurnEvent{Steps: 1, Ended: true})

	body := scrape(t, m)
	assert.Contains(t, body, `parley_node_visits_total{handler="speak",node_type="speak"} 2`)
	assert.Contains(t, body, `parley_api_calls_total{result="success"} 1`)
	assert.Contains(t, body, `parley_api_calls_total{result="throttled"} 1`)
	assert.Contains(t, body, `parley_api_calls_total{result="error"} 1`)
	assert.Contains(t, body, `parley_turns_total{outcome="suspended"} 1`)
	assert.Contains(t, body, `parley_turns_total{outcome="ended"} 1`)
	assert.Contains(t, body, `parley_turn_steps_count 2`)
	assert.Contains(t, body, "go_goroutines")
}

func TestChain(t *testing.T) {
	var calls []string
	first := domain.LifecycleHooks{
		OnTurnEnd: func(context.Context, *domain.TurnEvent) { calls = append(calls, "first") },
	}
	second := domain.LifecycleHooks{
		OnTurnEnd:   func(context.Context, *domain.TurnEvent) { calls = append(calls, "second") },
		OnNodeEnter: func(context.Context, *domain.NodeEvent) { calls = append(calls, "node") },
	}

	hooks := observability.Chain(first, domain.LifecycleHooks{}, second)
	require.NotNil(t, hooks.OnTurnEnd)
	require.NotNil(t, hooks.OnNodeEnter)
	assert.Nil(t, hooks.OnAPICall)

	hooks.OnTurnEnd(context.Background(), &domain.TurnEvent{})
	hooks.OnNodeEnter(context.Background(), &domain.NodeEvent{})
	assert.Equal(t, []string{"first", "second", "node"}, calls)
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	hooks := observability.LogHooks(logger)

	hooks.OnNodeEnter(context.Background(), &domain.NodeEvent{ProgramID: "main", NodeID: "n1", NodeType: domain.NodeSpeak})
	hooks.OnTurnEnd(context.Background(), &domain.TurnEvent{VersionID: "v1", Err: errors.New("boom")})

	out := buf.String()
	assert.Contains(t, out, "msg=node_enter")
	assert.Contains(t, out, "node_id=n1")
	assert.Contains(t, out, "level=WARN msg=turn_end")
	assert.Contains(t, out, "err=boom")
}

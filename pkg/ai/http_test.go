package ai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, handler func(req map[string]any) (int, string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		status, body := handler(req)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPModel_GenerateCompletion(t *testing.T) {
	var got map[string]any
	srv := completionServer(t, func(req map[string]any) (int, string) {
		got = req
		return 200, `{"choices":[{"message":{"role":"assistant","content":"  Hello!  "}}]}`
	})
	m := ai.NewHTTPModel(srv.URL+"/v1/", ai.WithAPIKey("sk-test"), ai.WithDefaultModel("small"))

	text, ok, err := m.GenerateCompletion(context.Background(), "hi", ai.Params{System: "be brief", MaxTokens: 20})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Hello!", text)

	assert.Equal(t, "small", got["model"])
	assert.EqualValues(t, 20, got["max_tokens"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "hi", msgs[1].(map[string]any)["content"])
}

func TestHTTPModel_NoOutput(t *testing.T) {
	srv := completionServer(t, func(map[string]any) (int, string) {
		return 200, `{"choices":[]}`
	})
	m := ai.NewHTTPModel(srv.URL+"/v1", ai.WithAPIKey("sk-test"))

	_, ok, err := m.GenerateChatCompletion(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "hi"}}, ai.Params{Model: "big"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPModel_StatusError(t *testing.T) {
	srv := completionServer(t, func(map[string]any) (int, string) {
		return 429, `{"error":"rate limited"}`
	})
	m := ai.NewHTTPModel(srv.URL+"/v1", ai.WithAPIKey("sk-test"))

	_, ok, err := m.GenerateCompletion(context.Background(), "hi", ai.Params{})
	assert.False(t, ok)
	var statusErr *ai.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 429, statusErr.StatusCode)
}

func TestHTTPModel_TimeoutMeansNoOutput(t *testing.T) {
	srv := completionServer(t, func(map[string]any) (int, string) {
		time.Sleep(200 * time.Millisecond)
		return 200, `{"choices":[{"message":{"content":"late"}}]}`
	})
	m := ai.WithTimeout(ai.NewHTTPModel(srv.URL+"/v1", ai.WithAPIKey("sk-test")), 20*time.Millisecond)

	_, ok, err := m.GenerateCompletion(context.Background(), "hi", ai.Params{})
	assert.NoError(t, err)
	assert.False(t, ok)
}

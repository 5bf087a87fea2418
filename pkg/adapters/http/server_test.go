package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/parley/internal/apicall"
	"github.com/aretw0/parley/internal/interact"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureAPI() *memory.DataAPI {
	version := &domain.Version{
		ID:            "v1",
		RootProgramID: "root",
		Prototype: domain.Prototype{Model: domain.PrototypeModel{
			Slots: []domain.Slot{{Key: "s1", Name: "size", Type: domain.SlotType{Value: "custom"}, Inputs: []string{"small", "large"}}},
			Intents: []domain.Intent{{
				Name:   "order",
				Slots:  []domain.IntentSlot{{ID: "s1"}},
				Inputs: []domain.IntentInput{{Text: "i want a {{[size].s1}} pizza"}},
			}},
		}},
	}
	root := &domain.Program{ID: "root", StartID: "start", Nodes: map[string]*domain.Node{
		"start": {ID: "start", Type: domain.NodeStart, Next: "menu"},
		"menu": {ID: "menu", Type: domain.NodeInteraction, Interactions: []domain.Interaction{{
			Event:  domain.Event{Type: domain.RequestIntent, Intent: "order", Mappings: []domain.SlotMapping{{Slot: "size", Variable: "size"}}},
			NextID: "done",
		}}},
		"done": {ID: "done", Type: domain.NodeSpeak, Speak: &domain.SpeakData{Messages: []string{"One {size} pizza."}}},
	}}
	api := memory.NewDataAPI(version, root)

	api.PutVersion(&domain.Version{ID: "broken", RootProgramID: "broken"})
	api.PutProgram(&domain.Program{ID: "broken", StartID: "start", Nodes: map[string]*domain.Node{
		"start": {ID: "start", Type: domain.NodeStart, Next: "ghost"},
	}})
	return api
}

func newTestServer(opts ...Option) (*Server, *session.Manager) {
	sessions := session.NewManager(memory.NewStore())
	opts = append([]Option{WithSessions(sessions)}, opts...)
	return NewServer(interact.New(fixtureAPI()), opts...), sessions
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type turnResponse struct {
	State *domain.State `json:"state"`
	Trace []struct {
		Type    domain.TraceType `json:"type"`
		Payload json.RawMessage  `json:"payload"`
	} `json:"trace"`
}

func decodeTurn(t *testing.T, w *httptest.ResponseRecorder) turnResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp turnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (r turnResponse) spoken() []string {
	var out []string
	for _, tr := range r.Trace {
		if tr.Type != domain.TraceSpeak {
			continue
		}
		var p domain.SpeakPayload
		if json.Unmarshal(tr.Payload, &p) == nil {
			out = append(out, p.Message)
		}
	}
	return out
}

func TestGetHealth(t *testing.T) {
	s, _ := newTestServer()
	w := do(t, s.Routes(), "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatelessInteract(t *testing.T) {
	s, _ := newTestServer()
	h := s.Routes()

	w := do(t, h, "GET", "/state/v1/initial", "")
	require.Equal(t, http.StatusOK, w.Code)
	var initial domain.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &initial))
	require.Len(t, initial.Stack, 1)
	assert.Equal(t, "start", initial.Stack[0].NodeID)

	body, err := json.Marshal(map[string]any{"state": initial})
	require.NoError(t, err)
	first := decodeTurn(t, do(t, h, "POST", "/state/v1/interact", string(body)))
	assert.Equal(t, "menu", first.State.Stack[0].NodeID)

	body, err = json.Marshal(map[string]any{"state": first.State, "request": domain.NewTextRequest("I want a large pizza")})
	require.NoError(t, err)
	second := decodeTurn(t, do(t, h, "POST", "/state/v1/interact", string(body)))
	assert.Equal(t, []string{"One large pizza."}, second.spoken())
	assert.Empty(t, second.State.Stack)
}

func TestStatefulInteract(t *testing.T) {
	s, sessions := newTestServer()
	h := s.Routes()

	first := decodeTurn(t, do(t, h, "POST", "/state/user/u1/interact", `{}`, VersionHeader, "v1"))
	assert.Nil(t, first.State, "stateful responses carry only traces")

	state, err := sessions.Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "menu", state.Stack[0].NodeID)

	second := decodeTurn(t, do(t, h, "POST", "/state/user/u1/interact",
		`{"request":{"type":"text","payload":"i want a small pizza"}}`, VersionHeader, "v1"))
	assert.Equal(t, []string{"One small pizza."}, second.spoken())

	w := do(t, h, "GET", "/state/user/u1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, "DELETE", "/state/user/u1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, "GET", "/state/user/u1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatefulInteract_FailedTurnKeepsSession(t *testing.T) {
	s, sessions := newTestServer()
	h := s.Routes()

	decodeTurn(t, do(t, h, "POST", "/state/user/u1/interact", `{}`, VersionHeader, "v1"))
	before, err := sessions.Load(context.Background(), "u1")
	require.NoError(t, err)

	w := do(t, h, "POST", "/state/user/u1/interact",
		fmt.Sprintf(`{"request":{"type":"text","payload":%q}}`, strings.Repeat("a", interact.DefaultMaxInputSize+1)),
		VersionHeader, "v1")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	after, err := sessions.Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestInteract_Errors(t *testing.T) {
	s, _ := newTestServer(WithMaxBodyBytes(256))
	h := s.Routes()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		header []string
		want   int
	}{
		{"unknown version", "GET", "/state/missing/initial", "", nil, http.StatusNotFound},
		{"invalid body", "POST", "/state/v1/interact", `{`, nil, http.StatusBadRequest},
		{"body too large", "POST", "/state/v1/interact", `{"request":{"type":"text","payload":"` + strings.Repeat("a", 300) + `"}}`, nil, http.StatusRequestEntityTooLarge},
		{"program fault", "POST", "/state/broken/interact", `{}`, nil, http.StatusUnprocessableEntity},
		{"missing version header", "POST", "/state/user/u1/interact", `{}`, nil, http.StatusBadRequest},
		{"unknown session", "GET", "/state/user/nobody", "", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, tt.body, tt.header...)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestStatusCode(t *testing.T) {
	badRequest := &apicall.BadRequestError{Message: "invalid url"}
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("api handler: %w", badRequest), http.StatusBadRequest},
		{interact.ErrInvalidUTF8, http.StatusBadRequest},
		{&domain.ProgramFaultError{ProgramID: "p", NodeID: "n", Err: domain.ErrProgramNotFound}, http.StatusUnprocessableEntity},
		{fmt.Errorf("load: %w", domain.ErrVersionNotFound), http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusCode(tt.err), tt.err.Error())
	}
}

func TestRoutes_WithoutSessions(t *testing.T) {
	h := NewHandler(interact.New(fixtureAPI()))
	w := do(t, h, "POST", "/state/user/u1/interact", `{}`, VersionHeader, "v1")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("parley_turns_total 1\n"))
	})
	s, _ := newTestServer(WithMetricsHandler(metrics))
	w := do(t, s.Routes(), "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "parley_turns_total")
}

func TestSubscribeEvents_User(t *testing.T) {
	s, _ := newTestServer()
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/state/user/u1/events?types=speak", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: ping\n", line)

	require.Eventually(t, func() bool { return s.Streams.Subscribers("u1") == 1 }, time.Second, 10*time.Millisecond)

	post := func(body string) {
		req, err := http.NewRequest("POST", ts.URL+"/state/user/u1/interact", strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set(VersionHeader, "v1")
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode)
	}
	// The launch turn speaks nothing and is filtered out.
	post(`{}`)
	post(`{"request":{"type":"text","payload":"i want a small pizza"}}`)

	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: {") {
			break
		}
	}
	assert.Contains(t, line, "One small pizza.")
	assert.NotContains(t, line, `"type":"end"`)
}

func TestStreamManager_UnsubscribeIsIdempotent(t *testing.T) {
	sm := NewStreamManager()
	ch, cancel := sm.Subscribe("u1")
	sm.Broadcast("u1", "hello")
	assert.Equal(t, "hello", <-ch)

	cancel()
	cancel()
	assert.Equal(t, 0, sm.Subscribers("u1"))
	_, ok := <-ch
	assert.False(t, ok)

	sm.Broadcast("u1", "nobody listens")
}

func TestFilterTraces(t *testing.T) {
	msg := `{"trace":[{"type":"speak","payload":{"message":"hi"}},{"type":"end"}]}`

	out, ok := filterTraces(msg, map[domain.TraceType]bool{domain.TraceEnd: true})
	require.True(t, ok)
	assert.JSONEq(t, `{"trace":[{"type":"end"}]}`, out)

	_, ok = filterTraces(msg, map[domain.TraceType]bool{domain.TraceChoice: true})
	assert.False(t, ok)
}

package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	programs map[string]*domain.Program
}

func (f *fakeAPI) GetVersion(ctx context.Context, id string) (*domain.Version, error) {
	return nil, domain.ErrVersionNotFound
}

func (f *fakeAPI) GetProgram(ctx context.Context, id string) (*domain.Program, error) {
	p, ok := f.programs[id]
	if !ok {
		return nil, domain.ErrProgramNotFound
	}
	return p, nil
}

// funcHandler adapts closures to runtime.Handler.
type funcHandler struct {
	name   string
	accept func(node *domain.Node) bool
	handle func(ctx context.Context, node *domain.Node, rt *runtime.Runtime) (string, error)
}

func (h *funcHandler) Name() string { return h.name }

func (h *funcHandler) CanHandle(node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) bool {
	return h.accept(node)
}

func (h *funcHandler) Handle(ctx context.Context, node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) (string, error) {
	return h.handle(ctx, node, rt)
}

func ofType(t domain.NodeType) func(*domain.Node) bool {
	return func(n *domain.Node) bool { return n.Type == t }
}

func testRegistry() *runtime.Registry {
	return runtime.NewRegistry(
		&funcHandler{name: "speak", accept: ofType(domain.NodeSpeak), handle: func(ctx context.Context, node *domain.Node, rt *runtime.Runtime) (string, error) {
			rt.AddTrace(domain.Trace{Type: domain.TraceSpeak, Payload: domain.SpeakPayload{Message: node.Speak.Messages[0]}})
			return rt.Follow(node.Next), nil
		}},
		&funcHandler{name: "capture", accept: ofType(domain.NodeCapture), handle: func(ctx context.Context, node *domain.Node, rt *runtime.Runtime) (string, error) {
			if !rt.HasPendingRequest() {
				return "", nil
			}
			rt.ConsumeRequest()
			rt.SetVariable(node.Capture.Variable, rt.Request().Text)
			return rt.Follow(node.Next), nil
		}},
		&funcHandler{name: "flow", accept: ofType(domain.NodeFlow), handle: func(ctx context.Context, node *domain.Node, rt *runtime.Runtime) (string, error) {
			rt.Stack().Top().SetNodeID(node.Next)
			if _, err := rt.EnterProgram(ctx, node.Flow.ProgramID); err != nil {
				return "", err
			}
			return "", nil
		}},
		&funcHandler{name: "start", accept: ofType(domain.NodeStart), handle: func(ctx context.Context, node *domain.Node, rt *runtime.Runtime) (string, error) {
			return rt.Follow(node.Next), nil
		}},
	)
}

func speak(id, msg, next string) *domain.Node {
	return &domain.Node{ID: id, Type: domain.NodeSpeak, Speak: &domain.SpeakData{Messages: []string{msg}}, Next: next}
}

func messages(traces []domain.Trace) []string {
	var out []string
	for _, t := range traces {
		if p, ok := t.Payload.(domain.SpeakPayload); ok {
			out = append(out, p.Message)
		}
	}
	return out
}

func newRuntime(api *fakeAPI, state *domain.State, req *domain.Request, opts ...runtime.Option) *runtime.Runtime {
	return runtime.New(&domain.Version{ID: "v1", RootProgramID: "root"}, state, req, api, testRegistry(), opts...)
}

func TestUpdate_SuspendsOnInputAndResumes(t *testing.T) {
	api := &fakeAPI{programs: map[string]*domain.Program{
		"root": {ID: "root", StartID: "start", Nodes: map[string]*domain.Node{
			"start": {ID: "start", Type: domain.NodeStart, Next: "hello"},
			"hello": speak("hello", "what is your name?", "ask"),
			"ask":   {ID: "ask", Type: domain.NodeCapture, Capture: &domain.CaptureData{Variable: "name"}, Next: "bye"},
			"bye":   speak("bye", "bye", ""),
		}},
	}}
	ctx := context.Background()

	rt := newRuntime(api, domain.NewState("root", "start", nil), nil)
	require.NoError(t, rt.Update(ctx))
	assert.Equal(t, []string{"what is your name?"}, messages(rt.Traces()))
	assert.False(t, rt.HasEnded())
	assert.Equal(t, runtime.ActionEnd, rt.Action())

	state := rt.State()
	require.Len(t, state.Stack, 1)
	assert.Equal(t, "ask", state.Stack[0].NodeID)

	rt = newRuntime(api, state, domain.NewTextRequest("Ana"))
	assert.Equal(t, runtime.ActionRequest, rt.Action())
	require.NoError(t, rt.Update(ctx))

	assert.Equal(t, []string{"bye"}, messages(rt.Traces()))
	assert.True(t, rt.HasEnded())
	final := rt.State()
	assert.Empty(t, final.Stack)
	assert.Equal(t, "Ana", final.Variables["name"])
	traces := rt.Traces()
	assert.Equal(t, domain.TraceEnd, traces[len(traces)-1].Type)
}

func TestUpdate_DoesNotMutateInputState(t *testing.T) {
	api := &fakeAPI{programs: map[string]*domain.Program{
		"root": {ID: "root", StartID: "ask", Nodes: map[string]*domain.Node{
			"ask": {ID: "ask", Type: domain.NodeCapture, Capture: &domain.CaptureData{Variable: "name"}},
		}},
	}}
	state := domain.NewState("root", "ask", domain.Variables{"name": "old"})
	before := state.Clone()

	rt := newRuntime(api, state, domain.NewTextRequest("new"))
	require.NoError(t, rt.Update(context.Background()))

	assert.Equal(t, before, state)
	assert.Equal(t, "new", rt.State().Variables["name"])
}

func TestUpdate_FlowPushesAndReturnsToCaller(t *testing.T) {
	api := &fakeAPI{programs: map[string]*domain.Program{
		"root": {ID: "root", StartID: "enter", Nodes: map[string]*domain.Node{
			"enter": {ID: "enter", Type: domain.NodeFlow, Flow: &domain.FlowData{ProgramID: "sub"}, Next: "after"},
			"after": speak("after", "back in root", "wait"),
			"wait":  {ID: "wait", Type: domain.NodeCapture, Capture: &domain.CaptureData{Variable: "x"}},
		}},
		"sub": {ID: "sub", StartID: "s1", Variables: []string{"local"}, Nodes: map[string]*domain.Node{
			"s1": speak("s1", "inside sub", ""),
		}},
	}}

	rt := newRuntime(api, domain.NewState("root", "enter", nil), nil)
	require.NoError(t, rt.Update(context.Background()))

	assert.Equal(t, []string{"inside sub", "back in root"}, messages(rt.Traces()))
	state := rt.State()
	require.Len(t, state.Stack, 1)
	assert.Equal(t, "wait", state.Stack[0].NodeID)
}

func TestUpdate_FrameVariablesShadowGlobals(t *testing.T) {
	api := &fakeAPI{programs: map[string]*domain.Program{
		"root": {ID: "root", StartID: "ask", Variables: []string{"answer"}, Nodes: map[string]*domain.Node{
			"ask": {ID: "ask", Type: domain.NodeCapture, Capture: &domain.CaptureData{Variable: "answer"}, Next: "ask2"},
			"ask2": {ID: "ask2", Type: domain.NodeCapture, Capture: &domain.CaptureData{Variable: "other"}},
		}},
	}}
	state := domain.NewState("root", "ask", domain.Variables{"answer": "global"})
	state.Stack[0].Variables["answer"] = "local"

	rt := newRuntime(api, state, domain.NewTextRequest("yes"))
	require.NoError(t, rt.Update(context.Background()))

	out := rt.State()
	assert.Equal(t, "yes", out.Stack[0].Variables["answer"], "frame-owned key is written to the frame")
	assert.Equal(t, "global", out.Variables["answer"])
	v, _ := rt.View().Get("answer")
	assert.Equal(t, "yes", v)
}

func TestUpdate_CycleIsBounded(t *testing.T) {
	api := &fakeAPI{programs: map[string]*domain.Program{
		"root": {ID: "root", StartID: "a", Nodes: map[string]*domain.Node{
			"a": speak("a", "ping", "b"),
			"b": speak("b", "pong", "a"),
		}},
	}}

	rt := newRuntime(api, domain.NewState("root", "a", nil), nil, runtime.WithMaxSteps(10))
	err := rt.Update(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLoopOverflow)
	assert.True(t, domain.IsProgramFault(err))
	assert.Equal(t, 10, rt.Steps())
}

func TestUpdate_RecursionIsBounded(t *testing.T) {
	api := &fakeAPI{programs: map[string]*domain.Program{
		"root": {ID: "root", StartID: "again", Nodes: map[string]*domain.Node{
			"again": {ID: "again", Type: domain.NodeFlow, Flow: &domain.FlowData{ProgramID: "root"}},
		}},
	}}

	rt := newRuntime(api, domain.NewState("root", "again", nil), nil, runtime.WithMaxStackDepth(5))
	err := rt.Update(context.Background())

	assert.ErrorIs(t, err, domain.ErrStackOverflow)
	assert.True(t, domain.IsProgramFault(err))
}

func TestUpdate_StructuralFaults(t *testing.T) {
	tests := []struct {
		name  string
		nodes map[string]*domain.Node
		want  error
	}{
		{
			name:  "unknown next node",
			nodes: map[string]*domain.Node{"a": speak("a", "hi", "missing")},
			want:  domain.ErrNodeNotFound,
		},
		{
			name:  "no handler",
			nodes: map[string]*domain.Node{"a": {ID: "a", Type: domain.NodeAPI}},
			want:  domain.ErrNoHandler,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{programs: map[string]*domain.Program{
				"root": {ID: "root", StartID: "a", Nodes: tt.nodes},
			}}
			rt := newRuntime(api, domain.NewState("root", "a", nil), nil)
			err := rt.Update(context.Background())

			assert.ErrorIs(t, err, tt.want)
			var fault *domain.ProgramFaultError
			require.True(t, errors.As(err, &fault))
			assert.Equal(t, "root", fault.ProgramID)
			assert.False(t, rt.HasEnded())
		})
	}
}

func TestUpdate_UnknownProgramIsFault(t *testing.T) {
	rt := newRuntime(&fakeAPI{}, domain.NewState("ghost", "a", nil), nil)
	err := rt.Update(context.Background())

	assert.ErrorIs(t, err, domain.ErrProgramNotFound)
	assert.True(t, domain.IsProgramFault(err))
}

func TestUpdate_LifecycleHooks(t *testing.T) {
	api := &fakeAPI{programs: map[string]*domain.Program{
		"root": {ID: "root", StartID: "start", Nodes: map[string]*domain.Node{
			"start": {ID: "start", Type: domain.NodeStart, Next: "hello"},
			"hello": speak("hello", "hi", ""),
		}},
	}}
	var entered []string
	var turn *domain.TurnEvent
	hooks := domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) { entered = append(entered, e.NodeID+":"+e.Handler) },
		OnTurnEnd:   func(ctx context.Context, e *domain.TurnEvent) { turn = e },
	}

	rt := newRuntime(api, domain.NewState("root", "start", nil), nil, runtime.WithLifecycleHooks(hooks))
	require.NoError(t, rt.Update(context.Background()))

	assert.Equal(t, []string{"start:start", "hello:speak"}, entered)
	require.NotNil(t, turn)
	assert.Equal(t, 2, turn.Steps)
	assert.True(t, turn.Ended)
	assert.Equal(t, "v1", turn.VersionID)
}

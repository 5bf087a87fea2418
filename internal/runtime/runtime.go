package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultMaxSteps bounds the number of dispatches in one turn.
	DefaultMaxSteps = 400
	// DefaultMaxStackDepth bounds nested program invocations.
	DefaultMaxStackDepth = 60
)

const tracerName = "github.com/aretw0/parley/internal/runtime"

// Action is the request-processing state of a Runtime.
type Action int

const (
	// ActionRunning means no unconsumed request is pending: nodes are being entered.
	ActionRunning Action = iota
	// ActionRequest means the inbound request has not been consumed yet. Only the first
	// node dispatched in a turn (or a command) can consume it.
	ActionRequest
	// ActionEnd means the turn is over.
	ActionEnd
)

func (a Action) String() string {
	switch a {
	case ActionRunning:
		return "RUNNING"
	case ActionRequest:
		return "REQUEST"
	case ActionEnd:
		return "END"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Runtime executes one turn of a conversation. It is created per inbound event,
// owns a copy of the persisted state and is discarded once State has been persisted.
// A Runtime is not safe for concurrent use.
type Runtime struct {
	version  *domain.Version
	api      ports.DataAPI
	registry *Registry

	stack     *Stack
	variables *Store
	storage   *Store
	request   *domain.Request
	action    Action
	ended     bool
	steps     int
	traces    []domain.Trace
	programs  map[string]*domain.Program

	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	tracer      trace.Tracer
	maxSteps    int
	maxDepth    int
	debugTraces bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(rt *Runtime) {
		rt.logger = logger
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(rt *Runtime) {
		rt.hooks = hooks
	}
}

// WithTracer sets the OpenTelemetry tracer used for turn spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(rt *Runtime) {
		rt.tracer = tracer
	}
}

// WithMaxSteps bounds the dispatches of one turn. Values < 1 keep the default.
func WithMaxSteps(n int) Option {
	return func(rt *Runtime) {
		if n > 0 {
			rt.maxSteps = n
		}
	}
}

// WithMaxStackDepth bounds nested program invocations. Values < 1 keep the default.
func WithMaxStackDepth(n int) Option {
	return func(rt *Runtime) {
		if n > 0 {
			rt.maxDepth = n
		}
	}
}

// WithDebugTraces emits debug traces describing dispatch decisions.
func WithDebugTraces(enabled bool) Option {
	return func(rt *Runtime) {
		rt.debugTraces = enabled
	}
}

// New creates a runtime over a deep copy of state. The caller's state is never modified.
// A nil request starts the runtime in ActionRunning.
func New(version *domain.Version, state *domain.State, request *domain.Request, api ports.DataAPI, registry *Registry, opts ...Option) *Runtime {
	if state == nil {
		state = &domain.State{}
	}
	rt := &Runtime{
		version:   version,
		api:       api,
		registry:  registry,
		stack:     NewStack(state.Stack),
		variables: NewStore(domain.DeepCopyMap(state.Variables)),
		storage:   NewStore(domain.DeepCopyMap(state.Storage)),
		request:   request.Clone(),
		action:    ActionRunning,
		programs:  make(map[string]*domain.Program),
		logger:    logging.NewNop(),
		tracer:    otel.Tracer(tracerName),
		maxSteps:  DefaultMaxSteps,
		maxDepth:  DefaultMaxStackDepth,
	}
	if request != nil {
		rt.action = ActionRequest
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Runtime) Version() *domain.Version { return rt.version }

func (rt *Runtime) Registry() *Registry { return rt.registry }

func (rt *Runtime) Stack() *Stack { return rt.stack }

// Variables returns the global variable store.
func (rt *Runtime) Variables() *Store { return rt.variables }

// Storage returns session-level bookkeeping (dialog manager state).
func (rt *Runtime) Storage() *Store { return rt.storage }

func (rt *Runtime) Request() *domain.Request { return rt.request }

func (rt *Runtime) Action() Action { return rt.action }

func (rt *Runtime) SetAction(a Action) { rt.action = a }

func (rt *Runtime) Logger() *slog.Logger { return rt.logger }

func (rt *Runtime) Hooks() domain.LifecycleHooks { return rt.hooks }

// Steps returns the number of dispatches made so far.
func (rt *Runtime) Steps() int { return rt.steps }

// HasPendingRequest reports whether an inbound request is still waiting to be consumed.
func (rt *Runtime) HasPendingRequest() bool {
	return rt.action == ActionRequest && rt.request != nil
}

// ConsumeRequest marks the inbound request as handled.
func (rt *Runtime) ConsumeRequest() {
	if rt.action == ActionRequest {
		rt.action = ActionRunning
	}
}

// End finishes the conversation: the turn stops and the session is over.
func (rt *Runtime) End() { rt.ended = true }

// HasEnded reports whether the conversation was finished.
func (rt *Runtime) HasEnded() bool { return rt.ended }

// AddTrace appends an output event.
func (rt *Runtime) AddTrace(t domain.Trace) {
	rt.traces = append(rt.traces, t)
}

// Debug appends a debug trace when debug traces are enabled.
func (rt *Runtime) Debug(message string, nodeType domain.NodeType) {
	if !rt.debugTraces {
		return
	}
	rt.AddTrace(domain.Trace{Type: domain.TraceDebug, Payload: domain.DebugPayload{Message: message, Type: nodeType}})
}

// Traces returns the output events produced so far.
func (rt *Runtime) Traces() []domain.Trace {
	return append([]domain.Trace(nil), rt.traces...)
}

// GetProgram loads a program through the data API, caching it for the turn.
func (rt *Runtime) GetProgram(ctx context.Context, programID string) (*domain.Program, error) {
	if p, ok := rt.programs[programID]; ok {
		return p, nil
	}
	if rt.api == nil {
		return nil, fmt.Errorf("load program %s: %w", programID, domain.ErrProgramNotFound)
	}
	p, err := rt.api.GetProgram(ctx, programID)
	if err != nil {
		return nil, fmt.Errorf("load program %s: %w", programID, err)
	}
	rt.programs[programID] = p
	return p, nil
}

// View returns the variables visible to the executing frame: frame variables
// shadow globals. The view is a copy; write through SetVariable.
func (rt *Runtime) View() *Store {
	var local *Store
	if top := rt.stack.Top(); top != nil {
		local = top.Variables()
	}
	return Merge(rt.variables, local)
}

// SetVariable writes to the executing frame when it declares key, otherwise to the globals.
func (rt *Runtime) SetVariable(key string, value any) {
	if top := rt.stack.Top(); top != nil && top.Variables().Has(key) {
		top.Variables().Set(key, value)
		return
	}
	rt.variables.Set(key, value)
}

// Follow moves the executing frame along an edge. An empty id ends the program path,
// returning control to the calling frame. The id is returned for use as a handler result.
func (rt *Runtime) Follow(next string) string {
	if next == "" {
		rt.stack.Pop()
	}
	return next
}

// EnterProgram pushes a frame for programID on top of the stack.
func (rt *Runtime) EnterProgram(ctx context.Context, programID string) (*Frame, error) {
	if rt.stack.Size() >= rt.maxDepth {
		return nil, domain.ErrStackOverflow
	}
	program, err := rt.GetProgram(ctx, programID)
	if err != nil {
		return nil, err
	}
	frame := NewFrame(program)
	rt.stack.Push(frame)
	return frame, nil
}

// State returns the persisted shape of the runtime. It is safe to call at any point.
func (rt *Runtime) State() *domain.State {
	s := &domain.State{
		Stack:     rt.stack.State(),
		Variables: rt.variables.Snapshot(),
	}
	if rt.storage.Len() > 0 {
		s.Storage = rt.storage.Snapshot()
	}
	return s
}

func (rt *Runtime) emitNodeEnter(ctx context.Context, program *domain.Program, node *domain.Node, h Handler) {
	if rt.hooks.OnNodeEnter == nil {
		return
	}
	rt.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
		Timestamp: time.Now(),
		ProgramID: program.ID,
		NodeID:    node.ID,
		NodeType:  node.Type,
		Handler:   h.Name(),
	})
}

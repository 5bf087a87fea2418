// Package interact runs one conversational turn end to end: text classification, slot
// filling dialog, then program execution.
package interact

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aretw0/parley/internal/handlers"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// Input is one inbound event addressed to a version.
type Input struct {
	VersionID string          `json:"versionID,omitempty"`
	State     *domain.State   `json:"state"`
	Request   *domain.Request `json:"request,omitempty"`
}

// Output is the result of a turn.
type Output struct {
	State   *domain.State   `json:"state"`
	Trace   []domain.Trace  `json:"trace"`
	Request *domain.Request `json:"request,omitempty"`
}

// Interactor executes turns. It is safe for concurrent use; each turn gets its own runtime.
type Interactor struct {
	api        ports.DataAPI
	registry   *runtime.Registry
	classifier Classifier
	matchers   *Matchers
	dialog     *DialogManager
	logger     *slog.Logger
	rtOpts     []runtime.Option
	maxInput   int
}

// Option configures an Interactor.
type Option func(*Interactor)

// WithClassifier replaces the default in-process classifier.
func WithClassifier(c Classifier) Option {
	return func(i *Interactor) {
		i.classifier = c
	}
}

// WithRegistry replaces the default handler registry.
func WithRegistry(r *runtime.Registry) Option {
	return func(i *Interactor) {
		i.registry = r
	}
}

// WithLogger sets the logger of the interactor and of every turn runtime.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interactor) {
		i.logger = logger
	}
}

// WithRuntimeOptions adds options applied to every turn runtime.
func WithRuntimeOptions(opts ...runtime.Option) Option {
	return func(i *Interactor) {
		i.rtOpts = append(i.rtOpts, opts...)
	}
}

// WithMaxInputSize bounds the byte length of text requests.
func WithMaxInputSize(n int) Option {
	return func(i *Interactor) {
		i.maxInput = n
	}
}

// New creates an interactor over the data API.
func New(api ports.DataAPI, opts ...Option) *Interactor {
	i := &Interactor{
		api:    api,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.registry == nil {
		i.registry = handlers.NewRegistry(handlers.Dependencies{})
	}
	i.matchers = NewMatchers(i.logger)
	if i.classifier == nil {
		i.classifier = LocalClassifier{Matchers: i.matchers}
	}
	i.dialog = NewDialogManager(api, i.registry, i.matchers)
	return i
}

// InitialState returns the state of a new conversation with the version: one frame at the
// start of the root program, declared version variables set to 0.
func (i *Interactor) InitialState(ctx context.Context, versionID string) (*domain.State, error) {
	version, err := i.api.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return i.initialState(ctx, version)
}

func (i *Interactor) initialState(ctx context.Context, version *domain.Version) (*domain.State, error) {
	program, err := i.api.GetProgram(ctx, version.RootProgramID)
	if err != nil {
		return nil, fmt.Errorf("root program of version %s: %w", version.ID, err)
	}
	vars := domain.Variables{}
	for _, name := range version.Variables {
		vars[name] = json.Number("0")
	}
	return &domain.State{
		Stack:     []domain.FrameState{runtime.NewFrame(program).State()},
		Variables: vars,
	}, nil
}

// Interact runs one turn. The input state is never modified.
func (i *Interactor) Interact(ctx context.Context, in Input) (*Output, error) {
	version, err := i.api.GetVersion(ctx, in.VersionID)
	if err != nil {
		return nil, err
	}

	turn := &Turn{Version: version, Request: in.Request.Clone()}
	switch {
	case in.State == nil || (in.Request != nil && in.Request.Type == domain.RequestLaunch):
		if turn.State, err = i.initialState(ctx, version); err != nil {
			return nil, err
		}
		turn.Request = nil
	default:
		turn.State = in.State.Clone()
	}

	if turn.Request != nil && turn.Request.Type == domain.RequestText {
		if turn.Text, err = SanitizeText(turn.Request.Text, i.maxInput); err != nil {
			return nil, err
		}
		if turn.Request, err = i.classifier.Classify(ctx, version, turn.Text); err != nil {
			return nil, fmt.Errorf("classify request: %w", err)
		}
	}

	done, err := i.dialog.Handle(ctx, turn)
	if err != nil {
		return nil, fmt.Errorf("dialog: %w", err)
	}
	if done {
		return &Output{State: turn.State, Trace: turn.Trace, Request: turn.Request}, nil
	}

	opts := append([]runtime.Option{runtime.WithLogger(i.logger)}, i.rtOpts...)
	rt := runtime.New(version, turn.State, turn.Request, i.api, i.registry, opts...)
	if err := rt.Update(ctx); err != nil {
		return nil, err
	}
	return &Output{
		State:   rt.State(),
		Trace:   append(turn.Trace, rt.Traces()...),
		Request: turn.Request,
	}, nil
}

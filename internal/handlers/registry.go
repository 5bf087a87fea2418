package handlers

import (
	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/ai"
)

// EventHandler is implemented by handlers whose nodes consume inbound requests.
type EventHandler interface {
	runtime.Handler
	AcceptsEvents() bool
}

func (*InteractionHandler) AcceptsEvents() bool { return true }
func (*IntentHandler) AcceptsEvents() bool      { return true }
func (CaptureHandler) AcceptsEvents() bool      { return true }

// Dependencies are the collaborators of the default handlers. Nil collaborators
// disable the handlers (or features) that need them.
type Dependencies struct {
	API       APICaller
	Model     ai.Model
	Generator *ai.NoMatchGenerator
}

// Default returns the handlers in dispatch priority order:
// command, interaction, intent, capture, start, speak, set, if, api, generative, flow, exit.
func Default(deps Dependencies) []runtime.Handler {
	noMatch := NewNoMatchHandler(deps.Generator)
	return []runtime.Handler{
		CommandHandler{},
		NewInteractionHandler(noMatch),
		NewIntentHandler(noMatch),
		CaptureHandler{},
		StartHandler{},
		SpeakHandler{},
		SetHandler{},
		IfHandler{},
		NewAPIHandler(deps.API),
		NewGenerativeHandler(deps.Model),
		FlowHandler{},
		ExitHandler{},
	}
}

// NewRegistry builds a registry with the default handlers.
func NewRegistry(deps Dependencies) *runtime.Registry {
	return runtime.NewRegistry(Default(deps)...)
}

// EventHandlers filters handlers down to the event-capable subset, keeping order.
func EventHandlers(hs []runtime.Handler) []EventHandler {
	var out []EventHandler
	for _, h := range hs {
		if eh, ok := h.(EventHandler); ok && eh.AcceptsEvents() {
			out = append(out, eh)
		}
	}
	return out
}

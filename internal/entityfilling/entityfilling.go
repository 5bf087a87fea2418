// Package entityfilling finds the slots an intent still needs and decides whether an
// incoming intent can be consumed at the current dialog position.
package entityfilling

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/parley/internal/handlers"
	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// UnfulfilledSlot is a required intent slot missing from a request, with its resolved name.
type UnfulfilledSlot struct {
	domain.IntentSlot
	Name string
}

// GetUnfulfilledEntity returns the first required slot, in declaration order, whose
// name is absent from the request entities. Slots whose id is unknown to the model
// are skipped.
func GetUnfulfilledEntity(req *domain.Request, model *domain.PrototypeModel) (UnfulfilledSlot, bool) {
	if !req.IsIntent() || model == nil {
		return UnfulfilledSlot{}, false
	}
	intent, ok := model.IntentByName(req.IntentName())
	if !ok {
		return UnfulfilledSlot{}, false
	}
	extracted := make(map[string]struct{}, len(req.Payload.Entities))
	for _, e := range req.Payload.Entities {
		extracted[e.Name] = struct{}{}
	}
	for _, slot := range intent.Slots {
		if !slot.Required {
			continue
		}
		name, ok := model.SlotNameByID(slot.ID)
		if !ok {
			continue
		}
		if _, filled := extracted[name]; !filled {
			return UnfulfilledSlot{IntentSlot: slot, Name: name}, true
		}
	}
	return UnfulfilledSlot{}, false
}

// ReplaceSlots substitutes {{[name].id}} placeholders with values[name], or "" when unknown.
func ReplaceSlots(input string, values map[string]string) string {
	return domain.SlotRef.ReplaceAllStringFunc(input, func(ref string) string {
		m := domain.SlotRef.FindStringSubmatch(ref)
		return values[m[1]]
	})
}

// EntitiesMap indexes the non-empty entity values of a request by name.
func EntitiesMap(req *domain.Request) map[string]string {
	out := map[string]string{}
	if !req.IsIntent() {
		return out
	}
	for _, e := range req.Payload.Entities {
		if e.Value != "" {
			out[e.Name] = e.Value
		}
	}
	return out
}

// FillStringEntities substitutes slot placeholders in input with the request's entities.
func FillStringEntities(input string, req *domain.Request) string {
	return ReplaceSlots(input, EntitiesMap(req))
}

// IntentEntityList returns the slots declared by an intent, in declaration order.
func IntentEntityList(intentName string, model *domain.PrototypeModel) []domain.Slot {
	intent, ok := model.IntentByName(intentName)
	if !ok {
		return nil
	}
	out := make([]domain.Slot, 0, len(intent.Slots))
	for _, s := range intent.Slots {
		if slot, ok := model.SlotByKey(s.ID); ok {
			out = append(out, slot)
		}
	}
	return out
}

// InputToString renders a prompt, wrapping it in a voice tag when a voice applies.
func InputToString(in domain.IntentInput, defaultVoice string) string {
	voice := in.Voice
	if voice == "" {
		voice = defaultVoice
	}
	if voice == "" {
		return in.Text
	}
	return fmt.Sprintf(`<voice name="%s">%s</voice>`, voice, in.Text)
}

// Context is the persisted position a request is evaluated against.
type Context struct {
	API      ports.DataAPI
	Version  *domain.Version
	State    *domain.State
	Request  *domain.Request
	Registry *runtime.Registry
}

// IsIntentInScope reports whether the request can be consumed at the current dialog
// position. It simulates dispatch on an ephemeral runtime built from a copy of the
// state; nothing passed in is modified. A program missing from the data API means
// out of scope; other data API failures are returned.
func IsIntentInScope(ctx context.Context, c Context) (bool, error) {
	registry := c.Registry
	if registry == nil {
		registry = handlers.NewRegistry(handlers.Dependencies{})
	}
	rt := runtime.New(c.Version, c.State, c.Request, c.API, registry)
	frame := rt.Stack().Top()
	if frame == nil {
		return false, nil
	}
	vars := rt.View()

	if _, _, ok := (handlers.CommandHandler{}).Find(rt, vars); ok {
		return true, nil
	}

	program, err := rt.GetProgram(ctx, frame.ProgramID())
	if err != nil {
		if errors.Is(err, domain.ErrProgramNotFound) {
			return false, nil
		}
		return false, err
	}
	node, ok := program.GetNode(frame.NodeID())
	if rt.Action() == runtime.ActionRunning || !ok {
		return false, nil
	}

	accepted := false
	for _, h := range handlers.EventHandlers(registry.Handlers()) {
		if h.CanHandle(node, rt, vars, program) {
			accepted = true
			break
		}
	}
	if !accepted {
		return false, nil
	}

	if name, ok := node.BoundIntent(); ok && rt.Request().IntentName() == name {
		return true, nil
	}
	for _, in := range node.Interactions {
		if handlers.MatchEvent(in.Event, rt.Request(), vars) {
			return true, nil
		}
	}
	return false, nil
}

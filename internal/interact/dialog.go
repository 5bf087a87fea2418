package interact

import (
	"context"
	"math/rand/v2"

	"github.com/aretw0/parley/internal/entityfilling"
	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/mitchellh/mapstructure"
)

// StorageKey is the session storage entry holding an unfinished slot-filling dialog.
const StorageKey = "dm"

// dmState is the decoded shape of the "dm" storage entry.
type dmState struct {
	IntentRequest struct {
		Type    string
		Payload domain.IntentPayload
	}
}

// DialogManager asks for the required slots of an in-scope intent before the runtime
// sees it. The partially filled request lives in the session storage between turns.
type DialogManager struct {
	api      ports.DataAPI
	registry *runtime.Registry
	matchers *Matchers
}

// NewDialogManager creates a dialog manager.
func NewDialogManager(api ports.DataAPI, registry *runtime.Registry, matchers *Matchers) *DialogManager {
	return &DialogManager{api: api, registry: registry, matchers: matchers}
}

// Turn is one inbound event moving through the pipeline.
type Turn struct {
	Version *domain.Version
	State   *domain.State
	Request *domain.Request
	// Text is the raw user text when the request was classified from a text request.
	Text  string
	Trace []domain.Trace
}

// Handle runs the dialog step. It returns true when the turn is over: a slot prompt was
// emitted and the runtime must not run. Otherwise turn.Request is the request to execute.
func (d *DialogManager) Handle(ctx context.Context, turn *Turn) (bool, error) {
	prior, active := priorRequest(turn.State)
	if !turn.Request.IsIntent() && !(active && turn.Text != "") {
		return false, nil
	}

	var pending *domain.Request
	switch {
	case active:
		next, err := d.continueDialog(ctx, turn, prior)
		if err != nil {
			return false, err
		}
		pending = next
	default:
		inScope, err := d.inScope(ctx, turn, turn.Request)
		if err != nil || !inScope {
			return false, err
		}
		pending = turn.Request
	}
	if pending == nil {
		// The user left the dialog for another in-scope intent.
		clearDialog(turn.State)
		return d.Handle(ctx, turn)
	}

	model := &turn.Version.Prototype.Model
	slot, missing := entityfilling.GetUnfulfilledEntity(pending, model)
	if !missing || len(slot.Dialog.Prompt) == 0 {
		clearDialog(turn.State)
		turn.Request = pending
		return false, nil
	}

	prompt := slot.Dialog.Prompt[rand.IntN(len(slot.Dialog.Prompt))]
	message := entityfilling.FillStringEntities(entityfilling.InputToString(prompt, ""), pending)
	turn.Trace = append(turn.Trace, domain.Trace{Type: domain.TraceSpeak, Payload: domain.SpeakPayload{Message: message}})
	storeDialog(turn.State, pending)
	turn.Request = nil
	return true, nil
}

// continueDialog merges the new input into the prior request. It returns nil when the
// input is a different intent that can be handled at the current position.
func (d *DialogManager) continueDialog(ctx context.Context, turn *Turn, prior *domain.Request) (*domain.Request, error) {
	incoming := turn.Request
	if incoming.IsIntent() && incoming.IntentName() != prior.IntentName() && !isFallback(incoming) {
		inScope, err := d.inScope(ctx, turn, incoming)
		if err != nil {
			return nil, err
		}
		if inScope {
			return nil, nil
		}
	}

	merged := prior
	if turn.Text != "" {
		filled := d.matchers.For(turn.Version).Dialog(turn.Text, prior)
		if filled.IntentName() == prior.IntentName() {
			merged = filled
		}
	}
	if incoming.IsIntent() && incoming.IntentName() == prior.IntentName() {
		merged = mergeEntities(merged, incoming)
	}
	return merged, nil
}

func (d *DialogManager) inScope(ctx context.Context, turn *Turn, req *domain.Request) (bool, error) {
	return entityfilling.IsIntentInScope(ctx, entityfilling.Context{
		API:      d.api,
		Version:  turn.Version,
		State:    turn.State,
		Request:  req,
		Registry: d.registry,
	})
}

func isFallback(req *domain.Request) bool {
	name := req.IntentName()
	return name == domain.NoneIntent || name == domain.EmptyIntent
}

// mergeEntities overlays the entities of next onto base.
func mergeEntities(base, next *domain.Request) *domain.Request {
	entities := append([]domain.Entity(nil), base.Payload.Entities...)
	for _, e := range next.Payload.Entities {
		if e.Value != "" {
			entities = append(entities, e)
		}
	}
	return domain.NewIntentRequest(next.Payload.Query, base.IntentName(), entities...)
}

func priorRequest(state *domain.State) (*domain.Request, bool) {
	raw, ok := state.Storage[StorageKey]
	if !ok {
		return nil, false
	}
	var dm dmState
	if err := mapstructure.Decode(raw, &dm); err != nil || dm.IntentRequest.Payload.Intent.Name == "" {
		return nil, false
	}
	p := dm.IntentRequest.Payload
	return domain.NewIntentRequest(p.Query, p.Intent.Name, p.Entities...), true
}

func storeDialog(state *domain.State, req *domain.Request) {
	entities := make([]any, 0, len(req.Payload.Entities))
	for _, e := range req.Payload.Entities {
		entities = append(entities, map[string]any{"name": e.Name, "value": e.Value})
	}
	if state.Storage == nil {
		state.Storage = domain.Variables{}
	}
	state.Storage[StorageKey] = map[string]any{
		"intentRequest": map[string]any{
			"type": string(domain.RequestIntent),
			"payload": map[string]any{
				"query":    req.Payload.Query,
				"intent":   map[string]any{"name": req.IntentName()},
				"entities": entities,
			},
		},
	}
}

func clearDialog(state *domain.State) {
	delete(state.Storage, StorageKey)
	if len(state.Storage) == 0 {
		state.Storage = nil
	}
}

package handlers

import (
	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
)

// MatchEvent reports whether req satisfies ev. Intent events compare intent names
// (after variable interpolation); other events compare request types.
func MatchEvent(ev domain.Event, req *domain.Request, vars *runtime.Store) bool {
	if req == nil || ev.Type == "" {
		return false
	}
	if ev.Type == domain.RequestIntent {
		return req.IsIntent() && req.IntentName() == runtime.Interpolate(ev.Intent, vars)
	}
	return req.Type == ev.Type
}

// ApplyMappings copies entities of an intent request into variables.
// Entities missing from the request leave their variables untouched.
func ApplyMappings(rt *runtime.Runtime, mappings []domain.SlotMapping, req *domain.Request) {
	if !req.IsIntent() {
		return
	}
	for _, m := range mappings {
		if m.Variable == "" {
			continue
		}
		if value, ok := req.Payload.Entity(m.Slot); ok {
			rt.SetVariable(m.Variable, value)
		}
	}
}

// nodeConsumes reports whether node itself would accept req, ignoring commands.
func nodeConsumes(node *domain.Node, req *domain.Request, vars *runtime.Store) bool {
	switch node.Type {
	case domain.NodeInteraction:
		for _, in := range node.Interactions {
			if MatchEvent(in.Event, req, vars) {
				return true
			}
		}
	case domain.NodeIntent:
		name, ok := node.BoundIntent()
		return ok && req.IsIntent() && req.IntentName() == name
	}
	return false
}

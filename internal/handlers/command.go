package handlers

import (
	"context"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
)

// CommandHandler lets global commands of any program on the stack interrupt the
// current node. It is registered first so commands are checked before ordinary input.
type CommandHandler struct{}

func (CommandHandler) Name() string { return "command" }

// Find returns the stack index and command matching the pending request, searching
// from the top frame down.
func (CommandHandler) Find(rt *runtime.Runtime, vars *runtime.Store) (int, domain.Command, bool) {
	if !rt.HasPendingRequest() {
		return -1, domain.Command{}, false
	}
	req := rt.Request()
	stack := rt.Stack()
	for i := stack.Size() - 1; i >= 0; i-- {
		for _, cmd := range stack.Get(i).Commands() {
			if MatchEvent(cmd.Event, req, vars) {
				return i, cmd, true
			}
		}
	}
	return -1, domain.Command{}, false
}

func (h CommandHandler) CanHandle(node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) bool {
	if !rt.HasPendingRequest() || nodeConsumes(node, rt.Request(), vars) {
		return false
	}
	_, _, ok := h.Find(rt, vars)
	return ok
}

func (h CommandHandler) Handle(ctx context.Context, node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) (string, error) {
	index, cmd, ok := h.Find(rt, vars)
	if !ok {
		return "", nil
	}
	req := rt.Request()
	rt.ConsumeRequest()
	ApplyMappings(rt, cmd.Event.Mappings, req)

	switch cmd.Type {
	case domain.CommandPush:
		rt.Debug("matched command "+cmd.Event.Intent+": entering program "+cmd.ProgramID, node.Type)
		if _, err := rt.EnterProgram(ctx, cmd.ProgramID); err != nil {
			return "", err
		}
		return "", nil
	default:
		rt.Debug("matched command "+cmd.Event.Intent+": jumping to "+cmd.Next, node.Type)
		rt.Stack().Lift(index)
		rt.Stack().Top().SetNodeID(cmd.Next)
		return rt.Follow(cmd.Next), nil
	}
}

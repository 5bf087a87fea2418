package handlers

import (
	"context"
	"math/rand/v2"
	"strconv"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
)

// StartHandler continues to the first real node of a program.
type StartHandler struct{}

func (StartHandler) Name() string { return "start" }

func (StartHandler) CanHandle(node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) bool {
	return node.Type == domain.NodeStart
}

func (StartHandler) Handle(ctx context.Context, node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) (string, error) {
	return rt.Follow(node.Next), nil
}

// SpeakHandler emits one of the node's message variants.
type SpeakHandler struct{}

func (SpeakHandler) Name() string { return "speak" }

func (SpeakHandler) CanHandle(node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) bool {
	return node.Type == domain.NodeSpeak && node.Speak != nil
}

func (SpeakHandler) Handle(ctx context.Context, node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) (string, error) {
	if msgs := node.Speak.Messages; len(msgs) > 0 {
		msg := msgs[0]
		if len(msgs) > 1 {
			msg = msgs[rand.IntN(len(msgs))]
		}
		speakText(rt, runtime.Interpolate(msg, vars))
	}
	return rt.Follow(node.Next), nil
}

// SetHandler assigns variables. String values are interpolated; each step sees the
// writes of the previous ones.
type SetHandler struct{}

func (SetHandler) Name() string { return "set" }

func (SetHandler) CanHandle(node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) bool {
	return node.Type == domain.NodeSet
}

func (SetHandler) Handle(ctx context.Context, node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) (string, error) {
	for _, step := range node.Set {
		if step.Variable == "" {
			continue
		}
		value := step.Value
		if s, ok := value.(string); ok {
			value = runtime.Interpolate(s, rt.View())
		}
		rt.SetVariable(step.Variable, domain.DeepCopyValue(value))
	}
	return rt.Follow(node.Next), nil
}

// FlowHandler enters a sub-program. The caller resumes at the node's Next once it returns.
type FlowHandler struct{}

func (FlowHandler) Name() string { return "flow" }

func (FlowHandler) CanHandle(node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) bool {
	return node.Type == domain.NodeFlow && node.Flow != nil
}

func (FlowHandler) Handle(ctx context.Context, node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) (string, error) {
	caller := rt.Stack().Top()
	frame, err := rt.EnterProgram(ctx, node.Flow.ProgramID)
	if err != nil {
		return "", err
	}
	caller.SetNodeID(node.Next)
	rt.Debug("entering program "+node.Flow.ProgramID, node.Type)
	return frame.NodeID(), nil
}

// ExitHandler returns from the current program.
type ExitHandler struct{}

func (ExitHandler) Name() string { return "exit" }

func (ExitHandler) CanHandle(node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) bool {
	return node.Type == domain.NodeExit
}

func (ExitHandler) Handle(ctx context.Context, node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) (string, error) {
	return rt.Follow(""), nil
}

func itoa(i int) string { return strconv.Itoa(i) }

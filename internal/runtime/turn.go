package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Update runs the turn: it dispatches nodes from the top frame until a handler
// suspends, the stack empties, the conversation ends, or a fault occurs.
// Faults are returned as *domain.ProgramFaultError or wrapped handler errors; the
// state reached before the fault is still available through State.
func (rt *Runtime) Update(ctx context.Context) (err error) {
	versionID := ""
	if rt.version != nil {
		versionID = rt.version.ID
	}
	ctx, span := rt.tracer.Start(ctx, "runtime.Update", trace.WithAttributes(
		attribute.String("parley.version_id", versionID),
		attribute.String("parley.action", rt.action.String()),
	))
	defer func() {
		span.SetAttributes(attribute.Int("parley.steps", rt.steps), attribute.Bool("parley.ended", rt.ended))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if rt.hooks.OnTurnEnd != nil {
			rt.hooks.OnTurnEnd(ctx, &domain.TurnEvent{
				Timestamp: time.Now(),
				VersionID: versionID,
				Steps:     rt.steps,
				Ended:     rt.ended,
				Err:       err,
			})
		}
	}()

	err = rt.cycle(ctx, span)
	if err == nil && (rt.ended || rt.stack.IsEmpty()) {
		rt.ended = true
		rt.stack.Flush()
		rt.AddTrace(domain.Trace{Type: domain.TraceEnd})
	}
	rt.action = ActionEnd
	if err != nil {
		rt.logger.Error("turn failed", "version_id", versionID, "steps", rt.steps, "err", err)
	}
	return err
}

func (rt *Runtime) cycle(ctx context.Context, span trace.Span) error {
	for !rt.ended {
		frame := rt.stack.Top()
		if frame == nil {
			return nil
		}
		if rt.stack.Size() > rt.maxDepth {
			return &domain.ProgramFaultError{ProgramID: frame.ProgramID(), NodeID: frame.NodeID(), Err: domain.ErrStackOverflow}
		}
		program, err := rt.GetProgram(ctx, frame.ProgramID())
		if err != nil {
			return &domain.ProgramFaultError{ProgramID: frame.ProgramID(), NodeID: frame.NodeID(), Err: err}
		}
		if frame.NodeID() == "" {
			rt.stack.Pop()
			continue
		}

		suspended, err := rt.runFrame(ctx, span, frame, program)
		if err != nil {
			return err
		}
		if suspended {
			return nil
		}
	}
	return nil
}

// runFrame dispatches nodes of one frame. It reports suspended=false when the stack
// changed (or the conversation ended) and the cycle must restart from the new top.
func (rt *Runtime) runFrame(ctx context.Context, span trace.Span, frame *Frame, program *domain.Program) (bool, error) {
	generation := rt.stack.Generation()
	nodeID := frame.NodeID()
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if rt.steps >= rt.maxSteps {
			return false, &domain.ProgramFaultError{ProgramID: program.ID, NodeID: nodeID, Err: domain.ErrLoopOverflow}
		}
		node, ok := program.GetNode(nodeID)
		if !ok {
			return false, &domain.ProgramFaultError{ProgramID: program.ID, NodeID: nodeID, Err: domain.ErrNodeNotFound}
		}
		frame.SetNodeID(nodeID)

		vars := rt.View()
		h, err := rt.registry.Resolve(node, rt, vars, program)
		if err != nil {
			return false, err
		}
		rt.steps++
		span.AddEvent("dispatch", trace.WithAttributes(
			attribute.String("parley.program_id", program.ID),
			attribute.String("parley.node_id", node.ID),
			attribute.String("parley.handler", h.Name()),
		))
		rt.emitNodeEnter(ctx, program, node, h)
		rt.logger.Debug("dispatch", "program_id", program.ID, "node_id", node.ID, "handler", h.Name())

		next, err := h.Handle(ctx, node, rt, vars, program)
		// The request belongs to the first node dispatched in the turn.
		rt.ConsumeRequest()
		if err != nil {
			var fault *domain.ProgramFaultError
			if errors.As(err, &fault) {
				return false, err
			}
			if errors.Is(err, domain.ErrStackOverflow) || errors.Is(err, domain.ErrProgramNotFound) {
				return false, &domain.ProgramFaultError{ProgramID: program.ID, NodeID: node.ID, Err: err}
			}
			return false, fmt.Errorf("%s handler at node %s: %w", h.Name(), node.ID, err)
		}
		if rt.ended || rt.stack.Generation() != generation {
			return false, nil
		}
		if next == "" {
			return true, nil
		}
		nodeID = next
	}
}

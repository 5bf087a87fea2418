package handlers

import (
	"context"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
)

// CaptureHandler stores the raw user query into a variable.
type CaptureHandler struct{}

func (CaptureHandler) Name() string { return "capture" }

func (CaptureHandler) CanHandle(node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) bool {
	return node.Type == domain.NodeCapture && node.Capture != nil
}

func (CaptureHandler) Handle(ctx context.Context, node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) (string, error) {
	if !rt.HasPendingRequest() {
		return "", nil
	}
	req := rt.Request()
	rt.ConsumeRequest()
	if node.Capture.Variable != "" {
		rt.SetVariable(node.Capture.Variable, queryOf(req))
	}
	return rt.Follow(node.Next), nil
}

// queryOf returns the user text behind a request.
func queryOf(req *domain.Request) string {
	switch {
	case req == nil:
		return ""
	case req.Type == domain.RequestText:
		return req.Text
	case req.Payload != nil:
		return req.Payload.Query
	default:
		return ""
	}
}

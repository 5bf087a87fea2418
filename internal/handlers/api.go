package handlers

import (
	"context"

	"github.com/aretw0/parley/internal/apicall"
	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
)

// APICaller performs the outbound call of an api node.
type APICaller interface {
	Call(ctx context.Context, data domain.APIActionData, debug apicall.DebugFunc) (*apicall.Result, error)
}

// APIHandler calls an external HTTP endpoint and maps the response into variables.
// A completed call follows SuccessID whatever its status code; validation and
// connectivity failures follow FailID, or fault the turn when no fail path exists.
type APIHandler struct {
	invoker APICaller
}

func NewAPIHandler(invoker APICaller) *APIHandler {
	return &APIHandler{invoker: invoker}
}

func (h *APIHandler) Name() string { return "api" }

func (h *APIHandler) CanHandle(node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) bool {
	return node.Type == domain.NodeAPI && node.API != nil && h.invoker != nil
}

func (h *APIHandler) Handle(ctx context.Context, node *domain.Node, rt *runtime.Runtime, vars *runtime.Store, program *domain.Program) (string, error) {
	data := interpolateAPIData(*node.API, vars)
	debug := func(msg string) { rt.Debug(msg, domain.NodeAPI) }

	res, err := h.invoker.Call(ctx, data, debug)
	if err != nil {
		rt.Logger().Warn("api call failed", "node_id", node.ID, "url", data.URL, "err", err)
		rt.Debug("API call error - "+err.Error(), domain.NodeAPI)
		if data.FailID == "" {
			return "", err
		}
		return data.FailID, nil
	}

	for name, value := range res.Variables {
		rt.SetVariable(name, value)
	}
	rt.Debug("API call completed with status "+itoa(res.StatusCode), domain.NodeAPI)

	next := data.SuccessID
	if next == "" {
		next = node.Next
	}
	return rt.Follow(next), nil
}

func interpolateAPIData(data domain.APIActionData, vars *runtime.Store) domain.APIActionData {
	out := data
	out.URL = runtime.Interpolate(data.URL, vars)
	out.Content = runtime.Interpolate(data.Content, vars)
	out.Headers = interpolatePairs(data.Headers, vars)
	out.Params = interpolatePairs(data.Params, vars)
	out.Body = domain.APIBody{Pairs: interpolatePairs(data.Body.Pairs, vars)}
	if data.Body.Text != nil {
		text := runtime.Interpolate(*data.Body.Text, vars)
		out.Body.Text = &text
	}
	if data.Body.Object != nil {
		out.Body.Object, _ = interpolateValue(data.Body.Object, vars).(map[string]any)
	}
	return out
}

func interpolatePairs(pairs []domain.KeyValue, vars *runtime.Store) []domain.KeyValue {
	if pairs == nil {
		return nil
	}
	out := make([]domain.KeyValue, len(pairs))
	for i, kv := range pairs {
		out[i] = domain.KeyValue{
			Key: runtime.Interpolate(kv.Key, vars),
			Val: runtime.Interpolate(kv.Val, vars),
		}
	}
	return out
}

func interpolateValue(v any, vars *runtime.Store) any {
	switch val := v.(type) {
	case string:
		return runtime.Interpolate(val, vars)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = interpolateValue(item, vars)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = interpolateValue(item, vars)
		}
		return out
	default:
		return v
	}
}

package apicall_test

import (
	"encoding/json"
	"testing"

	"github.com/aretw0/parley/internal/apicall"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToPath(t *testing.T) {
	tests := map[string][]string{
		"response.items.0.id":       {"response", "items", "0", "id"},
		"response.items[1].id":      {"response", "items", "1", "id"},
		`response["a.b"].c`:         {"response", "a.b", "c"},
		"response.items.{random}.x": {"response", "items", "{random}", "x"},
		"":                          nil,
	}
	for in, want := range tests {
		assert.Equal(t, want, apicall.ToPath(in), in)
	}
}

func TestResolveVariableMapping_Random(t *testing.T) {
	data := map[string]any{"response": map[string]any{"items": []any{
		map[string]any{"id": 1},
		map[string]any{"id": 2},
	}}}
	mappings := []domain.APIMapping{{Var: "x", Path: "response.items.{random}.id"}}

	seen := map[any]bool{}
	for i := 0; i < 200; i++ {
		out := apicall.ResolveVariableMapping(mappings, data)
		require.Contains(t, out, "x")
		require.Len(t, out, 1)
		v := out["x"]
		require.True(t, v == 1 || v == 2, "unexpected value %v", v)
		seen[v] = true
	}
	assert.Len(t, seen, 2, "both elements should be picked over many draws")
}

func TestResolveVariableMapping_DropsMissingPaths(t *testing.T) {
	var body any
	require.NoError(t, json.Unmarshal([]byte(`{"user":{"name":"ana","tags":[],"nothing":null},"list":[10,20]}`), &body))
	data := map[string]any{"response": body}

	out := apicall.ResolveVariableMapping([]domain.APIMapping{
		{Var: "name", Path: "response.user.name"},
		{Var: "second", Path: "response.list[1]"},
		{Var: "nothing", Path: "response.user.nothing"},
		{Var: "missing", Path: "response.user.age"},
		{Var: "outOfRange", Path: "response.list.5"},
		{Var: "randomEmpty", Path: "response.user.tags.{random}"},
		{Var: "randomNotArray", Path: "response.user.{random}"},
		{Var: "", Path: "response.user.name"},
	}, data)

	assert.Equal(t, map[string]any{
		"name":    "ana",
		"second":  float64(20),
		"nothing": nil,
	}, out)
}

func TestGetVariableAtJSONPath_TypedSlices(t *testing.T) {
	data := map[string]any{"rows": []map[string]any{{"v": "a"}}}
	v, ok := apicall.GetVariableAtJSONPath(data, "rows.0.v")
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = apicall.GetVariableAtJSONPath(data, "rows.{RANDOM}.v")
	require.True(t, ok)
	assert.Equal(t, "a", v)
}

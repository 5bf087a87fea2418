package runtime_test

import (
	"encoding/json"
	"testing"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_OverrideShadowsBase(t *testing.T) {
	global := runtime.NewStore(map[string]any{"name": "global", "only_global": 1})
	local := runtime.NewStore(map[string]any{"name": "local"})

	view := runtime.Merge(global, local)

	v, ok := view.Get("name")
	require.True(t, ok)
	assert.Equal(t, "local", v)
	assert.True(t, view.Has("only_global"))

	// Inputs are untouched.
	view.Set("name", "changed")
	view.Set("new", true)
	g, _ := global.Get("name")
	assert.Equal(t, "global", g)
	assert.False(t, global.Has("new"))
	assert.False(t, local.Has("new"))
}

func TestMerge_NilInputs(t *testing.T) {
	view := runtime.Merge(nil, nil)
	assert.Equal(t, 0, view.Len())

	_, ok := view.Get("missing")
	assert.False(t, ok)
}

func TestStore_RoundTripIsByteIdentical(t *testing.T) {
	input := `{"a":1.50,"b":"text","c":[1,2,{"d":1e3}],"e":null,"f":{"g":true}}`

	var s runtime.Store
	require.NoError(t, json.Unmarshal([]byte(input), &s))
	first, err := json.Marshal(&s)
	require.NoError(t, err)

	var again runtime.Store
	require.NoError(t, json.Unmarshal(first, &again))
	second, err := json.Marshal(&again)
	require.NoError(t, err)

	assert.Equal(t, input, string(first))
	assert.Equal(t, string(first), string(second))
}

func TestState_RoundTripIsByteIdentical(t *testing.T) {
	input := `{"stack":[{"programID":"root","nodeID":"ask","variables":{"count":0},"storage":{"noMatches":2}},` +
		`{"programID":"sub","nodeID":"","variables":{},"commands":[{"type":"jump","event":{"type":"intent","intent":"help"},"next":"h"}]}],` +
		`"variables":{"price":10.00,"user":{"name":"ana"}},"storage":{"dm":{"intentRequest":null}}}`

	state, err := domain.DecodeState([]byte(input))
	require.NoError(t, err)

	// Through the runtime and back.
	rt := runtime.New(&domain.Version{ID: "v1"}, state, nil, nil, runtime.NewRegistry())
	out, err := json.Marshal(rt.State())
	require.NoError(t, err)
	assert.Equal(t, input, string(out))

	decoded, err := domain.DecodeState(out)
	require.NoError(t, err)
	again, err := json.Marshal(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(out), string(again))
}

func TestInterpolate(t *testing.T) {
	vars := runtime.NewStore(map[string]any{
		"name":  "Ana",
		"count": json.Number("3"),
		"obj":   map[string]any{"k": "v"},
	})

	assert.Equal(t, "Hi Ana, you have 3 items", runtime.Interpolate("Hi {name}, you have {count} items", vars))
	assert.Equal(t, "keep {unknown}", runtime.Interpolate("keep {unknown}", vars))
	assert.Equal(t, `{"k":"v"}`, runtime.Interpolate("{obj}", vars))
}

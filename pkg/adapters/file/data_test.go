package file_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/aretw0/parley/pkg/domain"
	contract "github.com/aretw0/parley/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const versionYAML = `
projectId: p1
rootProgramId: root
variables: [size]
prototype:
  locales: [en-US]
  model:
    slots:
      - key: s1
        name: size
        type: {value: custom}
        inputs: [small, large]
    intents:
      - name: order_pizza
        slots: [{id: s1, required: true}]
        inputs:
          - text: "i want a {{[size].s1}} pizza"
`

const rootYAML = `
startId: start
nodes:
  start: {type: start, next: ask}
  ask:
    type: interaction
    interactions:
      - event: {type: intent, intent: order_pizza}
        nextId: done
  done:
    type: speak
    speak: {messages: ["ok"]}
`

const subJSON = `{"id": "sub", "startId": "s", "nodes": {"s": {"type": "exit"}}}`

func writeProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, file.VersionsDir), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, file.ProgramsDir), 0o755))
	write(t, filepath.Join(root, file.VersionsDir, "v1.yaml"), versionYAML)
	write(t, filepath.Join(root, file.ProgramsDir, "root.yml"), rootYAML)
	write(t, filepath.Join(root, file.ProgramsDir, "sub.json"), subJSON)
	write(t, filepath.Join(root, file.ProgramsDir, "README.md"), "ignored")
	return root
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDataAPI_Contract(t *testing.T) {
	api := file.NewDataAPI(writeProject(t))
	version := &domain.Version{ID: "v1", ProjectID: "p1", RootProgramID: "root"}
	contract.DataAPIContractTest(t, api, version, []string{"root", "sub"})
}

func TestDataAPI_DecodesYAML(t *testing.T) {
	api := file.NewDataAPI(writeProject(t))
	ctx := context.Background()

	v, err := api.GetVersion(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", v.ID)
	assert.Equal(t, "en-US", v.Prototype.Locale())
	require.Len(t, v.Prototype.Model.Intents, 1)
	assert.True(t, v.Prototype.Model.Intents[0].Slots[0].Required)
	assert.True(t, v.Prototype.Model.Slots[0].IsCustom())

	p, err := api.GetProgram(ctx, "root")
	require.NoError(t, err)
	ask, ok := p.GetNode("ask")
	require.True(t, ok)
	assert.Equal(t, "ask", ask.ID)
	assert.Equal(t, "order_pizza", ask.Interactions[0].Event.Intent)

	ids, err := api.ListPrograms()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"root", "sub"}, ids)
}

func TestDataAPI_InvalidFiles(t *testing.T) {
	root := writeProject(t)
	write(t, filepath.Join(root, file.ProgramsDir, "bad.yaml"), "nodes: [unclosed")
	api := file.NewDataAPI(root)

	_, err := api.GetProgram(context.Background(), "bad")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrProgramNotFound)

	_, err = api.GetProgram(context.Background(), "../versions/v1")
	assert.ErrorIs(t, err, domain.ErrProgramNotFound)
}

func TestDecode_UsesNumbers(t *testing.T) {
	var out map[string]any
	require.NoError(t, file.Decode([]byte("count: 3"), ".yaml", &out))
	assert.Equal(t, json.Number("3"), out["count"])
}

func TestDataAPI_Watch(t *testing.T) {
	root := writeProject(t)
	api := file.NewDataAPI(root)
	ctx, cancel := context.WithCancel(context.Background())

	changes, err := api.Watch(ctx)
	require.NoError(t, err)

	write(t, filepath.Join(root, file.ProgramsDir, "sub.json"), subJSON)
	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change notification")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-changes:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

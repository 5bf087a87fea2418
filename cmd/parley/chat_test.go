package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/config"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoApp(t *testing.T) *parley.App {
	t.Helper()
	version := &domain.Version{ID: "v1", RootProgramID: "root"}
	root := &domain.Program{ID: "root", StartID: "start", Nodes: map[string]*domain.Node{
		"start": {ID: "start", Type: domain.NodeStart, Next: "hello"},
		"hello": {ID: "hello", Type: domain.NodeSpeak, Speak: &domain.SpeakData{Messages: []string{"What is your name?"}}, Next: "ask"},
		"ask":   {ID: "ask", Type: domain.NodeCapture, Capture: &domain.CaptureData{Variable: "name"}, Next: "bye"},
		"bye":   {ID: "bye", Type: domain.NodeSpeak, Speak: &domain.SpeakData{Messages: []string{"Bye {name}"}}},
	}}
	app, err := parley.New(context.Background(), config.Default(),
		parley.WithDataAPI(memory.NewDataAPI(version, root)),
		parley.WithLogger(logging.NewNop()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func newChat(app *parley.App, out *bytes.Buffer) *chat {
	return &chat{
		app:       app,
		versionID: "v1",
		sessionID: "s1",
		traces:    &tui.TraceWriter{Out: out, Render: tui.Plain},
	}
}

func TestChat_RunsToEnd(t *testing.T) {
	var out bytes.Buffer
	c := newChat(echoApp(t), &out)

	require.NoError(t, c.Run(context.Background(), strings.NewReader("Ada\nignored\n")))

	assert.Contains(t, out.String(), "What is your name?")
	assert.Contains(t, out.String(), "Bye Ada")
	assert.Contains(t, out.String(), "(conversation ended)")
}

func TestChat_ExitAndResume(t *testing.T) {
	app := echoApp(t)

	var out bytes.Buffer
	require.NoError(t, newChat(app, &out).Run(context.Background(), strings.NewReader("exit\n")))
	assert.Contains(t, out.String(), "Bye!")
	assert.NotContains(t, out.String(), "(conversation ended)")

	out.Reset()
	require.NoError(t, newChat(app, &out).Run(context.Background(), strings.NewReader("Grace")))
	assert.Contains(t, out.String(), "(resumed)")
	assert.NotContains(t, out.String(), "What is your name?")
	assert.Contains(t, out.String(), "Bye Grace")
}

func TestChat_EOF(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, newChat(echoApp(t), &out).Run(context.Background(), strings.NewReader("")))
	assert.Contains(t, out.String(), "What is your name?")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "parley version "+parley.Version+"\n", out.String())
}

func TestValidateCommand_ExampleProject(t *testing.T) {
	var out bytes.Buffer
	validateCmd.SetOut(&out)
	require.NoError(t, validateCmd.RunE(validateCmd, []string{"../../examples/pizza"}), out.String())
	assert.Contains(t, out.String(), "is valid")
}

package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

// RenderFunc turns markdown into terminal output.
type RenderFunc func(string) (string, error)

// NewRenderer returns a RenderFunc backed by glamour, picking a light or dark style from
// the terminal background. If glamour cannot be initialized the text is passed through.
func NewRenderer() RenderFunc {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return Plain
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// Plain renders markdown as is.
func Plain(markdown string) (string, error) {
	return markdown + "\n", nil
}

// TraceWriter prints the traces of a turn to a terminal.
type TraceWriter struct {
	Out    io.Writer
	Render RenderFunc
	// Debug includes debug and path traces.
	Debug bool
}

// Write prints traces in order and reports whether the conversation ended.
func (w *TraceWriter) Write(traces []domain.Trace) (ended bool, err error) {
	render := w.Render
	if render == nil {
		render = Plain
	}
	p := termenv.ColorProfile()

	for _, t := range traces {
		switch t.Type {
		case domain.TraceSpeak, domain.TraceGenerative:
			var payload domain.SpeakPayload
			if err := decodePayload(t.Payload, &payload); err != nil {
				return ended, err
			}
			out, err := render(payload.Message)
			if err != nil {
				return ended, fmt.Errorf("failed to render message: %w", err)
			}
			fmt.Fprint(w.Out, out)
		case domain.TraceChoice:
			var payload domain.ChoicePayload
			if err := decodePayload(t.Payload, &payload); err != nil {
				return ended, err
			}
			names := make([]string, 0, len(payload.Choices))
			for _, c := range payload.Choices {
				names = append(names, "["+c.Name+"]")
			}
			if len(names) > 0 {
				fmt.Fprintln(w.Out, termenv.String(strings.Join(names, " ")).Foreground(p.Color("#a78bfa")))
			}
		case domain.TraceDebug:
			if !w.Debug {
				continue
			}
			var payload domain.DebugPayload
			if err := decodePayload(t.Payload, &payload); err != nil {
				return ended, err
			}
			fmt.Fprintln(w.Out, termenv.String("debug: "+payload.Message).Faint())
		case domain.TracePath:
			if !w.Debug {
				continue
			}
			var payload domain.PathPayload
			if err := decodePayload(t.Payload, &payload); err != nil {
				return ended, err
			}
			fmt.Fprintln(w.Out, termenv.String("path: "+payload.Path).Faint())
		case domain.TraceEnd:
			ended = true
		}
	}
	return ended, nil
}

// decodePayload accepts typed payloads as produced in process and generic maps as
// produced by decoding a JSON response.
func decodePayload(in, out any) error {
	switch v := in.(type) {
	case domain.SpeakPayload:
		if p, ok := out.(*domain.SpeakPayload); ok {
			*p = v
			return nil
		}
	case domain.ChoicePayload:
		if p, ok := out.(*domain.ChoicePayload); ok {
			*p = v
			return nil
		}
	}
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode trace payload: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode trace payload: %w", err)
	}
	return nil
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to a project version in the terminal",
	Long: `Starts an interactive conversation with a version of the project. Sessions are kept in
the configured session store, so passing --session resumes an earlier conversation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		versionID, _ := cmd.Flags().GetString("version-id")
		sessionID, _ := cmd.Flags().GetString("session")
		debug, _ := cmd.Flags().GetBool("debug")
		plain, _ := cmd.Flags().GetBool("plain")

		if versionID == "" {
			versions, err := file.NewDataAPI(cfg.Data.Dir).ListVersions()
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				return fmt.Errorf("no versions found in %s", cfg.Data.Dir)
			}
			versionID = versions[0]
		}
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		cfg.Runtime.DebugTraces = cfg.Runtime.DebugTraces || debug
		// The conversation owns the terminal; keep logs out of it unless asked for.
		if !cmd.Flags().Changed("log-level") {
			cfg.Log.Level = "error"
		}

		app, err := parley.New(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize parley: %w", err)
		}
		defer app.Close()

		out := cmd.OutOrStdout()
		render := tui.NewRenderer()
		if plain {
			render = tui.Plain
		} else {
			tui.PrintBanner(out)
		}
		c := &chat{
			app:       app,
			versionID: versionID,
			sessionID: sessionID,
			traces:    &tui.TraceWriter{Out: out, Render: render, Debug: debug},
			prompt:    !plain,
		}
		return c.Run(cmd.Context(), cmd.InOrStdin())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("version-id", "", "Version to talk to (default: the first version found)")
	chatCmd.Flags().String("session", "", "Session id to create or resume (default: a new random id)")
	chatCmd.Flags().Bool("debug", false, "Show debug and path traces")
	chatCmd.Flags().Bool("plain", false, "Print raw messages without markdown rendering or banner")
}

// chat is a read-eval-print loop over one session.
type chat struct {
	app       *parley.App
	versionID string
	sessionID string
	traces    *tui.TraceWriter
	prompt    bool
}

// Run launches the conversation, or resumes it when the session exists. Every input line
// is then sent as a text request until the conversation ends or the user types exit.
func (c *chat) Run(ctx context.Context, in io.Reader) error {
	out := c.traces.Out
	fmt.Fprintf(out, "session %s, version %s (type 'exit' to quit)\n", c.sessionID, c.versionID)

	var ended bool
	_, err := c.app.Sessions.Load(ctx, c.sessionID)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		if ended, err = c.turn(ctx, &domain.Request{Type: domain.RequestLaunch}); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		fmt.Fprintln(out, "(resumed)")
	}

	reader := bufio.NewReader(in)
	for !ended {
		if c.prompt {
			fmt.Fprint(out, "> ")
		}
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read input: %w", err)
		}
		text := strings.TrimSpace(line)
		if text == "exit" || text == "quit" {
			fmt.Fprintln(out, "Bye!")
			return nil
		}
		if text == "" && errors.Is(err, io.EOF) {
			return nil
		}

		ended, err = c.turn(ctx, domain.NewTextRequest(text))
		if err != nil {
			return err
		}
	}
	fmt.Fprintln(out, "(conversation ended)")
	return nil
}

func (c *chat) turn(ctx context.Context, req *domain.Request) (bool, error) {
	traces, err := c.app.Turn(ctx, c.sessionID, c.versionID, req)
	if err != nil {
		return false, err
	}
	return c.traces.Write(traces)
}

package main

import (
	"errors"
	"fmt"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/presentation/graph"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <programID>",
	Short: "Export a program as a Mermaid diagram",
	Long: `Outputs a Mermaid flowchart (graph TD) of a program. With --session, the node the
session is waiting on is highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg.Log.Level = "error"

		app, err := parley.New(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize parley: %w", err)
		}
		defer app.Close()

		program, err := app.Data.GetProgram(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		var overlay *graph.Overlay
		if sessionID, _ := cmd.Flags().GetString("session"); sessionID != "" {
			state, err := app.Sessions.Load(cmd.Context(), sessionID)
			if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
				return err
			}
			overlay = graph.OverlayFromState(state, program.ID)
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(program, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("session", "", "Highlight where this session is in the program")
}

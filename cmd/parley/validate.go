package main

import (
	"fmt"

	"github.com/aretw0/parley/internal/validator"
	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Validate the versions and programs of a project",
	Long: `Checks every version and program file against its schema and then checks the graphs:
missing start nodes, dangling transitions, unknown sub-programs, unreachable nodes and
intents the language model does not declare.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		if !cmd.Flags().Changed("dir") && len(args) > 0 {
			dir = args[0]
		}
		strict, _ := cmd.Flags().GetBool("strict")

		report, err := validator.ValidateProject(file.NewDataAPI(dir))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, issue := range report.Issues {
			fmt.Fprintln(out, issue.String())
		}
		failed := len(report.Errors())
		if strict {
			failed = len(report.Issues)
		}
		if failed > 0 {
			return fmt.Errorf("validation failed with %d issues", failed)
		}
		fmt.Fprintf(out, "%s is valid (%d warnings)\n", dir, len(report.Issues))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("strict", false, "Treat warnings as errors")
}

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export trajectories as JSON lines",
		Long: `Write stored trajectory rows as JSON lines:

  {"seed":1000,"step":0,"reaction":3,"time":0.0125}

Rows are ordered by seed and step. Without --seed every trajectory is exported.

Examples:
  rnmc export --results-db state.sqlite > all.jsonl
  rnmc export --results-db state.sqlite --seed 1000 --seed 1001 -o two.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			resultsPath, _ := cmd.Flags().GetString("results-db")
			seeds, _ := cmd.Flags().GetInt64Slice("seed")
			output, _ := cmd.Flags().GetString("output")

			results, err := openResults(resultsPath)
			if err != nil {
				return err
			}
			defer results.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			n, err := results.ExportTrajectories(cmd.Context(), w, seeds)
			if err != nil {
				return fmt.Errorf("export failed after %d rows: %w", n, err)
			}

			if output != "" && output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d rows to %s\n", n, output)
			}
			return nil
		},
	}

	cmd.Flags().String("results-db", "", "Results database (required)")
	cmd.Flags().Int64Slice("seed", nil, "Export only this seed (repeatable)")
	cmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
	cmd.MarkFlagRequired("results-db")

	return cmd
}

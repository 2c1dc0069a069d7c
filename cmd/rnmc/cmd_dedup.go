package main

import (
	"encoding/json"
	"fmt"

	"github.com/nvandessel/rnmc/internal/dedup"
	"github.com/nvandessel/rnmc/internal/logging"
	"github.com/nvandessel/rnmc/internal/store"
	"github.com/spf13/cobra"
)

func newDedupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Remove duplicate trajectory rows",
		Long: `Remove trajectory rows that repeat an earlier (seed, step) pair.

The earliest inserted row of each pair is kept. This pass runs automatically
at the end of every run; use this command after copying results between
stores or after an interrupted run.

Examples:
  rnmc dedup --results-db state.sqlite            # Remove duplicates
  rnmc dedup --results-db state.sqlite --dry-run  # Only count them`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			jsonOut, _ := cmd.Flags().GetBool("json")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			resultsPath, _ := cmd.Flags().GetString("results-db")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
			}

			results, err := openResults(resultsPath)
			if err != nil {
				return err
			}
			defer results.Close()

			journalDir, err := store.JournalDir(results.Path())
			if err != nil {
				return err
			}
			journal := logging.NewJournal(journalDir, cfg.Logging.Level)
			defer journal.Close()

			d := dedup.NewTrajectoryDeduplicator(results)
			d.SetLogger(logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()), journal)

			report, err := d.Run(cmd.Context(), dryRun)
			if err != nil {
				return fmt.Errorf("deduplication failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(report)
			}

			if dryRun {
				fmt.Fprintf(out, "Dry run: %d duplicate rows in %d (nothing removed)\n", report.DuplicatesFound, report.RowsBefore)
				return nil
			}
			fmt.Fprintf(out, "Removed %d duplicate rows (%d -> %d)\n", report.DuplicatesRemoved, report.RowsBefore, report.RowsAfter)
			return nil
		},
	}

	cmd.Flags().String("results-db", "", "Results database (required)")
	cmd.Flags().Bool("dry-run", false, "Count duplicates without removing them")
	cmd.MarkFlagRequired("results-db")

	return cmd
}

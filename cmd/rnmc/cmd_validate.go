package main

import (
	"encoding/json"
	"fmt"

	"github.com/nvandessel/rnmc/internal/network"
	"github.com/nvandessel/rnmc/internal/store"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check stored trajectories for consistency issues",
		Long: `Check the results store for consistency issues.

This command checks for:
  - SQLite integrity (PRAGMA integrity_check)
  - Duplicate (seed, step) rows
  - Gaps in the step sequence of a trajectory
  - Event times that decrease within a trajectory
  - Reaction ids outside the network (requires --network-db)

Examples:
  rnmc validate --results-db state.sqlite
  rnmc validate --results-db state.sqlite --network-db rn.sqlite`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			jsonOut, _ := cmd.Flags().GetBool("json")
			resultsPath, _ := cmd.Flags().GetString("results-db")
			networkPath, _ := cmd.Flags().GetString("network-db")
			ctx := cmd.Context()

			results, err := openResults(resultsPath)
			if err != nil {
				return err
			}
			defer results.Close()

			if err := store.ValidateIntegrity(ctx, results.DB()); err != nil {
				return err
			}

			// Zero skips the reaction range check.
			numReactions := 0
			if networkPath != "" {
				net, err := loadNetwork(ctx, networkPath, resultsPath, network.Options{})
				if err != nil {
					return err
				}
				numReactions = net.NumReactions()
			}

			issues, err := results.ValidateTrajectories(ctx, numReactions)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			return outputValidationResults(cmd, issues, jsonOut)
		},
	}

	cmd.Flags().String("results-db", "", "Results database (required)")
	cmd.Flags().String("network-db", "", "Reaction network database, for reaction id checks")
	cmd.MarkFlagRequired("results-db")

	return cmd
}

func outputValidationResults(cmd *cobra.Command, issues []store.ValidationError, jsonOut bool) error {
	out := cmd.OutOrStdout()
	if jsonOut {
		if issues == nil {
			issues = []store.ValidationError{}
		}
		if err := json.NewEncoder(out).Encode(map[string]interface{}{
			"valid":  len(issues) == 0,
			"issues": issues,
		}); err != nil {
			return err
		}
	} else if len(issues) == 0 {
		fmt.Fprintln(out, "✓ All trajectories are consistent")
	} else {
		fmt.Fprintf(out, "✗ Found %d issue(s):\n", len(issues))
		for _, issue := range issues {
			fmt.Fprintf(out, "  - %s\n", issue)
		}
	}

	if len(issues) > 0 {
		return fmt.Errorf("%d validation issue(s)", len(issues))
	}
	return nil
}

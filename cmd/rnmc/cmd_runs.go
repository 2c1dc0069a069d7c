package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nvandessel/rnmc/internal/store"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the runs recorded in a results store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			jsonOut, _ := cmd.Flags().GetBool("json")
			resultsPath, _ := cmd.Flags().GetString("results-db")

			results, err := openResults(resultsPath)
			if err != nil {
				return err
			}
			defer results.Close()

			runs, err := results.Runs(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if runs == nil {
					runs = []store.RunRecord{}
				}
				return json.NewEncoder(out).Encode(runs)
			}

			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			for _, r := range runs {
				finished := "-"
				if r.FinishedAt != nil {
					finished = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
				}
				fmt.Fprintf(out, "%s  %-8s  seeds %d..%d  threads=%d  cutoff=%d  trajectories=%d  took %s\n",
					r.ID, r.Status, r.BaseSeed, r.BaseSeed+int64(r.Simulations)-1,
					r.Threads, r.StepCutoff, r.Trajectories, finished)
			}
			return nil
		},
	}

	cmd.Flags().String("results-db", "", "Results database (required)")
	cmd.MarkFlagRequired("results-db")

	return cmd
}

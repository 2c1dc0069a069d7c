package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rnmc",
		Short: "Parallel kinetic Monte Carlo for reaction networks",
		Long: `rnmc runs many independent stochastic trajectories of a chemical
reaction network and stores every trajectory's event log in SQLite.

The network (species, reactions, rates) is read from a SQLite store. Each
trajectory is identified by its seed; trajectories are simulated in parallel
and written to the results store as they finish.`,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.rnmc/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: warn, info, debug, or trace (overrides config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newDedupCmd(),
		newExportCmd(),
		newInspectCmd(),
		newValidateCmd(),
		newRunsCmd(),
		newConfigCmd(),
	)

	return rootCmd
}

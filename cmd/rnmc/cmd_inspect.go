package main

import (
	"encoding/json"
	"fmt"

	"github.com/nvandessel/rnmc/internal/network"
	"github.com/nvandessel/rnmc/internal/visualization"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show a reaction network and its initial propensities",
		Long: `Load a reaction network the way 'rnmc run' does and print it.

Formats:
  text  species counts, reactions and initial propensities (default)
  dot   Graphviz bipartite graph of species and reactions
  json  the same data as text, machine readable (also selected by --json)

Examples:
  rnmc inspect --network-db rn.sqlite
  rnmc inspect --network-db rn.sqlite --state-db state.sqlite --format dot | dot -Tsvg > rn.svg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			networkPath, _ := cmd.Flags().GetString("network-db")
			statePath, _ := cmd.Flags().GetString("state-db")
			formatFlag, _ := cmd.Flags().GetString("format")

			format, err := visualization.ParseFormat(formatFlag)
			if err != nil {
				return err
			}
			if jsonOut {
				format = visualization.FormatJSON
			}
			cmd.SilenceUsage = true

			net, err := loadNetwork(cmd.Context(), networkPath, statePath, network.Options{})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case visualization.FormatDOT:
				fmt.Fprint(out, visualization.RenderDOT(net))
			case visualization.FormatJSON:
				return json.NewEncoder(out).Encode(visualization.Summarize(net))
			default:
				fmt.Fprint(out, visualization.RenderText(net))
			}
			return nil
		},
	}

	cmd.Flags().String("network-db", "", "Reaction network database (required)")
	cmd.Flags().String("state-db", "", "Initial state database (default: the network database)")
	cmd.Flags().String("format", "text", "Output format: text, dot, or json")
	cmd.MarkFlagRequired("network-db")

	return cmd
}

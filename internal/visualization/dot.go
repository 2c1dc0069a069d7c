// Package visualization renders reaction networks in various output formats.
package visualization

import (
	"fmt"
	"strings"

	"github.com/nvandessel/rnmc/internal/network"
)

// Format specifies the output format for network rendering.
type Format string

const (
	FormatText Format = "text"
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatDOT, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (must be text, dot, or json)", s)
	}
}

// nodeColors maps node kinds to DOT colors.
var nodeColors = map[string]string{
	"species":  "steelblue",
	"reaction": "goldenrod",
	"inactive": "lightgray",
}

func speciesID(s int) string  { return fmt.Sprintf("s%d", s) }
func reactionID(r int) string { return fmt.Sprintf("r%d", r) }

// RenderDOT produces a Graphviz DOT bipartite graph: species nodes, reaction
// nodes, reactant edges into each reaction and product edges out of it.
// Reactions whose initial propensity is zero are drawn grey.
func RenderDOT(net *network.ReactionNetwork) string {
	state := net.InitialState()
	propensities := net.InitialPropensities()

	var b strings.Builder
	b.WriteString("digraph rnmc {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	for s := range net.NumSpecies() {
		fmt.Fprintf(&b, "  %q [label=\"%d\", shape=ellipse, fillcolor=%q, tooltip=\"count=%d\"];\n",
			speciesID(s), s, nodeColors["species"], state[s])
	}
	b.WriteString("\n")

	for r := range net.NumReactions() {
		color := nodeColors["reaction"]
		if propensities[r] == 0 {
			color = nodeColors["inactive"]
		}
		fmt.Fprintf(&b, "  %q [label=\"R%d\\nk=%g\", shape=box, fillcolor=%q, tooltip=\"propensity=%g\"];\n",
			reactionID(r), r, net.Rate(r), color, propensities[r])
	}
	b.WriteString("\n")

	for r := range net.NumReactions() {
		for _, s := range net.Reactants(r) {
			fmt.Fprintf(&b, "  %q -> %q [style=solid];\n", speciesID(s), reactionID(r))
		}
		for _, s := range net.Products(r) {
			fmt.Fprintf(&b, "  %q -> %q [style=dashed];\n", reactionID(r), speciesID(s))
		}
	}

	b.WriteString("}\n")
	return b.String()
}

// Summary is the JSON form of a reaction network with its initial propensities.
type Summary struct {
	NumSpecies          int               `json:"number_of_species"`
	NumReactions        int               `json:"number_of_reactions"`
	InitialState        []int             `json:"initial_state"`
	Reactions           []ReactionSummary `json:"reactions"`
	TotalPropensity     float64           `json:"total_propensity"`
	ActiveReactions     int               `json:"active_reactions"`
	DependencyThreshold int               `json:"dependency_threshold"`
}

// ReactionSummary describes one reaction of a Summary.
type ReactionSummary struct {
	ID         int     `json:"id"`
	Reactants  []int   `json:"reactants"`
	Products   []int   `json:"products"`
	Rate       float64 `json:"rate"`
	Propensity float64 `json:"initial_propensity"`
}

// Summarize collects the network tables and initial propensities.
func Summarize(net *network.ReactionNetwork) Summary {
	propensities := net.InitialPropensities()
	sum := Summary{
		NumSpecies:          net.NumSpecies(),
		NumReactions:        net.NumReactions(),
		InitialState:        net.InitialState(),
		Reactions:           make([]ReactionSummary, 0, net.NumReactions()),
		DependencyThreshold: net.DependencyThreshold(),
	}
	for r, p := range propensities {
		sum.Reactions = append(sum.Reactions, ReactionSummary{
			ID:         r,
			Reactants:  append([]int{}, net.Reactants(r)...),
			Products:   append([]int{}, net.Products(r)...),
			Rate:       net.Rate(r),
			Propensity: p,
		})
		sum.TotalPropensity += p
		if p > 0 {
			sum.ActiveReactions++
		}
	}
	return sum
}

// RenderText produces a human-readable table of the network.
func RenderText(net *network.ReactionNetwork) string {
	sum := Summarize(net)

	var b strings.Builder
	fmt.Fprintf(&b, "Species:   %d\n", sum.NumSpecies)
	fmt.Fprintf(&b, "Reactions: %d (%d active)\n", sum.NumReactions, sum.ActiveReactions)
	fmt.Fprintf(&b, "Total initial propensity: %g\n\n", sum.TotalPropensity)

	b.WriteString("Initial state:\n")
	for s, count := range sum.InitialState {
		fmt.Fprintf(&b, "  %d: %d\n", s, count)
	}
	b.WriteString("\nReactions:\n")
	for _, rxn := range sum.Reactions {
		fmt.Fprintf(&b, "  R%-4d %s -> %s  k=%g  a0=%g\n",
			rxn.ID, sideString(rxn.Reactants), sideString(rxn.Products), rxn.Rate, rxn.Propensity)
	}
	return b.String()
}

func sideString(species []int) string {
	if len(species) == 0 {
		return "0"
	}
	parts := make([]string, len(species))
	for i, s := range species {
		parts[i] = fmt.Sprintf("S%d", s)
	}
	return strings.Join(parts, " + ")
}

package visualization

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nvandessel/rnmc/internal/network"
)

// setupTestNetwork builds S0 -> S1 (k=2), S0 + S1 -> 0 (k=1), 0 -> S0 (k=0.5)
// starting from three S0 and no S1.
func setupTestNetwork(t *testing.T) *network.ReactionNetwork {
	t.Helper()
	net, err := network.New(network.Definition{
		NumSpecies: 2,
		Reactions: []network.Reaction{
			{Reactants: []int{0}, Products: []int{1}, Rate: 2},
			{Reactants: []int{0, 1}, Rate: 1},
			{Products: []int{0}, Rate: 0.5},
		},
		InitialState:    []int{3, 0},
		FactorZero:      1,
		FactorTwo:       1,
		FactorDuplicate: 0.5,
	}, network.Options{DependencyThreshold: 4})
	if err != nil {
		t.Fatalf("network.New() error = %v", err)
	}
	return net
}

func TestRenderDOT(t *testing.T) {
	out := RenderDOT(setupTestNetwork(t))

	if !strings.HasPrefix(out, "digraph rnmc {") {
		t.Errorf("output does not start with digraph header:\n%s", out)
	}
	if !strings.HasSuffix(out, "}\n") {
		t.Errorf("output is not closed:\n%s", out)
	}

	wants := []string{
		`"s0" [label="0", shape=ellipse`,
		`tooltip="count=3"`,
		`"r0" [label="R0\nk=2", shape=box, fillcolor="goldenrod"`,
		`"r1" [label="R1\nk=1", shape=box, fillcolor="lightgray"`,
		`"s0" -> "r0" [style=solid]`,
		`"r0" -> "s1" [style=dashed]`,
		`"s1" -> "r1" [style=solid]`,
		`"r2" -> "s0" [style=dashed]`,
	}
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("DOT output missing %q:\n%s", want, out)
		}
	}

	if got := strings.Count(out, "->"); got != 5 {
		t.Errorf("DOT output has %d edges, want 5", got)
	}
}

func TestRenderDOT_EmptyNetwork(t *testing.T) {
	net, err := network.New(network.Definition{}, network.Options{})
	if err != nil {
		t.Fatalf("network.New() error = %v", err)
	}
	out := RenderDOT(net)
	if strings.Contains(out, "->") {
		t.Errorf("empty network rendered edges:\n%s", out)
	}
}

func TestSummarize(t *testing.T) {
	sum := Summarize(setupTestNetwork(t))

	if sum.NumSpecies != 2 || sum.NumReactions != 3 {
		t.Errorf("counts = %d species, %d reactions, want 2, 3", sum.NumSpecies, sum.NumReactions)
	}
	if sum.TotalPropensity != 6.5 {
		t.Errorf("TotalPropensity = %v, want 6.5", sum.TotalPropensity)
	}
	if sum.ActiveReactions != 2 {
		t.Errorf("ActiveReactions = %d, want 2", sum.ActiveReactions)
	}
	if sum.DependencyThreshold != 4 {
		t.Errorf("DependencyThreshold = %d, want 4", sum.DependencyThreshold)
	}
	if got := sum.Reactions[1].Propensity; got != 0 {
		t.Errorf("reaction 1 propensity = %v, want 0", got)
	}

	data, err := json.Marshal(sum)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	// Empty participant lists must encode as [] rather than null.
	if strings.Contains(string(data), "null") {
		t.Errorf("summary JSON contains null: %s", data)
	}
}

func TestRenderText(t *testing.T) {
	out := RenderText(setupTestNetwork(t))

	for _, want := range []string{
		"Species:   2",
		"Reactions: 3 (2 active)",
		"Total initial propensity: 6.5",
		"S0 -> S1",
		"S0 + S1 -> 0",
		"0 -> S0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"text", FormatText, false},
		{"DOT", FormatDOT, false},
		{"json", FormatJSON, false},
		{"html", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

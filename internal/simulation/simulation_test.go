package simulation_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/nvandessel/rnmc/internal/network"
	"github.com/nvandessel/rnmc/internal/simulation"
	"github.com/nvandessel/rnmc/internal/solver"
)

// birthDeath is ∅ -> A (k1), A -> ∅ (k2).
func birthDeath(t *testing.T, initial int) *network.ReactionNetwork {
	t.Helper()
	net, err := network.New(network.Definition{
		NumSpecies: 1,
		Reactions: []network.Reaction{
			{Products: []int{0}, Rate: 1.0},
			{Reactants: []int{0}, Rate: 0.1},
		},
		InitialState:    []int{initial},
		FactorZero:      1,
		FactorTwo:       1,
		FactorDuplicate: 0.5,
	}, network.Options{DependencyThreshold: 1})
	if err != nil {
		t.Fatalf("network.New() error = %v", err)
	}
	return net
}

// dimerization mixes every propensity branch across four species.
func dimerization(t *testing.T, threshold int) *network.ReactionNetwork {
	t.Helper()
	net, err := network.New(network.Definition{
		NumSpecies: 4,
		Reactions: []network.Reaction{
			{Products: []int{0}, Rate: 5},
			{Reactants: []int{0, 0}, Products: []int{1}, Rate: 0.02},
			{Reactants: []int{1}, Products: []int{0, 0}, Rate: 0.3},
			{Reactants: []int{0, 2}, Products: []int{3}, Rate: 0.01},
			{Reactants: []int{3}, Products: []int{2}, Rate: 0.5},
			{Reactants: []int{0}, Rate: 0.05},
			{Products: []int{2}, Rate: 0.2},
		},
		InitialState:    []int{20, 0, 10, 0},
		FactorZero:      1,
		FactorTwo:       1,
		FactorDuplicate: 0.5,
	}, network.Options{DependencyThreshold: threshold})
	if err != nil {
		t.Fatalf("network.New() error = %v", err)
	}
	return net
}

func TestRunFor_BirthDeathCutoff(t *testing.T) {
	net := birthDeath(t, 0)
	sim := simulation.New(net, 1, solver.Factory)

	status, err := sim.RunFor(context.Background(), 50)
	if err != nil {
		t.Fatalf("RunFor() error = %v", err)
	}
	if status != simulation.StatusCutoffReached {
		t.Errorf("status = %v, want %v", status, simulation.StatusCutoffReached)
	}
	if sim.Steps() != 50 {
		t.Errorf("Steps() = %d, want 50", sim.Steps())
	}

	h := sim.TakeHistory()
	if h.Len() > 50 {
		t.Fatalf("history has %d events, want <= 50", h.Len())
	}

	prev := 0.0
	population := 0
	for step, e := range h.All() {
		if e.Time < prev {
			t.Fatalf("step %d: time %v before previous %v", step, e.Time, prev)
		}
		prev = e.Time
		switch e.Reaction {
		case 0:
			population++
		case 1:
			population--
		default:
			t.Fatalf("step %d: unknown reaction %d", step, e.Reaction)
		}
		if population < 0 {
			t.Fatalf("step %d: population went negative", step)
		}
	}
	if got := sim.State()[0]; got != population {
		t.Errorf("final state = %d, replayed history gives %d", got, population)
	}
	if sim.Time() != prev {
		t.Errorf("Time() = %v, want last event time %v", sim.Time(), prev)
	}
}

func TestRunFor_DeadEnd(t *testing.T) {
	net, err := network.New(network.Definition{
		NumSpecies:   1,
		Reactions:    []network.Reaction{{Reactants: []int{0}, Rate: 1}},
		InitialState: []int{3},
	}, network.Options{})
	if err != nil {
		t.Fatalf("network.New() error = %v", err)
	}

	sim := simulation.New(net, 9, solver.Factory)
	status, err := sim.RunFor(context.Background(), 100)
	if err != nil {
		t.Fatalf("RunFor() error = %v", err)
	}
	if status != simulation.StatusDeadEnd {
		t.Errorf("status = %v, want %v", status, simulation.StatusDeadEnd)
	}
	if sim.Steps() != 3 {
		t.Errorf("Steps() = %d, want 3", sim.Steps())
	}
	if got := sim.State(); got[0] != 0 {
		t.Errorf("State() = %v, want [0]", got)
	}
}

// recordingSource wraps a Linear source and snapshots its propensity vector
// after every step.
type recordingSource struct {
	*solver.Linear
	props     []float64
	snapshots [][]float64
	fired     bool
}

func (r *recordingSource) Event() (int, float64, bool) {
	if r.fired {
		r.snapshots = append(r.snapshots, slices.Clone(r.props))
	}
	reaction, dt, ok := r.Linear.Event()
	r.fired = ok
	return reaction, dt, ok
}

func (r *recordingSource) Update(reaction int, p float64) {
	r.props[reaction] = p
	r.Linear.Update(reaction, p)
}

func runRecorded(t *testing.T, net *network.ReactionNetwork, mode simulation.UpdateMode) (*recordingSource, *simulation.Simulation) {
	t.Helper()
	var src *recordingSource
	factory := func(seed int64, props []float64) simulation.EventSource {
		src = &recordingSource{
			Linear: solver.NewLinear(seed, slices.Clone(props)),
			props:  props,
		}
		return src
	}
	sim := simulation.New(net, 12345, factory, simulation.WithUpdateMode(mode))
	if _, err := sim.RunFor(context.Background(), 400); err != nil {
		t.Fatalf("RunFor() error = %v", err)
	}
	return src, sim
}

func TestStep_LazyAndFullUpdatesAgree(t *testing.T) {
	lazySrc, lazySim := runRecorded(t, dimerization(t, 0), simulation.UpdateLazy)
	fullSrc, fullSim := runRecorded(t, dimerization(t, 0), simulation.UpdateFull)

	if len(lazySrc.snapshots) != len(fullSrc.snapshots) {
		t.Fatalf("snapshot count differs: lazy %d, full %d", len(lazySrc.snapshots), len(fullSrc.snapshots))
	}
	for i := range lazySrc.snapshots {
		if !slices.Equal(lazySrc.snapshots[i], fullSrc.snapshots[i]) {
			t.Fatalf("step %d propensities differ:\nlazy %v\nfull %v", i, lazySrc.snapshots[i], fullSrc.snapshots[i])
		}
	}

	if !slices.Equal(lazySim.TakeHistory().Events(), fullSim.TakeHistory().Events()) {
		t.Error("lazy and full trajectories diverged")
	}
	if !slices.Equal(lazySim.State(), fullSim.State()) {
		t.Errorf("final states differ: lazy %v, full %v", lazySim.State(), fullSim.State())
	}
}

func TestStep_CacheStateDoesNotChangeTrajectory(t *testing.T) {
	// Threshold 0 caches on first firing; a huge threshold never caches.
	cached := simulation.New(dimerization(t, 0), 77, solver.Factory)
	uncached := simulation.New(dimerization(t, 1<<30), 77, solver.Factory)

	for _, sim := range []*simulation.Simulation{cached, uncached} {
		if _, err := sim.RunFor(context.Background(), 300); err != nil {
			t.Fatalf("RunFor() error = %v", err)
		}
	}
	if !slices.Equal(cached.TakeHistory().Events(), uncached.TakeHistory().Events()) {
		t.Error("cached and uncached dependency graphs produced different trajectories")
	}
}

func TestStep_CacheSurvivesGarbageCollection(t *testing.T) {
	reference := simulation.New(dimerization(t, 0), 5, solver.Factory)
	if _, err := reference.RunFor(context.Background(), 300); err != nil {
		t.Fatalf("RunFor() error = %v", err)
	}

	net := dimerization(t, 0)
	swept := simulation.New(net, 5, solver.Factory)
	for swept.Steps() < 300 {
		if _, err := swept.RunFor(context.Background(), swept.Steps()+10); err != nil {
			t.Fatalf("RunFor() error = %v", err)
		}
		net.CollectGarbage(1000)
	}

	if !slices.Equal(reference.TakeHistory().Events(), swept.TakeHistory().Events()) {
		t.Error("garbage collection changed the trajectory")
	}
}

// scriptedSource fires a fixed list of reactions with dt = 1.
type scriptedSource struct {
	script []int
}

func (s *scriptedSource) Event() (int, float64, bool) {
	if len(s.script) == 0 {
		return -1, 0, false
	}
	r := s.script[0]
	s.script = s.script[1:]
	return r, 1, true
}

func (s *scriptedSource) Update(int, float64) {}

func TestStep_NegativePopulation(t *testing.T) {
	net := birthDeath(t, 1)
	factory := func(int64, []float64) simulation.EventSource {
		return &scriptedSource{script: []int{1, 1}}
	}
	sim := simulation.New(net, 1, factory)

	if _, err := sim.Step(); err != nil {
		t.Fatalf("first Step() error = %v", err)
	}
	_, err := sim.Step()
	if !errors.Is(err, simulation.ErrNegativePopulation) {
		t.Fatalf("second Step() error = %v, want ErrNegativePopulation", err)
	}

	_, err = simulation.New(net, 1, factory).RunFor(context.Background(), 10)
	if !errors.Is(err, simulation.ErrNegativePopulation) {
		t.Errorf("RunFor() error = %v, want ErrNegativePopulation", err)
	}
}

func TestRunFor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sim := simulation.New(birthDeath(t, 5), 1, solver.Factory)
	if _, err := sim.RunFor(ctx, 100); !errors.Is(err, context.Canceled) {
		t.Errorf("RunFor() error = %v, want context.Canceled", err)
	}
	if sim.Steps() != 0 {
		t.Errorf("Steps() = %d after cancelled run, want 0", sim.Steps())
	}
}

func TestTakeHistory_HandsOffOwnership(t *testing.T) {
	sim := simulation.New(birthDeath(t, 0), 3, solver.Factory)
	if _, err := sim.RunFor(context.Background(), 10); err != nil {
		t.Fatalf("RunFor() error = %v", err)
	}
	h := sim.TakeHistory()
	if h.Len() != 10 {
		t.Errorf("taken history len = %d, want 10", h.Len())
	}
	if again := sim.TakeHistory(); again.Len() != 0 {
		t.Errorf("second TakeHistory len = %d, want 0", again.Len())
	}
}

func TestParseUpdateMode(t *testing.T) {
	tests := []struct {
		input   string
		want    simulation.UpdateMode
		wantErr bool
	}{
		{"", simulation.UpdateLazy, false},
		{"lazy", simulation.UpdateLazy, false},
		{"FULL", simulation.UpdateFull, false},
		{"eager", simulation.UpdateLazy, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := simulation.ParseUpdateMode(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseUpdateMode(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseUpdateMode(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

package simulation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nvandessel/rnmc/internal/network"
)

// ErrNegativePopulation reports a species count dropping below zero. It means
// the network data or the event source is broken; it is never recovered from.
var ErrNegativePopulation = errors.New("negative species population")

// EventSource samples the next reaction and waiting time from the
// propensities it has been given.
type EventSource interface {
	// Event returns the next reaction and the time until it fires.
	// ok is false when no reaction can fire (a dead end).
	Event() (reaction int, dt float64, ok bool)

	// Update replaces the propensity of reaction.
	Update(reaction int, propensity float64)
}

// SourceFactory builds an EventSource seeded with seed and primed with the
// initial propensities. The propensities slice is owned by the source.
type SourceFactory func(seed int64, propensities []float64) EventSource

// Outcome is the result of a single Step.
type Outcome int

const (
	// Fired means a reaction fired and the state advanced.
	Fired Outcome = iota
	// DeadEnd means no reaction could fire.
	DeadEnd
)

// Status is the terminal state reached by RunFor.
type Status int

const (
	// StatusDeadEnd means the trajectory was absorbed.
	StatusDeadEnd Status = iota
	// StatusCutoffReached means the step cutoff was hit.
	StatusCutoffReached
)

// String returns a short name for the status.
func (s Status) String() string {
	switch s {
	case StatusDeadEnd:
		return "dead-end"
	case StatusCutoffReached:
		return "cutoff-reached"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// UpdateMode selects how propensities are refreshed after a firing.
type UpdateMode int

const (
	// UpdateLazy uses cached dependents when the dependency graph has them,
	// and refreshes every reaction otherwise.
	UpdateLazy UpdateMode = iota
	// UpdateFull always refreshes every reaction.
	UpdateFull
)

func (m UpdateMode) String() string {
	switch m {
	case UpdateLazy:
		return "lazy"
	case UpdateFull:
		return "full"
	default:
		return fmt.Sprintf("update_mode(%d)", int(m))
	}
}

// ParseUpdateMode converts "lazy" or "full" to an UpdateMode.
// The empty string selects UpdateLazy.
func ParseUpdateMode(s string) (UpdateMode, error) {
	switch strings.ToLower(s) {
	case "", "lazy":
		return UpdateLazy, nil
	case "full":
		return UpdateFull, nil
	default:
		return UpdateLazy, fmt.Errorf("unknown update mode %q (must be lazy or full)", s)
	}
}

// Option configures a Simulation.
type Option func(*Simulation)

// WithUpdateMode overrides the propensity update strategy.
func WithUpdateMode(mode UpdateMode) Option {
	return func(s *Simulation) { s.mode = mode }
}

// Simulation is the mutable state of one trajectory.
type Simulation struct {
	net     *network.ReactionNetwork
	seed    int64
	state   []int
	time    float64
	step    int
	source  EventSource
	history *History
	mode    UpdateMode
}

// New prepares a trajectory of net starting from its initial state.
func New(net *network.ReactionNetwork, seed int64, factory SourceFactory, opts ...Option) *Simulation {
	s := &Simulation{
		net:     net,
		seed:    seed,
		state:   net.InitialState(),
		source:  factory(seed, net.InitialPropensities()),
		history: NewHistory(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed returns the seed the trajectory was started with.
func (s *Simulation) Seed() int64 { return s.seed }

// Time returns the simulated time of the last firing.
func (s *Simulation) Time() float64 { return s.time }

// Steps returns the number of reactions fired so far.
func (s *Simulation) Steps() int { return s.step }

// State returns a copy of the current population vector.
func (s *Simulation) State() []int {
	return append([]int(nil), s.state...)
}

// TakeHistory hands the event log to the caller. The simulation keeps
// recording into a fresh History if stepped again.
func (s *Simulation) TakeHistory() *History {
	h := s.history
	s.history = NewHistory()
	return h
}

// Step fires one reaction.
func (s *Simulation) Step() (Outcome, error) {
	reaction, dt, ok := s.source.Event()
	if !ok {
		return DeadEnd, nil
	}

	s.step++
	s.time += dt
	s.history.Append(reaction, s.time)

	for _, species := range s.net.Reactants(reaction) {
		s.state[species]--
	}
	for _, species := range s.net.Products(reaction) {
		s.state[species]++
	}
	for _, species := range s.net.Reactants(reaction) {
		if s.state[species] < 0 {
			return Fired, fmt.Errorf("%w: species %d = %d after reaction %d (seed %d, step %d)",
				ErrNegativePopulation, species, s.state[species], reaction, s.seed, s.step)
		}
	}

	dependents, computed := s.net.Node(reaction)
	if computed && s.mode == UpdateLazy {
		for _, r := range dependents {
			s.source.Update(r, s.net.Propensity(s.state, r))
		}
		return Fired, nil
	}

	for r := range s.net.NumReactions() {
		s.source.Update(r, s.net.Propensity(s.state, r))
	}
	return Fired, nil
}

// RunFor steps until the trajectory dead-ends or cutoff reactions have
// fired. ctx is checked between steps.
func (s *Simulation) RunFor(ctx context.Context, cutoff int) (Status, error) {
	done := ctx.Done()
	for s.step < cutoff {
		select {
		case <-done:
			return StatusCutoffReached, ctx.Err()
		default:
		}

		outcome, err := s.Step()
		if err != nil {
			return StatusCutoffReached, err
		}
		if outcome == DeadEnd {
			return StatusDeadEnd, nil
		}
	}
	return StatusCutoffReached, nil
}

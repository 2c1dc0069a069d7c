// Package network holds the immutable reaction network shared by every
// trajectory, together with its lazily computed dependency graph.
//
// A ReactionNetwork is safe for concurrent use. Its species, reaction and rate
// tables never change after New returns; the only mutable part is the
// dependency graph, where each node carries its own lock.
package network

import (
	"errors"
	"fmt"
)

// MaxParticipants is the largest number of reactants or products a reaction may have.
const MaxParticipants = 2

// ErrInvalidDefinition is returned by New when a Definition violates the
// network invariants.
var ErrInvalidDefinition = errors.New("invalid reaction network definition")

// Reaction is one elementary reaction of a Definition.
type Reaction struct {
	Reactants []int   `json:"reactants" yaml:"reactants"`
	Products  []int   `json:"products" yaml:"products"`
	Rate      float64 `json:"rate" yaml:"rate"`
}

// Definition is the plain data a ReactionNetwork is built from.
type Definition struct {
	NumSpecies      int        `json:"number_of_species" yaml:"number_of_species"`
	Reactions       []Reaction `json:"reactions" yaml:"reactions"`
	InitialState    []int      `json:"initial_state" yaml:"initial_state"`
	FactorZero      float64    `json:"factor_zero" yaml:"factor_zero"`
	FactorTwo       float64    `json:"factor_two" yaml:"factor_two"`
	FactorDuplicate float64    `json:"factor_duplicate" yaml:"factor_duplicate"`
}

// Validate checks species indices, participant counts and state length.
func (d Definition) Validate() error {
	if d.NumSpecies < 0 {
		return fmt.Errorf("%w: negative species count %d", ErrInvalidDefinition, d.NumSpecies)
	}
	if len(d.InitialState) != d.NumSpecies {
		return fmt.Errorf("%w: initial state has %d entries, want %d",
			ErrInvalidDefinition, len(d.InitialState), d.NumSpecies)
	}
	for i, count := range d.InitialState {
		if count < 0 {
			return fmt.Errorf("%w: species %d has negative initial population %d", ErrInvalidDefinition, i, count)
		}
	}
	for r, rxn := range d.Reactions {
		if len(rxn.Reactants) > MaxParticipants {
			return fmt.Errorf("%w: reaction %d has %d reactants", ErrInvalidDefinition, r, len(rxn.Reactants))
		}
		if len(rxn.Products) > MaxParticipants {
			return fmt.Errorf("%w: reaction %d has %d products", ErrInvalidDefinition, r, len(rxn.Products))
		}
		for _, s := range rxn.Reactants {
			if s < 0 || s >= d.NumSpecies {
				return fmt.Errorf("%w: reaction %d reactant %d out of range", ErrInvalidDefinition, r, s)
			}
		}
		for _, s := range rxn.Products {
			if s < 0 || s >= d.NumSpecies {
				return fmt.Errorf("%w: reaction %d product %d out of range", ErrInvalidDefinition, r, s)
			}
		}
		if rxn.Rate < 0 {
			return fmt.Errorf("%w: reaction %d has negative rate %g", ErrInvalidDefinition, r, rxn.Rate)
		}
	}
	return nil
}

// Options tunes the dependency graph of a ReactionNetwork.
type Options struct {
	// DependencyThreshold is the number of firings a reaction must accumulate
	// before its dependents are computed and cached. Zero computes on first use.
	DependencyThreshold int
}

// participants is a fixed-size reactant or product list.
type participants struct {
	n       int
	species [MaxParticipants]int
}

func newParticipants(species []int) participants {
	var p participants
	p.n = copy(p.species[:], species)
	return p
}

func (p participants) slice() []int {
	return p.species[:p.n]
}

// ReactionNetwork is the static description of a reaction network plus its
// dependency graph.
type ReactionNetwork struct {
	numSpecies int

	reactants []participants
	products  []participants
	rates     []float64

	factorZero      float64
	factorTwo       float64
	factorDuplicate float64

	initialState        []int
	initialPropensities []float64

	dependencyThreshold int
	graph               []DependentsNode
}

// New builds a ReactionNetwork from def. The definition is validated and
// copied; initial propensities are computed once here.
func New(def Definition, opts Options) (*ReactionNetwork, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if opts.DependencyThreshold < 0 {
		return nil, fmt.Errorf("%w: negative dependency threshold %d", ErrInvalidDefinition, opts.DependencyThreshold)
	}

	numReactions := len(def.Reactions)
	rn := &ReactionNetwork{
		numSpecies:          def.NumSpecies,
		reactants:           make([]participants, numReactions),
		products:            make([]participants, numReactions),
		rates:               make([]float64, numReactions),
		factorZero:          def.FactorZero,
		factorTwo:           def.FactorTwo,
		factorDuplicate:     def.FactorDuplicate,
		initialState:        append([]int(nil), def.InitialState...),
		initialPropensities: make([]float64, numReactions),
		dependencyThreshold: opts.DependencyThreshold,
		graph:               make([]DependentsNode, numReactions),
	}

	for i, rxn := range def.Reactions {
		rn.reactants[i] = newParticipants(rxn.Reactants)
		rn.products[i] = newParticipants(rxn.Products)
		rn.rates[i] = rxn.Rate
		rn.graph[i].reset()
	}

	for i := range numReactions {
		rn.initialPropensities[i] = rn.Propensity(rn.initialState, i)
	}

	return rn, nil
}

// NumSpecies returns the number of species.
func (rn *ReactionNetwork) NumSpecies() int { return rn.numSpecies }

// NumReactions returns the number of reactions.
func (rn *ReactionNetwork) NumReactions() int { return len(rn.rates) }

// Reactants returns the reactant species of reaction i. The slice must not be modified.
func (rn *ReactionNetwork) Reactants(i int) []int { return rn.reactants[i].slice() }

// Products returns the product species of reaction i. The slice must not be modified.
func (rn *ReactionNetwork) Products(i int) []int { return rn.products[i].slice() }

// Rate returns the rate constant of reaction i.
func (rn *ReactionNetwork) Rate(i int) float64 { return rn.rates[i] }

// DependencyThreshold returns the firing count required before a node is cached.
func (rn *ReactionNetwork) DependencyThreshold() int { return rn.dependencyThreshold }

// InitialState returns a fresh copy of the initial population vector.
func (rn *ReactionNetwork) InitialState() []int {
	return append([]int(nil), rn.initialState...)
}

// InitialPropensities returns a fresh copy of the initial propensity vector.
func (rn *ReactionNetwork) InitialPropensities() []float64 {
	return append([]float64(nil), rn.initialPropensities...)
}

// Propensity returns the firing rate of reaction given the population state.
// It reads only immutable data and is safe for concurrent use.
func (rn *ReactionNetwork) Propensity(state []int, reaction int) float64 {
	rate := rn.rates[reaction]
	r := rn.reactants[reaction]

	switch r.n {
	case 0:
		return rate * rn.factorZero
	case 1:
		return float64(state[r.species[0]]) * rate
	default:
		a, b := r.species[0], r.species[1]
		if a == b {
			return rate * rn.factorTwo * rn.factorDuplicate *
				float64(state[a]) * float64(state[a]-1)
		}
		return rate * rn.factorTwo * float64(state[a]) * float64(state[b])
	}
}

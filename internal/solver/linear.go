// Package solver provides the default event source used to sample reaction
// firings: a linear-scan direct method over the propensity vector.
package solver

import (
	"math"
	"math/rand/v2"

	"github.com/nvandessel/rnmc/internal/simulation"
)

// Linear samples the next reaction by scanning the cumulative propensity
// sum. Each Event is O(R); Update is O(1). It is not safe for concurrent use.
type Linear struct {
	propensities []float64
	rng          *rand.Rand
}

// NewLinear returns a Linear source seeded with seed. It takes ownership of
// propensities.
func NewLinear(seed int64, propensities []float64) *Linear {
	s := uint64(seed)
	return &Linear{
		propensities: propensities,
		rng:          rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15)),
	}
}

// Factory adapts NewLinear to simulation.SourceFactory.
func Factory(seed int64, propensities []float64) simulation.EventSource {
	return NewLinear(seed, propensities)
}

// Event draws the next reaction and waiting time.
func (l *Linear) Event() (int, float64, bool) {
	total := l.Total()
	if !(total > 0) {
		return -1, 0, false
	}

	// Float64 is in [0, 1); 1-u keeps the log argument in (0, 1].
	target := l.rng.Float64() * total
	dt := -math.Log(1-l.rng.Float64()) / total

	reaction := -1
	sum := 0.0
	for i, p := range l.propensities {
		if p <= 0 {
			continue
		}
		reaction = i
		sum += p
		if target < sum {
			break
		}
	}
	return reaction, dt, true
}

// Update replaces the propensity of reaction.
func (l *Linear) Update(reaction int, propensity float64) {
	l.propensities[reaction] = propensity
}

// Total returns the current propensity sum.
func (l *Linear) Total() float64 {
	total := 0.0
	for _, p := range l.propensities {
		total += p
	}
	return total
}

package store

import (
	"context"
	"fmt"
)

// ValidationError describes a trajectory consistency issue.
type ValidationError struct {
	Seed  int64  `json:"seed"`
	Step  int    `json:"step"`
	Issue string `json:"issue"` // "duplicate", "gap", "time-order", "reaction-range"
}

// String returns a human-readable description of the validation error.
func (e ValidationError) String() string {
	return fmt.Sprintf("%s: seed %d step %d", e.Issue, e.Seed, e.Step)
}

// ValidateTrajectories checks every stored trajectory. Steps of a seed must
// run 0, 1, 2, ... without gaps, times must not decrease, and reaction ids
// must lie in [0, numReactions). Repeated (seed, step) pairs are reported as
// duplicates; only the first occurrence takes part in the other checks.
func (s *SQLiteResultsStore) ValidateTrajectories(ctx context.Context, numReactions int) ([]ValidationError, error) {
	seeds, err := s.TrajectorySeeds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list seeds: %w", err)
	}

	var errors []ValidationError
	for _, seed := range seeds {
		rows, err := s.Trajectory(ctx, seed)
		if err != nil {
			return nil, err
		}
		errors = append(errors, checkTrajectory(rows, numReactions)...)
	}
	return errors, nil
}

// checkTrajectory validates the rows of one seed, ordered by step.
func checkTrajectory(rows []TrajectoryRow, numReactions int) []ValidationError {
	var errors []ValidationError
	expected := 0
	lastTime := 0.0

	for i, r := range rows {
		if i > 0 && r.Step == rows[i-1].Step {
			errors = append(errors, ValidationError{Seed: r.Seed, Step: r.Step, Issue: "duplicate"})
			continue
		}
		if r.Step != expected {
			errors = append(errors, ValidationError{Seed: r.Seed, Step: expected, Issue: "gap"})
		}
		expected = r.Step + 1

		if r.Time < lastTime {
			errors = append(errors, ValidationError{Seed: r.Seed, Step: r.Step, Issue: "time-order"})
		}
		lastTime = r.Time

		if numReactions > 0 && (r.Reaction < 0 || r.Reaction >= numReactions) {
			errors = append(errors, ValidationError{Seed: r.Seed, Step: r.Step, Issue: "reaction-range"})
		}
	}
	return errors
}

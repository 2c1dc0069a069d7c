package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nvandessel/rnmc/internal/simulation"
)

// InMemoryResultsStore implements ResultsStore for testing and development.
// Rows keep insertion order, so duplicate handling matches the SQLite store.
type InMemoryResultsStore struct {
	mu   sync.RWMutex
	rows []TrajectoryRow
	runs map[string]RunRecord

	// FailRecord, when set, is consulted before each RecordTrajectory call.
	// A non-nil error is returned and nothing is written.
	FailRecord func(seed int64) error
}

// NewInMemoryResultsStore creates an empty in-memory results store.
func NewInMemoryResultsStore() *InMemoryResultsStore {
	return &InMemoryResultsStore{
		runs: make(map[string]RunRecord),
	}
}

// BeginRun records the start of a run.
func (s *InMemoryResultsStore) BeginRun(ctx context.Context, run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run already exists: %s", run.ID)
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	s.runs[run.ID] = run
	return nil
}

// FinishRun records the outcome of a run.
func (s *InMemoryResultsStore) FinishRun(ctx context.Context, runID, status string, trajectories int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, exists := s.runs[runID]
	if !exists {
		return fmt.Errorf("finish run %s: run not found", runID)
	}
	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Status = status
	run.Trajectories = trajectories
	s.runs[runID] = run
	return nil
}

// Run returns a run by ID, or nil if it is unknown.
func (s *InMemoryResultsStore) Run(runID string) *RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[runID]
	if !exists {
		return nil
	}
	return &run
}

// RecordTrajectory appends one row per event.
func (s *InMemoryResultsStore) RecordTrajectory(ctx context.Context, seed int64, history *simulation.History) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailRecord != nil {
		if err := s.FailRecord(seed); err != nil {
			return 0, fmt.Errorf("record trajectory %d: %w", seed, err)
		}
	}

	for step, e := range history.All() {
		s.rows = append(s.rows, TrajectoryRow{Seed: seed, Step: step, Reaction: e.Reaction, Time: e.Time})
	}
	return history.Len(), nil
}

// CountTrajectoryRows returns the number of rows.
func (s *InMemoryResultsStore) CountTrajectoryRows(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.rows)), nil
}

type seedStep struct {
	seed int64
	step int
}

// CountDuplicateTrajectories returns how many rows repeat a (seed, step) pair.
func (s *InMemoryResultsStore) CountDuplicateTrajectories(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[seedStep]struct{}, len(s.rows))
	var dups int64
	for _, r := range s.rows {
		key := seedStep{r.Seed, r.Step}
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	return dups, nil
}

// DeleteDuplicateTrajectories keeps the first inserted row of every
// (seed, step) pair.
func (s *InMemoryResultsStore) DeleteDuplicateTrajectories(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[seedStep]struct{}, len(s.rows))
	kept := s.rows[:0]
	for _, r := range s.rows {
		key := seedStep{r.Seed, r.Step}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, r)
	}
	removed := int64(len(s.rows) - len(kept))
	s.rows = kept
	return removed, nil
}

// Trajectory returns the rows of one seed ordered by step, then insertion.
func (s *InMemoryResultsStore) Trajectory(ctx context.Context, seed int64) ([]TrajectoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TrajectoryRow
	for _, r := range s.rows {
		if r.Seed == seed {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

// Close is a no-op.
func (s *InMemoryResultsStore) Close() error {
	return nil
}

// Package store defines the storage interfaces for reaction networks and
// simulation results, and their SQLite implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nvandessel/rnmc/internal/simulation"
)

// ErrMissingTable is returned when a required table is absent from a store.
var ErrMissingTable = errors.New("missing table")

// TrajectoryRow is one persisted reaction firing.
type TrajectoryRow struct {
	Seed     int64   `json:"seed"`
	Step     int     `json:"step"`
	Reaction int     `json:"reaction"`
	Time     float64 `json:"time"`
}

// Run status values recorded in the runs table.
const (
	RunStatusRunning  = "running"
	RunStatusFinished = "finished"
	RunStatusFailed   = "failed"
)

// RunRecord describes one dispatcher run.
type RunRecord struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	BaseSeed     int64      `json:"base_seed"`
	Simulations  int        `json:"simulations"`
	Threads      int        `json:"threads"`
	StepCutoff   int        `json:"step_cutoff"`
	Status       string     `json:"status"`
	Trajectories int        `json:"trajectories"`
}

// ResultsStore persists trajectories produced by a run.
type ResultsStore interface {
	// BeginRun records the start of a run.
	BeginRun(ctx context.Context, run RunRecord) error

	// FinishRun records the outcome of a run.
	FinishRun(ctx context.Context, runID, status string, trajectories int) error

	// RecordTrajectory writes every event of history as (seed, step, reaction, time)
	// rows and returns the number of rows written.
	RecordTrajectory(ctx context.Context, seed int64, history *simulation.History) (int, error)

	// CountTrajectoryRows returns the number of trajectory rows.
	CountTrajectoryRows(ctx context.Context) (int64, error)

	// CountDuplicateTrajectories returns how many rows repeat an existing (seed, step) pair.
	CountDuplicateTrajectories(ctx context.Context) (int64, error)

	// DeleteDuplicateTrajectories removes rows repeating an existing
	// (seed, step) pair, keeping the earliest inserted row.
	DeleteDuplicateTrajectories(ctx context.Context) (int64, error)

	Close() error
}

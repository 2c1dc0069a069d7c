package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/nvandessel/rnmc/internal/constants"
	"github.com/nvandessel/rnmc/internal/simulation"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteResultsStore implements ResultsStore on a SQLite database.
type SQLiteResultsStore struct {
	mu      sync.Mutex
	db      *sql.DB
	path    string
	retries int
	backoff time.Duration

	// beforeCommit, when set, runs before each batch commit; a non-nil error
	// aborts that attempt. Tests use it to simulate write failures.
	beforeCommit func(attempt int) error
}

// ResultsOption configures a SQLiteResultsStore.
type ResultsOption func(*SQLiteResultsStore)

// WithPersistRetries sets how many times a failed batch is retried.
func WithPersistRetries(n int) ResultsOption {
	return func(s *SQLiteResultsStore) { s.retries = n }
}

// WithRetryBackoff sets the pause between batch retries.
func WithRetryBackoff(d time.Duration) ResultsOption {
	return func(s *SQLiteResultsStore) { s.backoff = d }
}

// NewSQLiteResultsStore opens (creating if needed) the results store at path.
func NewSQLiteResultsStore(path string, opts ...ResultsOption) (*SQLiteResultsStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteResultsStore{
		db:      db,
		path:    path,
		retries: constants.DefaultPersistRetries,
		backoff: constants.PersistRetryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DB exposes the underlying handle, e.g. to read an initial_state table kept
// in the same file.
func (s *SQLiteResultsStore) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *SQLiteResultsStore) Path() string { return s.path }

// Close closes the database.
func (s *SQLiteResultsStore) Close() error {
	return s.db.Close()
}

// BeginRun inserts a runs row in the running state.
func (s *SQLiteResultsStore) BeginRun(ctx context.Context, run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := run.Status
	if status == "" {
		status = RunStatusRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, base_seed, simulations, threads, step_cutoff, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(time.RFC3339Nano), run.BaseSeed, run.Simulations,
		run.Threads, run.StepCutoff, status)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun stamps the run with its final status and trajectory count.
func (s *SQLiteResultsStore) FinishRun(ctx context.Context, runID, status string, trajectories int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, status = ?, trajectories = ? WHERE run_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), status, trajectories, runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: run not found", runID)
	}
	return nil
}

// Runs returns every recorded run, oldest first.
func (s *SQLiteResultsStore) Runs(ctx context.Context) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, base_seed, simulations, threads, step_cutoff, status, trajectories
		FROM runs ORDER BY started_at, run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			r          RunRecord
			startedAt  string
			finishedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &startedAt, &finishedAt, &r.BaseSeed, &r.Simulations,
			&r.Threads, &r.StepCutoff, &r.Status, &r.Trajectories); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("parse run start time: %w", err)
		}
		if finishedAt.Valid {
			t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse run finish time: %w", err)
			}
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecordTrajectory writes history as (seed, step, reaction, time) rows.
//
// Rows are committed in transactions of constants.TransactionSize. A batch
// that fails is rolled back and retried as a whole; rows of earlier batches
// stay committed. The returned count covers committed rows only.
func (s *SQLiteResultsStore) RecordTrajectory(ctx context.Context, seed int64, history *simulation.History) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make([]TrajectoryRow, 0, min(history.Len(), constants.TransactionSize))
	written := 0

	for step, e := range history.All() {
		batch = append(batch, TrajectoryRow{Seed: seed, Step: step, Reaction: e.Reaction, Time: e.Time})
		if len(batch) == constants.TransactionSize {
			if err := s.writeBatch(ctx, batch); err != nil {
				return written, fmt.Errorf("record trajectory %d: %w", seed, err)
			}
			written += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := s.writeBatch(ctx, batch); err != nil {
			return written, fmt.Errorf("record trajectory %d: %w", seed, err)
		}
		written += len(batch)
	}

	return written, nil
}

// writeBatch inserts rows in one transaction, retrying the transaction on failure.
func (s *SQLiteResultsStore) writeBatch(ctx context.Context, rows []TrajectoryRow) error {
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff):
			}
		}
		if err = s.insertBatch(ctx, rows, attempt); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("batch of %d rows failed after %d attempts: %w", len(rows), s.retries+1, err)
}

func (s *SQLiteResultsStore) insertBatch(ctx context.Context, rows []TrajectoryRow, attempt int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO trajectories (seed, step_index, reaction_id, time) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Seed, r.Step, r.Reaction, r.Time); err != nil {
			return fmt.Errorf("insert (%d, %d): %w", r.Seed, r.Step, err)
		}
	}

	if s.beforeCommit != nil {
		if err := s.beforeCommit(attempt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CountTrajectoryRows returns the number of trajectory rows.
func (s *SQLiteResultsStore) CountTrajectoryRows(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trajectories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count trajectories: %w", err)
	}
	return n, nil
}

// CountDuplicateTrajectories returns how many rows repeat a (seed, step) pair.
func (s *SQLiteResultsStore) CountDuplicateTrajectories(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM trajectories)
		     - (SELECT COUNT(*) FROM (SELECT 1 FROM trajectories GROUP BY seed, step_index))`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count duplicate trajectories: %w", err)
	}
	return n, nil
}

// DeleteDuplicateTrajectories keeps the lowest rowid of every (seed, step)
// pair and deletes the rest. Returns the number of rows removed.
func (s *SQLiteResultsStore) DeleteDuplicateTrajectories(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM trajectories
		WHERE rowid NOT IN (SELECT MIN(rowid) FROM trajectories GROUP BY seed, step_index)`)
	if err != nil {
		return 0, fmt.Errorf("delete duplicate trajectories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete duplicate trajectories rows affected: %w", err)
	}
	return n, nil
}

// TrajectorySeeds returns the distinct seeds present, ascending.
func (s *SQLiteResultsStore) TrajectorySeeds(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT seed FROM trajectories ORDER BY seed`)
	if err != nil {
		return nil, fmt.Errorf("query seeds: %w", err)
	}
	defer rows.Close()

	var seeds []int64
	for rows.Next() {
		var seed int64
		if err := rows.Scan(&seed); err != nil {
			return nil, fmt.Errorf("scan seed: %w", err)
		}
		seeds = append(seeds, seed)
	}
	return seeds, rows.Err()
}

// Trajectory returns the rows of one seed ordered by step, then insertion.
func (s *SQLiteResultsStore) Trajectory(ctx context.Context, seed int64) ([]TrajectoryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT seed, step_index, reaction_id, time FROM trajectories
		WHERE seed = ? ORDER BY step_index, rowid`, seed)
	if err != nil {
		return nil, fmt.Errorf("query trajectory %d: %w", seed, err)
	}
	defer rows.Close()

	return scanTrajectoryRows(rows)
}

func scanTrajectoryRows(rows *sql.Rows) ([]TrajectoryRow, error) {
	var out []TrajectoryRow
	for rows.Next() {
		var r TrajectoryRow
		if err := rows.Scan(&r.Seed, &r.Step, &r.Reaction, &r.Time); err != nil {
			return nil, fmt.Errorf("scan trajectory row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

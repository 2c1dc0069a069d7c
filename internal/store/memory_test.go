package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemoryResultsStore_DeduplicatesLikeSQLite(t *testing.T) {
	ctx := context.Background()
	mem := NewInMemoryResultsStore()
	lite := newTestResultsStore(t)

	for _, s := range []ResultsStore{mem, lite} {
		for _, rec := range []struct {
			seed   int64
			n      int
			offset float64
		}{
			{4, 3, 0},
			{4, 5, 50},
			{9, 2, 0},
		} {
			if _, err := s.RecordTrajectory(ctx, rec.seed, historyOf(rec.n, rec.offset)); err != nil {
				t.Fatalf("RecordTrajectory() error = %v", err)
			}
		}
	}

	for name, s := range map[string]ResultsStore{"memory": mem, "sqlite": lite} {
		dups, err := s.CountDuplicateTrajectories(ctx)
		if err != nil {
			t.Fatalf("%s: CountDuplicateTrajectories() error = %v", name, err)
		}
		if dups != 3 {
			t.Errorf("%s: CountDuplicateTrajectories() = %d, want 3", name, dups)
		}
		removed, err := s.DeleteDuplicateTrajectories(ctx)
		if err != nil {
			t.Fatalf("%s: DeleteDuplicateTrajectories() error = %v", name, err)
		}
		if removed != 3 {
			t.Errorf("%s: DeleteDuplicateTrajectories() = %d, want 3", name, removed)
		}
		count, err := s.CountTrajectoryRows(ctx)
		if err != nil {
			t.Fatalf("%s: CountTrajectoryRows() error = %v", name, err)
		}
		if count != 7 {
			t.Errorf("%s: CountTrajectoryRows() = %d, want 7", name, count)
		}
	}

	memRows, _ := mem.Trajectory(ctx, 4)
	liteRows, err := lite.Trajectory(ctx, 4)
	if err != nil {
		t.Fatalf("Trajectory() error = %v", err)
	}
	if len(memRows) != len(liteRows) {
		t.Fatalf("memory has %d rows for seed 4, sqlite has %d", len(memRows), len(liteRows))
	}
	for i := range memRows {
		if memRows[i] != liteRows[i] {
			t.Errorf("row %d: memory %+v, sqlite %+v", i, memRows[i], liteRows[i])
		}
	}
}

func TestInMemoryResultsStore_FailRecord(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryResultsStore()
	errBoom := errors.New("boom")
	s.FailRecord = func(seed int64) error {
		if seed == 2 {
			return errBoom
		}
		return nil
	}

	if _, err := s.RecordTrajectory(ctx, 1, historyOf(2, 0)); err != nil {
		t.Fatalf("RecordTrajectory(1) error = %v", err)
	}
	if _, err := s.RecordTrajectory(ctx, 2, historyOf(2, 0)); !errors.Is(err, errBoom) {
		t.Fatalf("RecordTrajectory(2) error = %v, want boom", err)
	}
	count, _ := s.CountTrajectoryRows(ctx)
	if count != 2 {
		t.Errorf("CountTrajectoryRows() = %d, want 2", count)
	}
}

func TestInMemoryResultsStore_Runs(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryResultsStore()

	if err := s.BeginRun(ctx, RunRecord{ID: "a", StartedAt: time.Now()}); err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}
	if err := s.BeginRun(ctx, RunRecord{ID: "a"}); err == nil {
		t.Error("BeginRun() accepted a duplicate run ID")
	}
	if err := s.FinishRun(ctx, "a", RunStatusFinished, 3); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	run := s.Run("a")
	if run == nil {
		t.Fatal("Run() = nil")
	}
	if run.Status != RunStatusFinished || run.Trajectories != 3 || run.FinishedAt == nil {
		t.Errorf("Run() = %+v", run)
	}
	if s.Run("b") != nil {
		t.Error("Run() found an unknown run")
	}
}

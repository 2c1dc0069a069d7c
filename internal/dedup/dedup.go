// Package dedup removes repeated trajectory rows from a results store.
//
// A (seed, step) pair can be written more than once when the same seed range
// is simulated again into an existing results store. The pass keeps the
// earliest inserted row of every pair.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nvandessel/rnmc/internal/logging"
	"github.com/nvandessel/rnmc/internal/store"
)

const tracerName = "github.com/nvandessel/rnmc/internal/dedup"

// Report contains the results of a deduplication pass.
type Report struct {
	// RowsBefore is the trajectory row count before the pass.
	RowsBefore int64 `json:"rows_before" yaml:"rows_before"`

	// DuplicatesFound is the number of rows repeating an earlier (seed, step).
	DuplicatesFound int64 `json:"duplicates_found" yaml:"duplicates_found"`

	// DuplicatesRemoved is zero on a dry run.
	DuplicatesRemoved int64 `json:"duplicates_removed" yaml:"duplicates_removed"`

	// RowsAfter is the trajectory row count after the pass.
	RowsAfter int64 `json:"rows_after" yaml:"rows_after"`

	DryRun   bool          `json:"dry_run" yaml:"dry_run"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Deduplicator runs a deduplication pass over a results store.
type Deduplicator interface {
	Run(ctx context.Context, dryRun bool) (Report, error)
}

// TrajectoryDeduplicator implements Deduplicator for a store.ResultsStore.
type TrajectoryDeduplicator struct {
	store   store.ResultsStore
	logger  *slog.Logger
	journal *logging.Journal
	tracer  trace.Tracer
}

// NewTrajectoryDeduplicator creates a deduplicator for s.
func NewTrajectoryDeduplicator(s store.ResultsStore) *TrajectoryDeduplicator {
	return &TrajectoryDeduplicator{store: s, tracer: otel.Tracer(tracerName)}
}

// SetLogger sets the structured logger and run journal for observability.
func (d *TrajectoryDeduplicator) SetLogger(logger *slog.Logger, journal *logging.Journal) {
	d.logger = logger
	d.journal = journal
}

// SetTracerProvider replaces the global provider for the dedup span.
func (d *TrajectoryDeduplicator) SetTracerProvider(tp trace.TracerProvider) {
	d.tracer = tp.Tracer(tracerName)
}

// Run counts duplicate rows and, unless dryRun is set, deletes them.
func (d *TrajectoryDeduplicator) Run(ctx context.Context, dryRun bool) (report Report, err error) {
	ctx, span := d.tracer.Start(ctx, "dedup")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	report.DryRun = dryRun

	if report.RowsBefore, err = d.store.CountTrajectoryRows(ctx); err != nil {
		return report, fmt.Errorf("failed to count rows: %w", err)
	}
	if report.DuplicatesFound, err = d.store.CountDuplicateTrajectories(ctx); err != nil {
		return report, fmt.Errorf("failed to count duplicates: %w", err)
	}

	report.RowsAfter = report.RowsBefore
	if !dryRun && report.DuplicatesFound > 0 {
		if report.DuplicatesRemoved, err = d.store.DeleteDuplicateTrajectories(ctx); err != nil {
			return report, fmt.Errorf("failed to delete duplicates: %w", err)
		}
		if report.RowsAfter, err = d.store.CountTrajectoryRows(ctx); err != nil {
			return report, fmt.Errorf("failed to count rows: %w", err)
		}
	}
	report.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int64("dedup.rows_before", report.RowsBefore),
		attribute.Int64("dedup.duplicates_found", report.DuplicatesFound),
		attribute.Int64("dedup.duplicates_removed", report.DuplicatesRemoved),
		attribute.Bool("dedup.dry_run", dryRun),
	)

	if d.logger != nil {
		d.logger.Info("dedup pass finished",
			"rows_before", report.RowsBefore,
			"duplicates_found", report.DuplicatesFound,
			"duplicates_removed", report.DuplicatesRemoved,
			"rows_after", report.RowsAfter,
			"dry_run", dryRun,
			"duration", report.Duration)
	}
	d.journal.Record("dedup", map[string]any{
		"rows_before":        report.RowsBefore,
		"duplicates_found":   report.DuplicatesFound,
		"duplicates_removed": report.DuplicatesRemoved,
		"rows_after":         report.RowsAfter,
		"dry_run":            dryRun,
	})

	return report, nil
}

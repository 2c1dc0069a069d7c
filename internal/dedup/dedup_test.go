package dedup

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/nvandessel/rnmc/internal/logging"
	"github.com/nvandessel/rnmc/internal/simulation"
	"github.com/nvandessel/rnmc/internal/store"
)

func history(n int, offset float64) *simulation.History {
	h := simulation.NewHistory()
	for i := 0; i < n; i++ {
		h.Append(0, offset+float64(i))
	}
	return h
}

// seedRange records seeds [base, base+count) with n events each.
func seedRange(t *testing.T, s store.ResultsStore, base int64, count, n int, offset float64) {
	t.Helper()
	for seed := base; seed < base+int64(count); seed++ {
		if _, err := s.RecordTrajectory(context.Background(), seed, history(n, offset)); err != nil {
			t.Fatalf("RecordTrajectory(%d) error = %v", seed, err)
		}
	}
}

func newSQLiteStore(t *testing.T) *store.SQLiteResultsStore {
	t.Helper()
	s, err := store.NewSQLiteResultsStore(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("NewSQLiteResultsStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTrajectoryDeduplicator_Run(t *testing.T) {
	tests := []struct {
		name   string
		dryRun bool
		want   Report
	}{
		{
			name: "removes duplicates",
			want: Report{RowsBefore: 24, DuplicatesFound: 12, DuplicatesRemoved: 12, RowsAfter: 12},
		},
		{
			name:   "dry run only counts",
			dryRun: true,
			want:   Report{RowsBefore: 24, DuplicatesFound: 12, RowsAfter: 24, DryRun: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSQLiteStore(t)
			seedRange(t, s, 100, 3, 4, 0)
			seedRange(t, s, 100, 3, 4, 10)

			got, err := NewTrajectoryDeduplicator(s).Run(context.Background(), tt.dryRun)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			got.Duration = 0
			if got != tt.want {
				t.Errorf("Run() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTrajectoryDeduplicator_SameSeedRangeTwice(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	seedRange(t, s, 1000, 5, 6, 0)
	seedRange(t, s, 1000, 5, 6, 500)

	d := NewTrajectoryDeduplicator(s)
	if _, err := d.Run(ctx, false); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for seed := int64(1000); seed < 1005; seed++ {
		rows, err := s.Trajectory(ctx, seed)
		if err != nil {
			t.Fatalf("Trajectory(%d) error = %v", seed, err)
		}
		if len(rows) != 6 {
			t.Fatalf("seed %d has %d rows, want 6", seed, len(rows))
		}
		for i, r := range rows {
			if r.Step != i {
				t.Errorf("seed %d row %d has step %d", seed, i, r.Step)
			}
			// First run's rows have the lower rowid.
			if r.Time >= 500 {
				t.Errorf("seed %d step %d kept the later row (time %v)", seed, r.Step, r.Time)
			}
		}
	}

	// Idempotent.
	report, err := d.Run(ctx, false)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if report.DuplicatesFound != 0 || report.DuplicatesRemoved != 0 {
		t.Errorf("second Run() = %+v, want no duplicates", report)
	}
}

func TestTrajectoryDeduplicator_NoDuplicates(t *testing.T) {
	s := store.NewInMemoryResultsStore()
	seedRange(t, s, 1, 2, 3, 0)

	report, err := NewTrajectoryDeduplicator(s).Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.RowsBefore != 6 || report.RowsAfter != 6 || report.DuplicatesRemoved != 0 {
		t.Errorf("Run() = %+v", report)
	}
}

type failingStore struct {
	*store.InMemoryResultsStore
	err error
}

func (f failingStore) DeleteDuplicateTrajectories(context.Context) (int64, error) {
	return 0, f.err
}

func TestTrajectoryDeduplicator_PropagatesStoreErrors(t *testing.T) {
	errLocked := errors.New("database is locked")
	s := failingStore{InMemoryResultsStore: store.NewInMemoryResultsStore(), err: errLocked}
	seedRange(t, s, 1, 1, 2, 0)
	seedRange(t, s, 1, 1, 2, 0)

	_, err := NewTrajectoryDeduplicator(s).Run(context.Background(), false)
	if !errors.Is(err, errLocked) {
		t.Errorf("Run() error = %v, want wrapped store error", err)
	}
}

func TestTrajectoryDeduplicator_Logs(t *testing.T) {
	s := store.NewInMemoryResultsStore()
	seedRange(t, s, 1, 1, 2, 0)
	seedRange(t, s, 1, 1, 2, 0)

	var buf bytes.Buffer
	d := NewTrajectoryDeduplicator(s)
	d.SetLogger(logging.NewLogger("info", &buf), nil)

	if _, err := d.Run(context.Background(), false); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(buf.String(), "duplicates_removed=2") {
		t.Errorf("log output missing removal count: %q", buf.String())
	}
}

func TestTrajectoryDeduplicator_Span(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	s := store.NewInMemoryResultsStore()
	seedRange(t, s, 1, 2, 3, 0)
	seedRange(t, s, 1, 2, 3, 5)

	d := NewTrajectoryDeduplicator(s)
	d.SetTracerProvider(tp)
	if _, err := d.Run(context.Background(), false); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "dedup" {
		t.Fatalf("spans = %v, want one dedup span", spans)
	}
	attrs := map[string]int64{}
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "dedup.dry_run" {
			continue
		}
		attrs[string(kv.Key)] = kv.Value.AsInt64()
	}
	want := map[string]int64{
		"dedup.rows_before":        12,
		"dedup.duplicates_found":   6,
		"dedup.duplicates_removed": 6,
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("span attribute %s = %d, want %d", k, attrs[k], v)
		}
	}
}

func TestTrajectoryDeduplicator_SpanRecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	s := store.NewInMemoryResultsStore()
	seedRange(t, s, 1, 1, 2, 0)
	seedRange(t, s, 1, 1, 2, 0)

	d := NewTrajectoryDeduplicator(failingStore{InMemoryResultsStore: s, err: errors.New("disk I/O error")})
	d.SetTracerProvider(tp)
	if _, err := d.Run(context.Background(), false); err == nil {
		t.Fatal("Run() succeeded with a failing store")
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("span status = %v, want Error", spans[0].Status().Code)
	}
}

// Package dispatch runs a batch of trajectories over a shared reaction
// network and streams them into a results store.
//
// Worker goroutines take seeds from a SeedQueue, simulate one trajectory per
// seed and push the finished history onto a HistoryQueue. The goroutine that
// called Run acts as coordinator: it persists histories as they arrive,
// periodically garbage-collects the network's dependency graph, and finishes
// with a deduplication pass once every worker has exited and the queue is
// empty.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/rnmc/internal/dedup"
	"github.com/nvandessel/rnmc/internal/logging"
	"github.com/nvandessel/rnmc/internal/network"
	"github.com/nvandessel/rnmc/internal/simulation"
	"github.com/nvandessel/rnmc/internal/solver"
	"github.com/nvandessel/rnmc/internal/store"
)

const tracerName = "github.com/nvandessel/rnmc/internal/dispatch"

// Config holds the parameters of one run.
type Config struct {
	// Simulations is the number of trajectories; seeds are BaseSeed..BaseSeed+Simulations-1.
	Simulations int
	BaseSeed    int64

	// Threads is the number of worker goroutines.
	Threads int

	// StepCutoff caps the reactions fired per trajectory.
	StepCutoff int

	// GCInterval is the wall time between dependency graph sweeps.
	GCInterval time.Duration

	// GCThreshold is passed to network.ReactionNetwork.CollectGarbage.
	GCThreshold int

	// SourceFactory builds the event source of each trajectory.
	// Defaults to solver.Factory.
	SourceFactory simulation.SourceFactory

	// UpdateMode selects lazy or full propensity updates.
	UpdateMode simulation.UpdateMode
}

func (c Config) validate() error {
	switch {
	case c.Simulations <= 0:
		return fmt.Errorf("simulations must be positive, got %d", c.Simulations)
	case c.Threads <= 0:
		return fmt.Errorf("threads must be positive, got %d", c.Threads)
	case c.StepCutoff <= 0:
		return fmt.Errorf("step cutoff must be positive, got %d", c.StepCutoff)
	case c.GCInterval <= 0:
		return fmt.Errorf("gc interval must be positive, got %v", c.GCInterval)
	case c.GCThreshold < 0:
		return fmt.Errorf("gc threshold must be non-negative, got %d", c.GCThreshold)
	}
	return nil
}

// Report summarizes a run.
type Report struct {
	RunID        string        `json:"run_id"`
	Trajectories int           `json:"trajectories"`
	Events       int64         `json:"events"`
	GCSweeps     int           `json:"gc_sweeps"`
	Evictions    int           `json:"evictions"`
	Dedup        dedup.Report  `json:"dedup"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithJournal sets the run journal.
func WithJournal(journal *logging.Journal) Option {
	return func(d *Dispatcher) { d.journal = journal }
}

// WithRunID overrides the generated run ID.
func WithRunID(id string) Option {
	return func(d *Dispatcher) { d.runID = id }
}

// WithTracerProvider sets the provider for persist and gc_sweep spans, and
// for the spans of the closing dedup pass. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) { d.tracerProvider = tp }
}

// WithClock overrides time.Now for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher owns the seed and history queues of one run.
type Dispatcher struct {
	cfg       Config
	net       *network.ReactionNetwork
	results   store.ResultsStore
	seeds     *SeedQueue
	histories *HistoryQueue

	logger         *slog.Logger
	journal        *logging.Journal
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	runID          string
	now            func() time.Time
}

// New creates a dispatcher that simulates net and writes into results.
func New(cfg Config, net *network.ReactionNetwork, results store.ResultsStore, opts ...Option) *Dispatcher {
	if cfg.SourceFactory == nil {
		cfg.SourceFactory = solver.Factory
	}
	d := &Dispatcher{
		cfg:       cfg,
		net:       net,
		results:   results,
		seeds:     NewSeedQueue(cfg.BaseSeed, cfg.Simulations),
		histories: NewHistoryQueue(),
		logger:    logging.Discard(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.runID == "" {
		d.runID = uuid.NewString()
	}
	if d.tracerProvider == nil {
		d.tracerProvider = otel.GetTracerProvider()
	}
	d.tracer = d.tracerProvider.Tracer(tracerName)
	return d
}

// RunID returns the identifier recorded in the results store.
func (d *Dispatcher) RunID() string { return d.runID }

// Run simulates every seed and persists the trajectories. It returns after
// all workers have exited and every finished trajectory has been written.
//
// A worker error (such as simulation.ErrNegativePopulation) or a persistence
// error aborts the run; unpersisted trajectories are dropped and the run is
// recorded as failed.
func (d *Dispatcher) Run(ctx context.Context) (report Report, err error) {
	report.RunID = d.runID
	if err := d.cfg.validate(); err != nil {
		return report, err
	}

	start := d.now()
	if err := d.results.BeginRun(ctx, store.RunRecord{
		ID:          d.runID,
		StartedAt:   start,
		BaseSeed:    d.cfg.BaseSeed,
		Simulations: d.cfg.Simulations,
		Threads:     d.cfg.Threads,
		StepCutoff:  d.cfg.StepCutoff,
		Status:      store.RunStatusRunning,
	}); err != nil {
		return report, fmt.Errorf("failed to record run start: %w", err)
	}

	d.logger.Info("run started",
		"run_id", d.runID,
		"simulations", d.cfg.Simulations,
		"base_seed", d.cfg.BaseSeed,
		"threads", d.cfg.Threads,
		"step_cutoff", d.cfg.StepCutoff,
		"reactions", d.net.NumReactions(),
		"species", d.net.NumSpecies())

	defer func() {
		report.Elapsed = d.now().Sub(start)
		d.finish(ctx, &report, err)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	for range d.cfg.Threads {
		g.Go(func() error { return d.work(gctx) })
	}

	var workErr error
	done := make(chan struct{})
	go func() {
		workErr = g.Wait()
		close(done)
	}()

	coordErr := d.coordinate(runCtx, done, &workErr, &report)
	cancel()
	<-done

	if coordErr == nil && workErr != nil {
		coordErr = workErr
	}
	if coordErr != nil {
		for _, r := range d.histories.Drain() {
			r.History.Release()
		}
		historyQueueDepth.Set(0)
		return report, coordErr
	}

	dd := dedup.NewTrajectoryDeduplicator(d.results)
	dd.SetLogger(d.logger, d.journal)
	dd.SetTracerProvider(d.tracerProvider)
	if report.Dedup, err = dd.Run(ctx, false); err != nil {
		return report, fmt.Errorf("dedup pass: %w", err)
	}

	return report, nil
}

// work simulates seeds until the queue is exhausted or ctx is cancelled.
func (d *Dispatcher) work(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		seed, ok := d.seeds.Take()
		if !ok {
			return nil
		}

		sim := simulation.New(d.net, seed, d.cfg.SourceFactory, simulation.WithUpdateMode(d.cfg.UpdateMode))
		status, err := sim.RunFor(ctx, d.cfg.StepCutoff)
		if err != nil {
			return fmt.Errorf("trajectory %d: %w", seed, err)
		}

		trajectorySteps.Observe(float64(sim.Steps()))
		d.logger.Log(ctx, logging.LevelTrace, "trajectory finished",
			"seed", seed, "steps", sim.Steps(), "time", sim.Time(), "status", status.String())

		d.histories.Push(seed, sim.TakeHistory())
		historyQueueDepth.Set(float64(d.histories.Len()))
	}
}

// coordinate persists queued histories and sweeps the dependency graph
// until the workers are done and the queue is empty. workErr may only be
// read after done is closed.
func (d *Dispatcher) coordinate(ctx context.Context, done <-chan struct{}, workErr *error, report *Report) error {
	ticker := time.NewTicker(d.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			if *workErr != nil {
				return nil
			}
		default:
		}

		select {
		case <-ticker.C:
			d.sweep(ctx, report)
		default:
		}

		if r, ok := d.histories.Pop(); ok {
			if err := d.persist(ctx, r, report); err != nil {
				return err
			}
			continue
		}

		select {
		case <-done:
			// Workers may have pushed between the empty pop and done closing.
			if r, ok := d.histories.Pop(); ok {
				if err := d.persist(ctx, r, report); err != nil {
					return err
				}
				continue
			}
			return nil
		default:
		}

		select {
		case <-d.histories.Ready():
		case <-done:
		case <-ticker.C:
			d.sweep(ctx, report)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) persist(ctx context.Context, r Result, report *Report) error {
	ctx, span := d.tracer.Start(ctx, "persist", trace.WithAttributes(
		attribute.Int64("trajectory.seed", r.Seed),
		attribute.Int("trajectory.events", r.History.Len()),
	))
	defer span.End()

	historyQueueDepth.Set(float64(d.histories.Len()))

	timer := prometheus.NewTimer(persistDuration)
	n, err := d.results.RecordTrajectory(ctx, r.Seed, r.History)
	timer.ObserveDuration()
	r.History.Release()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return fmt.Errorf("failed to persist trajectory %d: %w", r.Seed, err)
	}

	trajectoriesPersisted.Inc()
	eventsPersisted.Add(float64(n))
	report.Trajectories++
	report.Events += int64(n)

	d.logger.Debug("trajectory persisted", "seed", r.Seed, "rows", n)
	d.journal.Record("trajectory_persisted", map[string]any{
		"run_id": d.runID,
		"seed":   r.Seed,
		"rows":   n,
	})
	return nil
}

func (d *Dispatcher) sweep(ctx context.Context, report *Report) {
	_, span := d.tracer.Start(ctx, "gc_sweep")
	defer span.End()

	evicted := d.net.CollectGarbage(d.cfg.GCThreshold)
	stats := d.net.Stats()

	gcSweeps.Inc()
	dependencyEvictions.Add(float64(evicted))
	report.GCSweeps++
	report.Evictions += evicted

	span.SetAttributes(
		attribute.Int("gc.evicted", evicted),
		attribute.Int("gc.computed", stats.Computed),
	)
	d.logger.Info("dependency graph swept",
		"evicted", evicted,
		"computed", stats.Computed,
		"nodes", stats.Nodes,
		"queued", d.histories.Len())
	d.journal.Record("gc_sweep", map[string]any{
		"run_id":   d.runID,
		"evicted":  evicted,
		"computed": stats.Computed,
	})
}

// finish records the run outcome. It runs even if ctx was cancelled.
func (d *Dispatcher) finish(ctx context.Context, report *Report, runErr error) {
	status := store.RunStatusFinished
	if runErr != nil {
		status = store.RunStatusFailed
	}

	ctx = context.WithoutCancel(ctx)
	if err := d.results.FinishRun(ctx, d.runID, status, report.Trajectories); err != nil {
		d.logger.Warn("failed to record run outcome", "run_id", d.runID, "error", err)
	}

	attrs := []any{
		"run_id", d.runID,
		"status", status,
		"trajectories", report.Trajectories,
		"events", report.Events,
		"gc_sweeps", report.GCSweeps,
		"evictions", report.Evictions,
		"duplicates_removed", report.Dedup.DuplicatesRemoved,
		"elapsed", report.Elapsed,
	}
	if runErr != nil {
		level := slog.LevelError
		if errors.Is(runErr, context.Canceled) {
			level = slog.LevelWarn
		}
		d.logger.Log(ctx, level, "run aborted", append(attrs, "error", runErr)...)
	} else {
		d.logger.Info("run finished", attrs...)
	}

	fields := map[string]any{
		"run_id":       d.runID,
		"status":       status,
		"trajectories": report.Trajectories,
		"events":       report.Events,
		"elapsed_ms":   report.Elapsed.Milliseconds(),
	}
	if runErr != nil {
		fields["error"] = runErr.Error()
	}
	d.journal.Record("run_finished", fields)
}

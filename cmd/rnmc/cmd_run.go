package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/nvandessel/rnmc/internal/config"
	"github.com/nvandessel/rnmc/internal/dispatch"
	"github.com/nvandessel/rnmc/internal/logging"
	"github.com/nvandessel/rnmc/internal/metrics"
	"github.com/nvandessel/rnmc/internal/network"
	"github.com/nvandessel/rnmc/internal/simulation"
	"github.com/nvandessel/rnmc/internal/store"
	"github.com/nvandessel/rnmc/internal/tracing"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate a batch of trajectories",
		Long: `Simulate one trajectory per seed and store every event.

Seeds base-seed .. base-seed+simulations-1 are distributed over the worker
threads. Each trajectory runs until step-cutoff reactions have fired or no
reaction can fire. Results are written to the state database (which defaults
to the network database), followed by a pass removing duplicate rows.

Flags override ~/.rnmc/config.yaml and RNMC_* environment variables.

Examples:
  rnmc run --network-db rn.sqlite --simulations 1000 --threads 8
  rnmc run --network-db rn.sqlite --state-db state.sqlite --base-seed 5000 \
      --step-cutoff 200 --gc-interval 2.5 --gc-threshold 4
  rnmc run --network-db rn.sqlite --metrics-addr :9090 --log-level debug
  rnmc run --network-db rn.sqlite --trace   # spans to traces.jsonl beside the store`,
		RunE: runSimulations,
	}

	cmd.Flags().String("network-db", "", "Reaction network database (required)")
	cmd.Flags().String("state-db", "", "Initial state and results database (default: the network database)")
	cmd.Flags().Int("simulations", 0, "Number of trajectories")
	cmd.Flags().Int64("base-seed", 0, "First seed")
	cmd.Flags().Int("threads", 0, "Number of worker threads")
	cmd.Flags().Int("step-cutoff", 0, "Maximum reactions fired per trajectory")
	cmd.Flags().String("gc-interval", "", "Time between dependency graph sweeps, in seconds or as a duration")
	cmd.Flags().Int("gc-threshold", 0, "Firings since the last sweep required to keep a cached dependents list")
	cmd.Flags().Int("dependency-threshold", 0, "Firings before a reaction's dependents are cached")
	cmd.Flags().String("update-mode", "", "Propensity updates after a firing: lazy or full")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().Bool("trace", false, "Write OpenTelemetry spans to traces.jsonl beside the results store")
	cmd.MarkFlagRequired("network-db")

	return cmd
}

// applyRunFlags copies explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("simulations") {
		cfg.Run.Simulations, _ = flags.GetInt("simulations")
	}
	if flags.Changed("base-seed") {
		cfg.Run.BaseSeed, _ = flags.GetInt64("base-seed")
	}
	if flags.Changed("threads") {
		cfg.Run.Threads, _ = flags.GetInt("threads")
	}
	if flags.Changed("step-cutoff") {
		cfg.Run.StepCutoff, _ = flags.GetInt("step-cutoff")
	}
	if flags.Changed("gc-interval") {
		s, _ := flags.GetString("gc-interval")
		d, err := config.ParseInterval(s)
		if err != nil {
			return fmt.Errorf("--gc-interval: %w", err)
		}
		cfg.GC.Interval = d
	}
	if flags.Changed("gc-threshold") {
		cfg.GC.Threshold, _ = flags.GetInt("gc-threshold")
	}
	if flags.Changed("dependency-threshold") {
		cfg.GC.DependencyThreshold, _ = flags.GetInt("dependency-threshold")
	}
	if flags.Changed("update-mode") {
		cfg.Run.UpdateMode, _ = flags.GetString("update-mode")
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("trace") {
		cfg.Tracing.Enabled, _ = flags.GetBool("trace")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	return nil
}

func runSimulations(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	networkPath, _ := cmd.Flags().GetString("network-db")
	statePath, _ := cmd.Flags().GetString("state-db")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	updateMode, err := simulation.ParseUpdateMode(cfg.Run.UpdateMode)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Usage errors end here; anything below is a runtime failure.
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())

	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn("interrupted, stopping run", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr, nil)
		go func() {
			if err := srv.ListenAndServe(ctx); err != nil {
				logger.Error("metrics server stopped", "addr", cfg.Metrics.Addr, "error", err)
			}
		}()
	}

	results, net, err := openRunStores(ctx, networkPath, statePath,
		network.Options{DependencyThreshold: cfg.GC.DependencyThreshold},
		store.WithPersistRetries(cfg.Storage.PersistRetries),
		store.WithRetryBackoff(cfg.Storage.RetryBackoff),
	)
	if err != nil {
		return err
	}
	defer results.Close()

	journalDir, err := store.JournalDir(results.Path())
	if err != nil {
		return err
	}
	journal := logging.NewJournal(journalDir, cfg.Logging.Level)
	defer journal.Close()

	opts := []dispatch.Option{dispatch.WithLogger(logger), dispatch.WithJournal(journal)}
	if cfg.Tracing.Enabled {
		tp, err := tracing.NewFileProvider(journalDir)
		if err != nil {
			return err
		}
		defer func() {
			if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to flush spans", "path", tp.Path(), "error", err)
			}
		}()
		logger.Debug("tracing enabled", "path", tp.Path())
		opts = append(opts, dispatch.WithTracerProvider(tp))
	}

	d := dispatch.New(dispatch.Config{
		Simulations: cfg.Run.Simulations,
		BaseSeed:    cfg.Run.BaseSeed,
		Threads:     cfg.Run.Threads,
		StepCutoff:  cfg.Run.StepCutoff,
		GCInterval:  cfg.GC.Interval,
		GCThreshold: cfg.GC.Threshold,
		UpdateMode:  updateMode,
	}, net, results, opts...)

	report, err := d.Run(ctx)
	if err != nil {
		return fmt.Errorf("run %s failed: %w", d.RunID(), err)
	}

	return printRunReport(cmd.OutOrStdout(), report, jsonOut)
}

func printRunReport(w io.Writer, report dispatch.Report, jsonOut bool) error {
	if jsonOut {
		return json.NewEncoder(w).Encode(report)
	}

	fmt.Fprintf(w, "Run %s finished in %v\n", report.RunID, report.Elapsed)
	fmt.Fprintf(w, "  trajectories:        %d\n", report.Trajectories)
	fmt.Fprintf(w, "  events:              %d\n", report.Events)
	fmt.Fprintf(w, "  gc sweeps:           %d (%d evictions)\n", report.GCSweeps, report.Evictions)
	fmt.Fprintf(w, "  duplicates removed:  %d\n", report.Dedup.DuplicatesRemoved)
	return nil
}

package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	trajectoriesPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rnmc_trajectories_persisted_total",
		Help: "Total number of trajectories written to the results store",
	})

	eventsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rnmc_events_persisted_total",
		Help: "Total number of trajectory rows written to the results store",
	})

	dependencyEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rnmc_dependency_evictions_total",
		Help: "Total number of cached dependents lists dropped by garbage collection",
	})

	gcSweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rnmc_gc_sweeps_total",
		Help: "Total number of dependency graph garbage collection sweeps",
	})

	historyQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rnmc_history_queue_depth",
		Help: "Finished trajectories waiting to be persisted",
	})

	persistDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rnmc_persist_duration_seconds",
		Help:    "Time spent writing one trajectory to the results store",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	trajectorySteps = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rnmc_trajectory_steps",
		Help:    "Number of reactions fired per trajectory",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})
)

// Package constants provides named constants used throughout the rnmc codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

import "time"

// Persistence constants
const (
	// TransactionSize is the number of trajectory rows written per transaction.
	// A transaction is committed and a fresh one opened every TransactionSize rows.
	TransactionSize = 10000

	// DefaultPersistRetries is how many times a failed batch transaction is retried.
	// Retries replay the whole batch, never individual rows.
	DefaultPersistRetries = 3

	// PersistRetryBackoff is the pause before a batch retry.
	PersistRetryBackoff = 50 * time.Millisecond
)

// History layout constants
const (
	// HistoryChunkSize is the number of events held by one history chunk.
	HistoryChunkSize = 1024
)

// Run defaults
const (
	// DefaultStepCutoff is the maximum number of reactions fired per trajectory.
	DefaultStepCutoff = 1000

	// DefaultSimulations is the default number of trajectories per run.
	DefaultSimulations = 1

	// DefaultBaseSeed is the first seed handed out by the seed queue.
	DefaultBaseSeed = 1000
)

// Dependency graph defaults
const (
	// DefaultGCInterval is the wall time between dependency graph sweeps.
	DefaultGCInterval = 10 * time.Second

	// DefaultGCThreshold is the minimum number of firings a computed node must
	// see between two sweeps to keep its dependents list.
	DefaultGCThreshold = 2

	// DefaultDependencyThreshold is the number of prior firings required before
	// a reaction's dependents are computed and cached.
	DefaultDependencyThreshold = 1
)

// Storage file names
const (
	// JournalFileName is the JSONL run journal written next to the results store.
	JournalFileName = "journal.jsonl"

	// TraceFileName holds exported spans when tracing is enabled.
	TraceFileName = "traces.jsonl"

	// ConfigDirName is the per-user configuration directory under $HOME.
	ConfigDirName = ".rnmc"

	// ConfigFileName is the configuration file inside ConfigDirName.
	ConfigFileName = "config.yaml"
)

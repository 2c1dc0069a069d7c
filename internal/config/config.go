// Package config provides unified configuration loading for rnmc.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/rnmc/internal/constants"
	"gopkg.in/yaml.v3"
)

// Config contains all rnmc configuration settings.
type Config struct {
	// Run contains the batch parameters of a dispatcher run.
	Run RunConfig `json:"run" yaml:"run"`

	// GC contains dependency graph caching and sweeping settings.
	GC GCConfig `json:"gc" yaml:"gc"`

	// Storage contains results store settings.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Logging contains settings for operational logging and the run journal.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Metrics contains the Prometheus endpoint settings.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Tracing contains OpenTelemetry span export settings.
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// RunConfig configures the simulation batch.
type RunConfig struct {
	// Simulations is the number of trajectories to generate.
	Simulations int `json:"simulations" yaml:"simulations"`

	// BaseSeed is the first seed; trajectories use BaseSeed..BaseSeed+Simulations-1.
	BaseSeed int64 `json:"base_seed" yaml:"base_seed"`

	// Threads is the number of concurrent workers. Default: number of CPUs.
	Threads int `json:"threads" yaml:"threads"`

	// StepCutoff caps the number of events per trajectory.
	StepCutoff int `json:"step_cutoff" yaml:"step_cutoff"`

	// UpdateMode is "lazy" (cached dependents when available) or "full".
	UpdateMode string `json:"update_mode" yaml:"update_mode"`
}

// GCConfig configures the dependency graph cache.
type GCConfig struct {
	// Interval is the time between garbage collection sweeps.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// Threshold is the minimum number of firings since the previous sweep
	// for a computed node to be kept.
	Threshold int `json:"threshold" yaml:"threshold"`

	// DependencyThreshold is the number of firings before a reaction's
	// dependents are computed and cached.
	DependencyThreshold int `json:"dependency_threshold" yaml:"dependency_threshold"`
}

// UnmarshalYAML lets interval accept a bare number of seconds.
func (g *GCConfig) UnmarshalYAML(value *yaml.Node) error {
	if err := normalizeIntervals(value, "interval"); err != nil {
		return fmt.Errorf("gc.%w", err)
	}
	type plain GCConfig
	return value.Decode((*plain)(g))
}

// StorageConfig configures the results store.
type StorageConfig struct {
	// PersistRetries is how many times a failed transaction batch is retried.
	PersistRetries int `json:"persist_retries" yaml:"persist_retries"`

	// RetryBackoff is the pause between retries.
	RetryBackoff time.Duration `json:"retry_backoff" yaml:"retry_backoff"`
}

// UnmarshalYAML lets retry_backoff accept a bare number of seconds.
func (s *StorageConfig) UnmarshalYAML(value *yaml.Node) error {
	if err := normalizeIntervals(value, "retry_backoff"); err != nil {
		return fmt.Errorf("storage.%w", err)
	}
	type plain StorageConfig
	return value.Decode((*plain)(s))
}

// LoggingConfig configures rnmc's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "warn", "info" (default), "debug", or "trace".
	// "debug" enables the run journal beside the results store.
	// "trace" additionally logs every persisted trajectory.
	Level string `json:"level" yaml:"level"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics, e.g. ":9090". Empty disables it.
	Addr string `json:"addr" yaml:"addr"`
}

// TracingConfig configures OpenTelemetry spans.
type TracingConfig struct {
	// Enabled writes persist, gc_sweep and dedup spans to traces.jsonl
	// beside the results store.
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Simulations: constants.DefaultSimulations,
			BaseSeed:    constants.DefaultBaseSeed,
			Threads:     runtime.NumCPU(),
			StepCutoff:  constants.DefaultStepCutoff,
			UpdateMode:  "lazy",
		},
		GC: GCConfig{
			Interval:            constants.DefaultGCInterval,
			Threshold:           constants.DefaultGCThreshold,
			DependencyThreshold: constants.DefaultDependencyThreshold,
		},
		Storage: StorageConfig{
			PersistRetries: constants.DefaultPersistRetries,
			RetryBackoff:   constants.PersistRetryBackoff,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.rnmc/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.ConfigDirName, constants.ConfigFileName), nil
}

// Load loads configuration from path, or from the default location when path
// is empty, then applies environment variable overrides.
// Order: defaults -> config file -> environment variables.
// A missing default file is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		if defaultPath, err := DefaultPath(); err == nil {
			if _, statErr := os.Stat(defaultPath); statErr == nil {
				path = defaultPath
			}
		}
	}

	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
// Fields absent from the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Run.Simulations <= 0 {
		return fmt.Errorf("simulations must be positive, got %d", c.Run.Simulations)
	}
	if c.Run.Threads <= 0 {
		return fmt.Errorf("threads must be positive, got %d", c.Run.Threads)
	}
	if c.Run.StepCutoff <= 0 {
		return fmt.Errorf("step_cutoff must be positive, got %d", c.Run.StepCutoff)
	}
	if c.Run.BaseSeed < 0 {
		return fmt.Errorf("base_seed must be non-negative, got %d", c.Run.BaseSeed)
	}

	if c.Run.UpdateMode != "" && c.Run.UpdateMode != "lazy" && c.Run.UpdateMode != "full" {
		return fmt.Errorf("invalid update_mode: %s (valid: lazy, full)", c.Run.UpdateMode)
	}

	if c.GC.Interval <= 0 {
		return fmt.Errorf("gc interval must be positive, got %v", c.GC.Interval)
	}
	if c.GC.Threshold < 0 {
		return fmt.Errorf("gc threshold must be non-negative, got %d", c.GC.Threshold)
	}
	if c.GC.DependencyThreshold < 0 {
		return fmt.Errorf("dependency_threshold must be non-negative, got %d", c.GC.DependencyThreshold)
	}

	if c.Storage.PersistRetries < 0 {
		return fmt.Errorf("persist_retries must be non-negative, got %d", c.Storage.PersistRetries)
	}
	if c.Storage.RetryBackoff < 0 {
		return fmt.Errorf("retry_backoff must be non-negative, got %v", c.Storage.RetryBackoff)
	}

	validLevels := map[string]bool{"warn": true, "info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: warn, info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides applies RNMC_* environment variable overrides to the config.
// Unparseable numeric values are ignored.
func applyEnvOverrides(config *Config) {
	envInt("RNMC_SIMULATIONS", &config.Run.Simulations)
	envInt("RNMC_THREADS", &config.Run.Threads)
	envInt("RNMC_STEP_CUTOFF", &config.Run.StepCutoff)
	if v := os.Getenv("RNMC_BASE_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Run.BaseSeed = n
		}
	}

	if v := os.Getenv("RNMC_UPDATE_MODE"); v != "" {
		config.Run.UpdateMode = v
	}

	if v := os.Getenv("RNMC_GC_INTERVAL"); v != "" {
		if d, err := ParseInterval(v); err == nil {
			config.GC.Interval = d
		}
	}
	envInt("RNMC_GC_THRESHOLD", &config.GC.Threshold)
	envInt("RNMC_DEPENDENCY_THRESHOLD", &config.GC.DependencyThreshold)
	envInt("RNMC_PERSIST_RETRIES", &config.Storage.PersistRetries)

	if v := os.Getenv("RNMC_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("RNMC_METRICS_ADDR"); v != "" {
		config.Metrics.Addr = v
	}
	if v := os.Getenv("RNMC_TRACING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Tracing.Enabled = b
		}
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// ParseInterval accepts a Go duration ("250ms") or a bare number of seconds.
func ParseInterval(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", s, err)
	}
	return d, nil
}

// normalizeIntervals rewrites the named scalar keys of a mapping node so that
// a bare number of seconds decodes as a time.Duration.
func normalizeIntervals(value *yaml.Node, keys ...string) error {
	if value.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		if val.Kind != yaml.ScalarNode || val.ShortTag() == "!!null" || !slices.Contains(keys, key.Value) {
			continue
		}
		d, err := ParseInterval(val.Value)
		if err != nil {
			return fmt.Errorf("%s: %w", key.Value, err)
		}
		val.Tag = "!!str"
		val.Value = d.String()
	}
	return nil
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}

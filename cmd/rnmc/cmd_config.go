package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nvandessel/rnmc/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage rnmc configuration",
		Long: `View and modify rnmc configuration settings.

Configuration is stored in ~/.rnmc/config.yaml unless --config is given.
RNMC_* environment variables override the file; command flags override both.

Examples:
  rnmc config list                      # Show all settings
  rnmc config get gc.interval           # Get a specific setting
  rnmc config set run.threads 8         # Set a setting
  rnmc config set gc.interval 2.5       # Seconds or a Go duration`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

// loadConfig loads the configuration named by --config, or the default file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(out).Encode(cfg)
			}

			fmt.Fprintln(out, "Run Settings:")
			fmt.Fprintf(out, "  run.simulations:          %d\n", cfg.Run.Simulations)
			fmt.Fprintf(out, "  run.base_seed:            %d\n", cfg.Run.BaseSeed)
			fmt.Fprintf(out, "  run.threads:              %d\n", cfg.Run.Threads)
			fmt.Fprintf(out, "  run.step_cutoff:          %d\n", cfg.Run.StepCutoff)
			fmt.Fprintf(out, "  run.update_mode:          %s\n", cfg.Run.UpdateMode)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Dependency Graph Settings:")
			fmt.Fprintf(out, "  gc.interval:              %v\n", cfg.GC.Interval)
			fmt.Fprintf(out, "  gc.threshold:             %d\n", cfg.GC.Threshold)
			fmt.Fprintf(out, "  gc.dependency_threshold:  %d\n", cfg.GC.DependencyThreshold)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Storage Settings:")
			fmt.Fprintf(out, "  storage.persist_retries:  %d\n", cfg.Storage.PersistRetries)
			fmt.Fprintf(out, "  storage.retry_backoff:    %v\n", cfg.Storage.RetryBackoff)
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  logging.level:            %s\n", cfg.Logging.Level)
			fmt.Fprintf(out, "  metrics.addr:             %s\n", valueOrDefault(cfg.Metrics.Addr, "(disabled)"))
			fmt.Fprintf(out, "  tracing.enabled:          %t\n", cfg.Tracing.Enabled)

			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()
			key := args[0]

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(out, "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()
			key, value := args[0], args[1]

			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				defaultPath, err := config.DefaultPath()
				if err != nil {
					return err
				}
				path = defaultPath
			}

			// Start from the file alone so env overrides are not persisted.
			cfg := config.Default()
			if _, err := os.Stat(path); err == nil {
				fileCfg, err := config.LoadFromFile(path)
				if err != nil {
					return err
				}
				cfg = fileCfg
			}

			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			if err := saveConfig(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			}
			fmt.Fprintf(out, "Set %s = %s\n", key, value)
			return nil
		},
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (interface{}, bool) {
	switch key {
	case "run.simulations":
		return cfg.Run.Simulations, true
	case "run.base_seed":
		return cfg.Run.BaseSeed, true
	case "run.threads":
		return cfg.Run.Threads, true
	case "run.step_cutoff":
		return cfg.Run.StepCutoff, true
	case "run.update_mode":
		return cfg.Run.UpdateMode, true
	case "gc.interval":
		return cfg.GC.Interval.String(), true
	case "gc.threshold":
		return cfg.GC.Threshold, true
	case "gc.dependency_threshold":
		return cfg.GC.DependencyThreshold, true
	case "storage.persist_retries":
		return cfg.Storage.PersistRetries, true
	case "storage.retry_backoff":
		return cfg.Storage.RetryBackoff.String(), true
	case "logging.level":
		return cfg.Logging.Level, true
	case "metrics.addr":
		return cfg.Metrics.Addr, true
	case "tracing.enabled":
		return cfg.Tracing.Enabled, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %s", key, value)
		}
		return n, nil
	}

	var err error
	switch key {
	case "run.simulations":
		cfg.Run.Simulations, err = atoi()
	case "run.base_seed":
		cfg.Run.BaseSeed, err = strconv.ParseInt(value, 10, 64)
		if err != nil {
			err = fmt.Errorf("invalid integer for %s: %s", key, value)
		}
	case "run.threads":
		cfg.Run.Threads, err = atoi()
	case "run.step_cutoff":
		cfg.Run.StepCutoff, err = atoi()
	case "run.update_mode":
		cfg.Run.UpdateMode = value
	case "gc.interval":
		cfg.GC.Interval, err = config.ParseInterval(value)
	case "gc.threshold":
		cfg.GC.Threshold, err = atoi()
	case "gc.dependency_threshold":
		cfg.GC.DependencyThreshold, err = atoi()
	case "storage.persist_retries":
		cfg.Storage.PersistRetries, err = atoi()
	case "storage.retry_backoff":
		cfg.Storage.RetryBackoff, err = config.ParseInterval(value)
	case "logging.level":
		cfg.Logging.Level = value
	case "metrics.addr":
		cfg.Metrics.Addr = value
	case "tracing.enabled":
		cfg.Tracing.Enabled, err = strconv.ParseBool(value)
		if err != nil {
			err = fmt.Errorf("invalid boolean for %s: %s", key, value)
		}
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return err
}

// saveConfig writes the configuration as YAML to path.
func saveConfig(cfg *config.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// valueOrDefault returns the value if non-empty, otherwise the default.
func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

// Package config loads service configuration from an optional YAML file
// overlaid with SCHEDULER_* environment variables. Environment values win.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Config captures the configuration of the scheduling service.
type Config struct {
	SQLiteDSN           string `yaml:"sqlite_dsn"`
	LogLevel            string `yaml:"log_level"`
	LogConsole          bool   `yaml:"log_console"`
	DefaultTimezone     string `yaml:"default_timezone"`
	WorkloadRebuildCron string `yaml:"workload_rebuild_cron"`
}

// Default returns the built-in configuration used when neither file nor
// environment override a value.
func Default() Config {
	return Config{
		SQLiteDSN:           "file:scheduler.db?_foreign_keys=on",
		LogLevel:            "info",
		LogConsole:          false,
		DefaultTimezone:     "UTC",
		WorkloadRebuildCron: "0 2 * * *",
	}
}

// Load reads the YAML file at path (skipped when path is empty or the file
// does not exist), applies environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Optional file; defaults plus environment apply.
		case err != nil:
			return Config{}, fmt.Errorf("config: read %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if dsn := strings.TrimSpace(os.Getenv("SCHEDULER_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}
	if level := strings.TrimSpace(os.Getenv("SCHEDULER_LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}
	if console := strings.TrimSpace(os.Getenv("SCHEDULER_LOG_CONSOLE")); console != "" {
		cfg.LogConsole = console == "1" || strings.EqualFold(console, "true")
	}
	if tz := strings.TrimSpace(os.Getenv("SCHEDULER_DEFAULT_TIMEZONE")); tz != "" {
		cfg.DefaultTimezone = tz
	}
	if spec := strings.TrimSpace(os.Getenv("SCHEDULER_WORKLOAD_REBUILD_CRON")); spec != "" {
		cfg.WorkloadRebuildCron = spec
	}
}

func (c Config) validate() error {
	var invalid []string

	if strings.TrimSpace(c.SQLiteDSN) == "" {
		invalid = append(invalid, "sqlite_dsn")
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		invalid = append(invalid, "default_timezone")
	}
	if strings.TrimSpace(c.WorkloadRebuildCron) == "" {
		invalid = append(invalid, "workload_rebuild_cron")
	}

	if len(invalid) > 0 {
		return fmt.Errorf("config: invalid values for: %s", strings.Join(invalid, ", "))
	}
	return nil
}

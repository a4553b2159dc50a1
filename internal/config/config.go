// Package config loads the simulator's runtime settings from .orbitsim.yaml,
// ORBITSIM_* environment variables and CLI flags via viper. Scenario content
// (roster, physics constants, scoring) lives in the TOML scenario file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// ORBITSIM_LOG_LEVEL=debug.
const EnvPrefix = "ORBITSIM"

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("invalid runtime configuration")

// LogConfig selects the structured logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables it.
	Addr string `mapstructure:"addr"`
}

// RecordConfig controls the SQLite run recorder.
type RecordConfig struct {
	// Path is the database file; empty disables recording.
	Path string `mapstructure:"path"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	ServiceName string  `mapstructure:"service_name"`
}

// Config holds all runtime configuration for a simulator run.
type Config struct {
	Scenario string `mapstructure:"scenario"`
	// Ticks bounds the run; 0 runs until the mission is over or the process
	// is interrupted.
	Ticks uint64 `mapstructure:"ticks"`
	// Mode is "accelerated" or "realtime".
	Mode string `mapstructure:"mode"`
	// Speed is simulated seconds per wall second in realtime mode.
	Speed float64 `mapstructure:"speed"`
	// Output is "text", "jsonl" or "none".
	Output string `mapstructure:"output"`
	// Every prints one snapshot every N ticks; events are always printed.
	Every uint64 `mapstructure:"every"`
	// StopOnMissionOver ends the run once no satellite is left.
	StopOnMissionOver bool `mapstructure:"stop_on_mission_over"`
	// Watch reloads the scenario when the file changes.
	Watch bool `mapstructure:"watch"`

	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Record  RecordConfig  `mapstructure:"record"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// BindEnv wires ORBITSIM_* environment variables into viper. Nested keys use
// underscores, so log.level maps to ORBITSIM_LOG_LEVEL.
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// SetDefaults registers the built-in defaults.
func SetDefaults() {
	viper.SetDefault("scenario", "configs/scenario.toml")
	viper.SetDefault("ticks", 0)
	viper.SetDefault("mode", "accelerated")
	viper.SetDefault("speed", 1.0)
	viper.SetDefault("output", "text")
	viper.SetDefault("every", 1)
	viper.SetDefault("stop_on_mission_over", true)
	viper.SetDefault("watch", false)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("metrics.addr", "")
	viper.SetDefault("record.path", "")
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.exporter", "stdout")
	viper.SetDefault("tracing.endpoint", "")
	viper.SetDefault("tracing.insecure", true)
	viper.SetDefault("tracing.sample_ratio", 1.0)
	viper.SetDefault("tracing.service_name", "debris-sim")
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	SetDefaults()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.Mode = strings.ToLower(cfg.Mode)
	cfg.Output = strings.ToLower(cfg.Output)
	cfg.Tracing.Exporter = strings.ToLower(cfg.Tracing.Exporter)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated values and ranges.
func (c Config) Validate() error {
	switch c.Mode {
	case "accelerated", "realtime":
	default:
		return fmt.Errorf("%w: mode %q (want accelerated or realtime)", ErrInvalid, c.Mode)
	}
	switch c.Output {
	case "text", "jsonl", "none":
	default:
		return fmt.Errorf("%w: output %q (want text, jsonl or none)", ErrInvalid, c.Output)
	}
	if c.Speed <= 0 {
		return fmt.Errorf("%w: speed must be positive, got %v", ErrInvalid, c.Speed)
	}
	if c.Every == 0 {
		return fmt.Errorf("%w: every must be at least 1", ErrInvalid)
	}
	switch c.Tracing.Exporter {
	case "stdout", "otlp":
	default:
		return fmt.Errorf("%w: tracing exporter %q (want stdout or otlp)", ErrInvalid, c.Tracing.Exporter)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("%w: tracing sample ratio must be within [0, 1], got %v", ErrInvalid, c.Tracing.SampleRatio)
	}
	if c.Scenario == "" {
		return fmt.Errorf("%w: scenario path is empty", ErrInvalid)
	}
	return nil
}

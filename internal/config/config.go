package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete tasker configuration
type Config struct {
	Handler HandlerConfig `mapstructure:"handler" yaml:"handler"`
	Workers WorkersConfig `mapstructure:"workers" yaml:"workers"`
	Demo    DemoConfig    `mapstructure:"demo" yaml:"demo"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Scaling ScalingConfig `mapstructure:"scaling" yaml:"scaling"`
	TUI     TUIConfig     `mapstructure:"tui" yaml:"tui"`
	Report  ReportConfig  `mapstructure:"report" yaml:"report"`
}

// HandlerConfig controls the task handler
type HandlerConfig struct {
	// AcceptTimeoutMs bounds how long a worker may take to accept an offered
	// task before the offer counts as declined
	AcceptTimeoutMs int `mapstructure:"accept_timeout_ms" yaml:"accept_timeout_ms"`
	// ShutdownTimeoutMs bounds a graceful shutdown; workers still busy after
	// it are crashed (0 = wait forever)
	ShutdownTimeoutMs int `mapstructure:"shutdown_timeout_ms" yaml:"shutdown_timeout_ms"`
	// DetachTimeoutMs bounds a graceful worker detach (0 = wait forever)
	DetachTimeoutMs int `mapstructure:"detach_timeout_ms" yaml:"detach_timeout_ms"`
}

// WorkersConfig controls the local workers hired by `tasker run`
type WorkersConfig struct {
	// Count is the number of workers hired at startup
	Count int `mapstructure:"count" yaml:"count"`
	// Concurrency is the number of tasks each worker runs at once
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// Speeds gives each worker a relative speed; worker i takes
	// base_cost / speeds[i] per task. Workers beyond the list run at 1.0.
	Speeds []float64 `mapstructure:"speeds" yaml:"speeds"`
	// BaseCostMs is the simulated cost of one task on a worker of speed 1.0
	BaseCostMs int `mapstructure:"base_cost_ms" yaml:"base_cost_ms"`
	// Qualifications are extra series (glob patterns allowed) workers take
	// on top of the default series; tasker run also adds demo.series
	Qualifications []string `mapstructure:"qualifications" yaml:"qualifications"`
}

// DemoConfig controls the workload submitted by `tasker run`
type DemoConfig struct {
	// Tasks is the number of tasks to submit
	Tasks int `mapstructure:"tasks" yaml:"tasks"`
	// Series lists the series tasks are spread over round-robin; empty
	// submits every task without a series
	Series []string `mapstructure:"series" yaml:"series"`
	// Niceness is applied to every submitted task (-20..20)
	Niceness int `mapstructure:"niceness" yaml:"niceness"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the directory for tasker.log; empty logs to stderr
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	// Enabled serves /metrics while `tasker run` is active
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Addr is the listen address for the metrics server
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// ScalingConfig controls elastic worker scaling during `tasker run`
type ScalingConfig struct {
	Enabled            bool `mapstructure:"enabled" yaml:"enabled"`
	MinWorkers         int  `mapstructure:"min_workers" yaml:"min_workers"`
	MaxWorkers         int  `mapstructure:"max_workers" yaml:"max_workers"`
	ScaleUpThreshold   int  `mapstructure:"scale_up_threshold" yaml:"scale_up_threshold"`
	ScaleDownThreshold int  `mapstructure:"scale_down_threshold" yaml:"scale_down_threshold"`
	CooldownMs         int  `mapstructure:"cooldown_ms" yaml:"cooldown_ms"`
}

// TUIConfig controls the live dashboard
type TUIConfig struct {
	// Enabled shows the dashboard when stdout is a terminal
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// RefreshMs is the dashboard redraw interval
	RefreshMs int `mapstructure:"refresh_ms" yaml:"refresh_ms"`
}

// ReportConfig controls the run report written after `tasker run`
type ReportConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Path of the JSON report; relative paths resolve against ConfigDir
	Path string `mapstructure:"path" yaml:"path"`
}

// ResolvePath returns the report path, resolving relative paths against dir.
func (r *ReportConfig) ResolvePath(dir string) string {
	if r.Path == "" {
		return filepath.Join(dir, "last-run.json")
	}
	if filepath.IsAbs(r.Path) {
		return r.Path
	}
	return filepath.Join(dir, r.Path)
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Handler: HandlerConfig{
			AcceptTimeoutMs:   1000,
			ShutdownTimeoutMs: 5000,
			DetachTimeoutMs:   2000,
		},
		Workers: WorkersConfig{
			Count:          3,
			Concurrency:    1,
			Speeds:         []float64{1, 1, 2},
			BaseCostMs:     20,
			Qualifications: []string{},
		},
		Demo: DemoConfig{
			Tasks:    60,
			Series:   []string{},
			Niceness: 0,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		Scaling: ScalingConfig{
			Enabled:            false,
			MinWorkers:         1,
			MaxWorkers:         8,
			ScaleUpThreshold:   2,
			ScaleDownThreshold: 1,
			CooldownMs:         5000,
		},
		TUI: TUIConfig{
			Enabled:   true,
			RefreshMs: 100,
		},
		Report: ReportConfig{
			Enabled: true,
			Path:    "",
		},
	}
}

// AcceptTimeout returns the accept timeout as a time.Duration
func (c *HandlerConfig) AcceptTimeout() time.Duration {
	return time.Duration(c.AcceptTimeoutMs) * time.Millisecond
}

// ShutdownTimeout returns the shutdown timeout as a time.Duration (0 means wait forever)
func (c *HandlerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}

// DetachTimeout returns the detach timeout as a time.Duration (0 means wait forever)
func (c *HandlerConfig) DetachTimeout() time.Duration {
	return time.Duration(c.DetachTimeoutMs) * time.Millisecond
}

// Cost returns the per-task cost of worker i.
func (c *WorkersConfig) Cost(i int) time.Duration {
	speed := 1.0
	if i >= 0 && i < len(c.Speeds) {
		speed = c.Speeds[i]
	}
	return time.Duration(float64(c.BaseCostMs)/speed*float64(time.Millisecond))
}

// Cooldown returns the scaling cooldown as a time.Duration
func (c *ScalingConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMs) * time.Millisecond
}

// Refresh returns the dashboard refresh interval as a time.Duration
func (c *TUIConfig) Refresh() time.Duration {
	return time.Duration(c.RefreshMs) * time.Millisecond
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Handler defaults
	viper.SetDefault("handler.accept_timeout_ms", defaults.Handler.AcceptTimeoutMs)
	viper.SetDefault("handler.shutdown_timeout_ms", defaults.Handler.ShutdownTimeoutMs)
	viper.SetDefault("handler.detach_timeout_ms", defaults.Handler.DetachTimeoutMs)

	// Worker defaults
	viper.SetDefault("workers.count", defaults.Workers.Count)
	viper.SetDefault("workers.concurrency", defaults.Workers.Concurrency)
	viper.SetDefault("workers.speeds", defaults.Workers.Speeds)
	viper.SetDefault("workers.base_cost_ms", defaults.Workers.BaseCostMs)
	viper.SetDefault("workers.qualifications", defaults.Workers.Qualifications)

	// Demo defaults
	viper.SetDefault("demo.tasks", defaults.Demo.Tasks)
	viper.SetDefault("demo.series", defaults.Demo.Series)
	viper.SetDefault("demo.niceness", defaults.Demo.Niceness)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	viper.SetDefault("metrics.addr", defaults.Metrics.Addr)

	// Scaling defaults
	viper.SetDefault("scaling.enabled", defaults.Scaling.Enabled)
	viper.SetDefault("scaling.min_workers", defaults.Scaling.MinWorkers)
	viper.SetDefault("scaling.max_workers", defaults.Scaling.MaxWorkers)
	viper.SetDefault("scaling.scale_up_threshold", defaults.Scaling.ScaleUpThreshold)
	viper.SetDefault("scaling.scale_down_threshold", defaults.Scaling.ScaleDownThreshold)
	viper.SetDefault("scaling.cooldown_ms", defaults.Scaling.CooldownMs)

	// TUI defaults
	viper.SetDefault("tui.enabled", defaults.TUI.Enabled)
	viper.SetDefault("tui.refresh_ms", defaults.TUI.RefreshMs)

	// Report defaults
	viper.SetDefault("report.enabled", defaults.Report.Enabled)
	viper.SetDefault("report.path", defaults.Report.Path)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tasker")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tasker"
	}
	return filepath.Join(home, ".config", "tasker")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

package config

import (
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/Iron-Ham/tasker/internal/tasks"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "workers.count")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateHandler()...)
	errors = append(errors, c.validateWorkers()...)
	errors = append(errors, c.validateDemo()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateMetrics()...)
	errors = append(errors, c.validateScaling()...)
	errors = append(errors, c.validateTUI()...)

	return errors
}

func nonNegative(field string, v int) []ValidationError {
	if v >= 0 {
		return nil
	}
	return []ValidationError{{Field: field, Value: v, Message: "must be non-negative"}}
}

func positive(field string, v int) []ValidationError {
	if v > 0 {
		return nil
	}
	return []ValidationError{{Field: field, Value: v, Message: "must be positive"}}
}

// validateHandler validates the HandlerConfig
func (c *Config) validateHandler() []ValidationError {
	var errors []ValidationError
	errors = append(errors, positive("handler.accept_timeout_ms", c.Handler.AcceptTimeoutMs)...)
	errors = append(errors, nonNegative("handler.shutdown_timeout_ms", c.Handler.ShutdownTimeoutMs)...)
	errors = append(errors, nonNegative("handler.detach_timeout_ms", c.Handler.DetachTimeoutMs)...)
	return errors
}

// validateWorkers validates the WorkersConfig
func (c *Config) validateWorkers() []ValidationError {
	var errors []ValidationError

	errors = append(errors, nonNegative("workers.count", c.Workers.Count)...)
	errors = append(errors, positive("workers.concurrency", c.Workers.Concurrency)...)
	errors = append(errors, nonNegative("workers.base_cost_ms", c.Workers.BaseCostMs)...)

	for i, s := range c.Workers.Speeds {
		if s <= 0 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("workers.speeds[%d]", i),
				Value:   s,
				Message: "must be positive",
			})
		}
	}

	seen := make(map[string]bool)
	for i, q := range c.Workers.Qualifications {
		field := fmt.Sprintf("workers.qualifications[%d]", i)
		if _, err := tasks.ParseQualifier(q); err != nil {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   q,
				Message: "must be a series name or glob pattern",
			})
			continue
		}
		if seen[q] {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   q,
				Message: "duplicate qualification",
			})
		}
		seen[q] = true
	}

	return errors
}

// validateDemo validates the DemoConfig
func (c *Config) validateDemo() []ValidationError {
	var errors []ValidationError

	errors = append(errors, nonNegative("demo.tasks", c.Demo.Tasks)...)
	if c.Demo.Niceness < -20 || c.Demo.Niceness > 20 {
		errors = append(errors, ValidationError{
			Field:   "demo.niceness",
			Value:   c.Demo.Niceness,
			Message: "must be between -20 and 20",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	if !c.Metrics.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
		return []ValidationError{{
			Field:   "metrics.addr",
			Value:   c.Metrics.Addr,
			Message: "must be a host:port listen address",
		}}
	}
	return nil
}

// validateScaling validates the ScalingConfig
func (c *Config) validateScaling() []ValidationError {
	var errors []ValidationError

	s := c.Scaling
	errors = append(errors, nonNegative("scaling.min_workers", s.MinWorkers)...)
	errors = append(errors, positive("scaling.max_workers", s.MaxWorkers)...)
	errors = append(errors, nonNegative("scaling.scale_up_threshold", s.ScaleUpThreshold)...)
	errors = append(errors, nonNegative("scaling.scale_down_threshold", s.ScaleDownThreshold)...)
	errors = append(errors, nonNegative("scaling.cooldown_ms", s.CooldownMs)...)

	if s.MaxWorkers > 0 && s.MinWorkers > s.MaxWorkers {
		errors = append(errors, ValidationError{
			Field:   "scaling.min_workers",
			Value:   s.MinWorkers,
			Message: fmt.Sprintf("must not exceed scaling.max_workers (%d)", s.MaxWorkers),
		})
	}

	return errors
}

// validateTUI validates the TUIConfig
func (c *Config) validateTUI() []ValidationError {
	return positive("tui.refresh_ms", c.TUI.RefreshMs)
}

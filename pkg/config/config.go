// Package config provides configuration management for the telemetry
// pipeline: typed settings for every component, YAML file loading with
// environment-variable overrides, and optional hot reloading of thresholds
// for long-lived processes.
package config

import (
	"fmt"
	"time"
)

// Environment classifies the deployment environment. Error reports are only
// escalated from log calls in Production; Fatal records escalate everywhere.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the root configuration for one pipeline instance.
type Config struct {
	AppName     string      `yaml:"app_name"`
	Environment Environment `yaml:"environment"`

	Collector CollectorConfig `yaml:"collector"`
	Reporter  ReporterConfig  `yaml:"reporter"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// CollectorConfig locates the central collector.
type CollectorConfig struct {
	URL        string        `yaml:"url"`
	ServiceKey string        `yaml:"service_key"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ReporterConfig bounds the error-report retry queue.
type ReporterConfig struct {
	QueueSize      int           `yaml:"queue_size"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	BackoffFactor  float64       `yaml:"backoff_factor"`
	JitterFactor   float64       `yaml:"jitter_factor"`
	DrainInterval  time.Duration `yaml:"drain_interval"`
}

// MonitorConfig drives the performance monitor's evaluation loop.
// Thresholds are keyed by metric type and override the built-in defaults.
type MonitorConfig struct {
	Interval   time.Duration      `yaml:"interval"`
	Thresholds map[string]float64 `yaml:"thresholds"`
}

// TracingConfig drives the trace registry and its optional OTLP bridge.
type TracingConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	OTLPEndpoint  string        `yaml:"otlp_endpoint"`
	SampleRate    float64       `yaml:"sample_rate"`
	ExportSpans   bool          `yaml:"export_spans"`
}

// Default returns the configuration defaults. Only AppName and the
// collector credentials have no usable default.
func Default() *Config {
	return &Config{
		Environment: Development,
		Collector: CollectorConfig{
			Timeout: 10 * time.Second,
		},
		Reporter: ReporterConfig{
			QueueSize:      1000,
			MaxRetries:     5,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     30 * time.Second,
			BackoffFactor:  2.0,
			JitterFactor:   0.1,
			DrainInterval:  5 * time.Second,
		},
		Monitor: MonitorConfig{
			Interval: 30 * time.Second,
		},
		Tracing: TracingConfig{
			TTL:           60 * time.Second,
			SweepInterval: 10 * time.Second,
			SampleRate:    1.0,
		},
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.AppName == "" {
		return fmt.Errorf("config: app_name is required")
	}
	switch c.Environment {
	case Development, Staging, Production:
	default:
		return fmt.Errorf("config: unknown environment %q", c.Environment)
	}
	if c.Reporter.QueueSize <= 0 {
		return fmt.Errorf("config: reporter queue_size must be positive")
	}
	if c.Reporter.MaxRetries < 0 {
		return fmt.Errorf("config: reporter max_retries must not be negative")
	}
	if c.Reporter.BackoffFactor < 1.0 {
		return fmt.Errorf("config: reporter backoff_factor must be >= 1.0")
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("config: monitor interval must be positive")
	}
	if c.Tracing.TTL <= 0 {
		return fmt.Errorf("config: tracing ttl must be positive")
	}
	return nil
}

// IsProduction reports whether the pipeline runs against production.
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

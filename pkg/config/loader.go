package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds a configuration in priority order, lowest to highest:
//
//  1. Default values (in code)
//  2. The YAML file at path (skipped when path is empty or absent)
//  3. Environment variables
//
// The result is validated before being returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile overlays one YAML file onto the configuration.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides overlays environment variables, the highest-priority
// configuration source.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("TELEMETRY_APP_NAME"); val != "" {
		cfg.AppName = val
	}
	if val := os.Getenv("TELEMETRY_ENVIRONMENT"); val != "" {
		cfg.Environment = Environment(val)
	}
	if val := os.Getenv("TELEMETRY_COLLECTOR_URL"); val != "" {
		cfg.Collector.URL = val
	}
	if val := os.Getenv("TELEMETRY_COLLECTOR_SERVICE_KEY"); val != "" {
		cfg.Collector.ServiceKey = val
	}
	if val := os.Getenv("TELEMETRY_COLLECTOR_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Collector.Timeout = d
		}
	}
	if val := os.Getenv("TELEMETRY_REPORTER_QUEUE_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.Reporter.QueueSize = n
		}
	}
	if val := os.Getenv("TELEMETRY_REPORTER_MAX_RETRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			cfg.Reporter.MaxRetries = n
		}
	}
	if val := os.Getenv("TELEMETRY_MONITOR_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Monitor.Interval = d
		}
	}
	if val := os.Getenv("TELEMETRY_TRACING_OTLP_ENDPOINT"); val != "" {
		cfg.Tracing.OTLPEndpoint = val
	}
	if val := os.Getenv("TELEMETRY_TRACING_EXPORT_SPANS"); val != "" {
		cfg.Tracing.ExportSpans = val == "true"
	}
	if val := os.Getenv("TELEMETRY_TRACING_SAMPLE_RATE"); val != "" {
		if rate, err := strconv.ParseFloat(val, 64); err == nil && rate >= 0 && rate <= 1 {
			cfg.Tracing.SampleRate = rate
		}
	}
}

// Package telemetry is the composition root of the cross-application
// telemetry pipeline: structured logging, error capture and reporting,
// performance metrics, threshold monitoring, alerting, and tracing, all
// delivered to the platform's central collector. Host applications build
// one Pipeline at startup and thread tenant/user attribution through
// context values; no component relies on ambient mutable state, so every
// test can construct a fresh instance.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"campus-telemetry/alerting"
	"campus-telemetry/delivery"
	"campus-telemetry/logging"
	"campus-telemetry/metrics"
	"campus-telemetry/monitoring"
	"campus-telemetry/pkg/config"
	"campus-telemetry/reporting"
	"campus-telemetry/tracing"
)

// metricsNamespace prefixes the Prometheus mirror's metric names.
const metricsNamespace = "campus_telemetry"

// Pipeline wires every telemetry component against one collector and one
// attribution scope. Components are exported for direct use; the Pipeline
// owns their background loops.
type Pipeline struct {
	cfg    *config.Config
	client delivery.Client

	Logger   *logging.Logger
	Reporter *reporting.Reporter
	Handler  *reporting.Handler
	Metrics  *metrics.Collector
	Mirror   *metrics.Mirror
	Monitor  *monitoring.Monitor
	Alerts   *alerting.Manager
	Traces   *tracing.Registry

	bridge  *tracing.OTELBridge
	watcher *config.Watcher

	mu     sync.Mutex
	cancel context.CancelFunc
}

type options struct {
	configPath  string
	cfg         *config.Config
	appName     string
	environment config.Environment
	client      delivery.Client
	notifier    alerting.Notifier
}

// Option customizes pipeline construction.
type Option func(*options)

// WithConfigFile loads configuration from the given YAML file and watches
// it for threshold changes while the pipeline runs.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithConfig supplies a fully built configuration, bypassing file and
// environment loading.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithAppName overrides the configured application name.
func WithAppName(name string) Option {
	return func(o *options) { o.appName = name }
}

// WithEnvironment overrides the configured environment.
func WithEnvironment(env config.Environment) Option {
	return func(o *options) { o.environment = env }
}

// WithClient supplies the delivery client directly; tests use it to
// inject the in-memory collector.
func WithClient(client delivery.Client) Option {
	return func(o *options) { o.client = client }
}

// WithNotifier replaces the default log-only alert notifier.
func WithNotifier(n alerting.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// New constructs a pipeline. Background loops do not run until Start.
func New(opts ...Option) (*Pipeline, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.cfg
	if cfg == nil {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.appName != "" {
		cfg.AppName = o.appName
	}
	if o.environment != "" {
		cfg.Environment = o.environment
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.AppName, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	client := o.client
	if client == nil {
		if cfg.Collector.URL != "" {
			client, err = delivery.NewSupabase(cfg.Collector.URL, cfg.Collector.ServiceKey, logger.Zap())
			if err != nil {
				return nil, fmt.Errorf("build collector client: %w", err)
			}
		} else {
			// No collector configured: keep signals local. Development only.
			client = delivery.NewMemory()
			logger.Warn(context.Background(), "No collector configured, telemetry stays in memory")
		}
	}

	notifier := o.notifier
	if notifier == nil {
		notifier = alerting.NewLogNotifier(logger.Zap())
	}

	p := &Pipeline{
		cfg:    cfg,
		client: client,
		Logger: logger,
		Mirror: metrics.NewMirror(metricsNamespace),
	}

	p.Reporter = reporting.NewReporter(cfg.AppName, client, cfg.Reporter, cfg.Collector.Timeout, logger.Zap())
	logger.SetEscalationSink(p.Reporter)

	p.Handler = reporting.NewHandler(cfg.AppName, logger, p.Reporter)
	p.Metrics = metrics.NewCollector(cfg.AppName, client, cfg.Collector.Timeout, p.Mirror, logger.Zap())
	p.Alerts = alerting.NewManager(cfg.AppName, client, cfg.Collector.Timeout, notifier, logger.Zap())
	p.Monitor = monitoring.NewMonitor(
		cfg.AppName, p.Metrics, p.Alerts,
		cfg.Monitor.Interval, thresholdOverrides(cfg.Monitor.Thresholds),
		logger.Zap(),
	)

	var exporter tracing.Exporter
	if cfg.Tracing.ExportSpans {
		bridge, err := tracing.NewOTELBridge(cfg.AppName, cfg.Environment, cfg.Tracing)
		if err != nil {
			return nil, fmt.Errorf("build otel bridge: %w", err)
		}
		p.bridge = bridge
		exporter = bridge
	}
	p.Traces = tracing.NewRegistry(cfg.Tracing.TTL, cfg.Tracing.SweepInterval, exporter, logger.Zap())

	if o.configPath != "" {
		watcher, err := config.NewWatcher(o.configPath, cfg, logger.Zap())
		if err != nil {
			logger.Warn(context.Background(), "Config hot reloading unavailable")
		} else {
			p.watcher = watcher
			watcher.OnReload(func(next *config.Config) {
				p.Monitor.SetThresholds(thresholdOverrides(next.Monitor.Thresholds))
			})
		}
	}

	return p, nil
}

// Start launches the background loops: report-queue draining, threshold
// evaluation, and trace sweeping. Calling Start twice is a no-op.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	go p.Reporter.Run(runCtx)
	go p.Monitor.Run(runCtx)
	go p.Traces.Run(runCtx)
}

// Close stops the background loops, makes a final drain and flush pass,
// and shuts the span exporter down. The context bounds the final delivery
// attempts.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	watcher := p.watcher
	p.mu.Unlock()

	if watcher != nil {
		watcher.Stop()
	}

	p.Reporter.Drain(ctx)
	p.Metrics.Flush(ctx)
	p.Monitor.Flush(ctx)

	if p.bridge != nil {
		if err := p.bridge.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown span exporter: %w", err)
		}
	}
	return nil
}

// Config returns the pipeline's active configuration.
func (p *Pipeline) Config() *config.Config {
	return p.cfg
}

// thresholdOverrides converts configured threshold keys (short names or
// full vocabulary values) into typed overrides, dropping unknown keys.
func thresholdOverrides(raw map[string]float64) map[metrics.Type]float64 {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[metrics.Type]float64, len(raw))
	for key, value := range raw {
		if t, ok := metrics.ParseType(key); ok {
			out[t] = value
		}
	}
	return out
}

// ============================================================================
// DEFAULT PIPELINE
// ============================================================================

var (
	defaultMu       sync.Mutex
	defaultPipeline *Pipeline
)

// Default returns the process-wide pipeline, constructing it from the
// environment on first use. Applications that want explicit lifecycle
// control should build their own with New; Default exists to keep simple
// call sites simple.
func Default() (*Pipeline, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultPipeline != nil {
		return defaultPipeline, nil
	}
	p, err := New()
	if err != nil {
		return nil, err
	}
	defaultPipeline = p
	return p, nil
}

// SetDefault replaces the process-wide pipeline; tests use it to install
// a pipeline backed by the in-memory collector.
func SetDefault(p *Pipeline) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultPipeline = p
}

// Package metrics implements the performance-metrics collector: passive,
// best-effort capture of Web Vitals style observations, forwarded to the
// central collector as they arrive and summarized into a last-write-wins
// snapshot for threshold evaluation. Metric delivery never blocks or fails
// the instrumented code path; forwarding failures are logged and swallowed.
package metrics

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"campus-telemetry/delivery"
	"campus-telemetry/pkg/attribution"
)

// Type is the fixed metric vocabulary. All but Custom are standard Web
// Vitals signals observed by the platform's browser clients; server-side
// instrumentation records Custom metrics (request timing, queue depths).
type Type string

const (
	LCP    Type = "largest-contentful-paint"
	INP    Type = "interaction-to-next-paint"
	FCP    Type = "first-contentful-paint"
	TTFB   Type = "time-to-first-byte"
	CLS    Type = "cumulative-layout-shift"
	FID    Type = "first-input-delay"
	Custom Type = "custom"
)

// ShortName returns the conventional abbreviation used in violation
// messages and dashboards.
func (t Type) ShortName() string {
	switch t {
	case LCP:
		return "LCP"
	case INP:
		return "INP"
	case FCP:
		return "FCP"
	case TTFB:
		return "TTFB"
	case CLS:
		return "CLS"
	case FID:
		return "FID"
	default:
		return "custom"
	}
}

// ParseType resolves a metric type from either its full vocabulary value
// or its short name, case-insensitively.
func ParseType(s string) (Type, bool) {
	switch strings.ToLower(s) {
	case string(LCP), "lcp":
		return LCP, true
	case string(INP), "inp":
		return INP, true
	case string(FCP), "fcp":
		return FCP, true
	case string(TTFB), "ttfb":
		return TTFB, true
	case string(CLS), "cls":
		return CLS, true
	case string(FID), "fid":
		return FID, true
	case string(Custom):
		return Custom, true
	default:
		return "", false
	}
}

// DefaultUnit returns the unit a metric type is measured in. CLS is a
// unitless score.
func (t Type) DefaultUnit() string {
	if t == CLS {
		return "score"
	}
	return "ms"
}

// Observation is one performance measurement before attribution.
type Observation struct {
	Type     Type
	Name     string
	Value    float64
	Unit     string
	URL      string
	Metadata map[string]interface{}
}

// Collector accumulates a session's observations and forwards each one to
// the delivery layer as it is recorded. Safe for concurrent use.
type Collector struct {
	appName string
	client  delivery.Client
	logger  *zap.Logger
	mirror  *Mirror
	timeout time.Duration

	mu      sync.Mutex
	session []delivery.Metric

	now func() time.Time
}

// NewCollector creates a metrics collector. The mirror may be nil when the
// host application does not scrape Prometheus.
func NewCollector(appName string, client delivery.Client, timeout time.Duration, mirror *Mirror, logger *zap.Logger) *Collector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Collector{
		appName: appName,
		client:  client,
		logger:  logger.Named("metrics"),
		mirror:  mirror,
		timeout: timeout,
		now:     time.Now,
	}
}

// Record appends the observation to the session and forwards it to the
// collector on a background goroutine. Attribution is taken from the
// context at call time; later attribution changes do not touch metrics
// already recorded.
func (c *Collector) Record(ctx context.Context, obs Observation) {
	if obs.Name == "" {
		obs.Name = obs.Type.ShortName()
	}
	if obs.Unit == "" {
		obs.Unit = obs.Type.DefaultUnit()
	}

	info := attribution.Resolve(ctx, attribution.Info{AppName: c.appName})
	url := obs.URL
	if url == "" {
		url = info.URL
	}

	metric := delivery.Metric{
		AppName:    info.AppName,
		MetricType: string(obs.Type),
		MetricName: obs.Name,
		Value:      obs.Value,
		Unit:       obs.Unit,
		TenantID:   info.TenantID,
		UserID:     info.UserID,
		URL:        url,
		Metadata:   obs.Metadata,
		CreatedAt:  c.now().UTC(),
	}

	c.mu.Lock()
	c.session = append(c.session, metric)
	c.mu.Unlock()

	if c.mirror != nil {
		c.mirror.Observe(metric)
	}

	go c.forward(metric)
}

// forward delivers one metric, swallowing failures.
func (c *Collector) forward(metric delivery.Metric) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("Metric forwarding panicked", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.client.ReportMetric(ctx, metric); err != nil {
		c.logger.Warn("Metric forwarding failed",
			zap.String("metric_type", metric.MetricType),
			zap.String("metric_name", metric.MetricName),
			zap.Error(err),
		)
	}
}

// WebVitals folds the session into one snapshot keyed by metric type,
// last write winning per type. Custom metrics are excluded; they have no
// single threshold semantics.
func (c *Collector) WebVitals() map[Type]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	vitals := make(map[Type]float64)
	for _, m := range c.session {
		t := Type(m.MetricType)
		if t == Custom {
			continue
		}
		vitals[t] = m.Value
	}
	return vitals
}

// Session returns a copy of every metric recorded so far.
func (c *Collector) Session() []delivery.Metric {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]delivery.Metric, len(c.session))
	copy(out, c.session)
	return out
}

// Flush re-delivers the session's final per-type snapshot at session end.
// Per-metric delivery has already happened; this closes the books for
// sessions whose last observations may have raced shutdown.
func (c *Collector) Flush(ctx context.Context) {
	c.mu.Lock()
	latest := make(map[string]delivery.Metric)
	for _, m := range c.session {
		latest[m.MetricType] = m
	}
	c.mu.Unlock()

	for _, m := range latest {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		if err := c.client.ReportMetric(attemptCtx, m); err != nil {
			c.logger.Warn("Final metric flush failed",
				zap.String("metric_type", m.MetricType),
				zap.Error(err),
			)
		}
		cancel()
	}
}

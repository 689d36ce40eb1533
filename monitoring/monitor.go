// Package monitoring implements the performance monitor: a periodic
// evaluation loop that compares the session's Web Vitals snapshot against
// configured thresholds and raises a performance alert when any metric is
// in violation. It also evaluates stored alert rules so operators can add
// thresholds without a deploy.
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"campus-telemetry/alerting"
	"campus-telemetry/delivery"
	"campus-telemetry/metrics"
)

// DefaultThresholds are the out-of-the-box Web Vitals budgets.
var DefaultThresholds = map[metrics.Type]float64{
	metrics.LCP:  2500,
	metrics.INP:  200,
	metrics.FCP:  1800,
	metrics.TTFB: 800,
	metrics.CLS:  0.1,
	metrics.FID:  100,
}

// VitalsSource supplies the current per-type snapshot. The metrics
// collector implements it.
type VitalsSource interface {
	WebVitals() map[metrics.Type]float64
}

// AlertSink receives alerts raised by threshold evaluation. The alert
// manager implements it.
type AlertSink interface {
	CreateAlert(ctx context.Context, alert alerting.Alert) string
	Rules(ctx context.Context, filters delivery.RuleFilters) []alerting.Rule
}

// Monitor evaluates vitals against thresholds on a fixed interval.
// Safe for concurrent use; thresholds can be swapped while running.
type Monitor struct {
	appName  string
	vitals   VitalsSource
	alerts   AlertSink
	logger   *zap.Logger
	interval time.Duration

	mu         sync.RWMutex
	thresholds map[metrics.Type]float64
}

// NewMonitor creates a monitor. Overrides replace the default threshold
// for their metric type; other types keep the defaults.
func NewMonitor(appName string, vitals VitalsSource, alerts AlertSink, interval time.Duration, overrides map[metrics.Type]float64, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	thresholds := make(map[metrics.Type]float64, len(DefaultThresholds))
	for t, v := range DefaultThresholds {
		thresholds[t] = v
	}
	for t, v := range overrides {
		thresholds[t] = v
	}

	return &Monitor{
		appName:    appName,
		vitals:     vitals,
		alerts:     alerts,
		logger:     logger.Named("monitor"),
		interval:   interval,
		thresholds: thresholds,
	}
}

// SetThresholds replaces threshold overrides at runtime; the config
// watcher calls this on hot reload.
func (m *Monitor) SetThresholds(overrides map[metrics.Type]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for t, v := range DefaultThresholds {
		m.thresholds[t] = v
	}
	for t, v := range overrides {
		m.thresholds[t] = v
	}
}

// Threshold returns the active threshold for a metric type.
func (m *Monitor) Threshold(t metrics.Type) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.thresholds[t]
	return v, ok
}

// Run evaluates on the configured interval until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evaluate(ctx)
		}
	}
}

// Evaluate runs one evaluation cycle: every present metric is checked
// against its threshold, and a single warning-severity performance alert
// is created when the violation list is non-empty. It returns the
// violation list for observability and tests.
func (m *Monitor) Evaluate(ctx context.Context) []string {
	vitals := m.vitals.WebVitals()

	m.mu.RLock()
	var violations []string
	details := make(map[string]interface{})
	for t, value := range vitals {
		threshold, ok := m.thresholds[t]
		if !ok || value <= threshold {
			continue
		}
		violation := formatViolation(t, value, threshold)
		violations = append(violations, violation)
		details[t.ShortName()] = map[string]interface{}{
			"value":     value,
			"threshold": threshold,
		}
	}
	m.mu.RUnlock()

	m.evaluateRules(ctx, vitals)

	if len(violations) == 0 {
		return nil
	}

	m.logger.Warn("Performance thresholds exceeded",
		zap.Strings("violations", violations),
	)

	m.alerts.CreateAlert(ctx, alerting.Alert{
		AppName:   m.appName,
		AlertType: string(alerting.TypePerformance),
		Name:      "performance_threshold_exceeded",
		Message:   fmt.Sprintf("%d performance threshold violation(s) detected", len(violations)),
		Severity:  string(alerting.SeverityWarning),
		Metadata: map[string]interface{}{
			"violations": violations,
			"details":    details,
		},
	})

	return violations
}

// evaluateRules applies stored alert rules to the current snapshot. Rules
// name metrics by their short name; unknown metrics are skipped.
func (m *Monitor) evaluateRules(ctx context.Context, vitals map[metrics.Type]float64) {
	rules := m.alerts.Rules(ctx, delivery.RuleFilters{AppName: m.appName, ActiveOnly: true})

	byShortName := make(map[string]float64, len(vitals))
	for t, v := range vitals {
		byShortName[t.ShortName()] = v
	}

	for _, rule := range rules {
		value, ok := byShortName[rule.MetricName]
		if !ok {
			continue
		}
		if !compare(value, rule.Operator, rule.Threshold) {
			continue
		}
		m.alerts.CreateAlert(ctx, alerting.Alert{
			AppName:   m.appName,
			TenantID:  rule.TenantID,
			AlertType: rule.AlertType,
			Name:      rule.Name,
			Message:   fmt.Sprintf("%s is %g (%s %g)", rule.MetricName, value, rule.Operator, rule.Threshold),
			Severity:  rule.Severity,
			Metadata: map[string]interface{}{
				"rule_id":     rule.ID,
				"metric_name": rule.MetricName,
				"value":       value,
				"threshold":   rule.Threshold,
			},
		})
	}
}

// Flush logs a final vitals summary. Delivery has already happened per
// metric; this is the session's closing log line, not a second send path.
func (m *Monitor) Flush(ctx context.Context) {
	vitals := m.vitals.WebVitals()
	if len(vitals) == 0 {
		return
	}

	fields := make([]zap.Field, 0, len(vitals))
	for t, v := range vitals {
		fields = append(fields, zap.Float64(t.ShortName(), v))
	}
	m.logger.Info("Final session vitals", fields...)
}

// compare applies a rule operator.
func compare(value float64, operator string, threshold float64) bool {
	switch operator {
	case "gt":
		return value > threshold
	case "gte":
		return value >= threshold
	case "lt":
		return value < threshold
	case "lte":
		return value <= threshold
	case "eq":
		return value == threshold
	default:
		return false
	}
}

// formatViolation renders one violation, e.g. "LCP: 3200ms > 2500ms".
// CLS is a unitless score.
func formatViolation(t metrics.Type, value, threshold float64) string {
	suffix := "ms"
	if t == metrics.CLS {
		suffix = ""
	}
	return fmt.Sprintf("%s: %g%s > %g%s", t.ShortName(), value, suffix, threshold, suffix)
}

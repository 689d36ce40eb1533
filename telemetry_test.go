package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-telemetry/alerting"
	"campus-telemetry/delivery"
	"campus-telemetry/metrics"
	"campus-telemetry/pkg/attribution"
	"campus-telemetry/pkg/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.AppName = "campus-app"
	return cfg
}

func newTestPipeline(t *testing.T) (*Pipeline, *delivery.Memory) {
	t.Helper()
	client := delivery.NewMemory()
	p, err := New(WithConfig(testConfig()), WithClient(client))
	require.NoError(t, err)
	return p, client
}

func TestNew_RequiresAppName(t *testing.T) {
	cfg := config.Default()
	_, err := New(WithConfig(cfg))
	assert.Error(t, err)
}

func TestNew_OptionOverrides(t *testing.T) {
	p, err := New(
		WithConfig(testConfig()),
		WithClient(delivery.NewMemory()),
		WithAppName("override-app"),
		WithEnvironment(config.Staging),
	)
	require.NoError(t, err)
	assert.Equal(t, "override-app", p.Config().AppName)
	assert.Equal(t, config.Staging, p.Config().Environment)
}

func TestNew_WiresEveryComponent(t *testing.T) {
	p, _ := newTestPipeline(t)

	assert.NotNil(t, p.Logger)
	assert.NotNil(t, p.Reporter)
	assert.NotNil(t, p.Handler)
	assert.NotNil(t, p.Metrics)
	assert.NotNil(t, p.Mirror)
	assert.NotNil(t, p.Monitor)
	assert.NotNil(t, p.Alerts)
	assert.NotNil(t, p.Traces)
}

func TestPipeline_ErrorFlow(t *testing.T) {
	p, client := newTestPipeline(t)

	ctx := attribution.NewContext(context.Background(), attribution.Info{
		TenantID: "district-7",
		UserID:   "teacher-42",
	})
	p.Handler.HandleError(ctx, errors.New("database write failed"), map[string]interface{}{
		"table": "grades",
	})

	require.Eventually(t, func() bool {
		return len(client.SentErrorReports()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	sent := client.SentErrorReports()[0]
	assert.Equal(t, "campus-app", sent.AppName)
	assert.Equal(t, "database_error", sent.ErrorType)
	assert.Equal(t, "high", sent.Severity)
	assert.Equal(t, "district-7", sent.TenantID)
	assert.Equal(t, "grades", sent.Metadata["table"])
}

func TestPipeline_MetricToAlertFlow(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()

	p.Metrics.Record(ctx, metrics.Observation{Type: metrics.LCP, Value: 3200})

	violations := p.Monitor.Evaluate(ctx)
	require.Equal(t, []string{"LCP: 3200ms > 2500ms"}, violations)

	alerts := p.Alerts.Alerts(ctx, delivery.AlertFilters{
		Type: string(alerting.TypePerformance),
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, "performance_threshold_exceeded", alerts[0].Name)
	assert.Equal(t, string(alerting.StatusActive), alerts[0].Status)
}

func TestPipeline_AlertLifecycle(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()

	id := p.Alerts.CreateAlert(ctx, alerting.Alert{
		AlertType: string(alerting.TypeAvailability),
		Name:      "collector_unreachable",
		Message:   "collector down for 5m",
		Severity:  string(alerting.SeverityCritical),
	})
	require.NotEmpty(t, id)

	require.True(t, p.Alerts.UpdateStatus(ctx, id, alerting.StatusAcknowledged, "sre-1"))
	require.True(t, p.Alerts.UpdateStatus(ctx, id, alerting.StatusResolved, "sre-1"))
	assert.False(t, p.Alerts.UpdateStatus(ctx, id, alerting.StatusActive, "sre-1"))
}

func TestPipeline_TraceFlow(t *testing.T) {
	p, _ := newTestPipeline(t)

	id := p.Traces.StartTrace("grade_export", "")
	p.Traces.AddLog(id, "info", "export started")
	done := p.Traces.EndTrace(id, map[string]string{"rows": "1200"})

	require.NotNil(t, done)
	assert.GreaterOrEqual(t, done.Duration, time.Duration(0))
}

func TestPipeline_LoggerEscalationFeedsReporter(t *testing.T) {
	client := delivery.NewMemory()
	cfg := testConfig()
	cfg.Environment = config.Production
	p, err := New(WithConfig(cfg), WithClient(client))
	require.NoError(t, err)

	p.Logger.Error(context.Background(), "scheduler stalled", errors.New("lock contention"))

	require.Eventually(t, func() bool {
		return len(client.SentErrorReports()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "scheduler stalled", client.SentErrorReports()[0].Metadata["log_message"])
}

func TestPipeline_StartAndClose(t *testing.T) {
	p, client := newTestPipeline(t)
	ctx := context.Background()

	p.Start(ctx)
	p.Start(ctx) // second call is a no-op

	p.Metrics.Record(ctx, metrics.Observation{Type: metrics.FCP, Value: 1200})
	p.Handler.HandleError(ctx, errors.New("network blip"), nil)

	require.NoError(t, p.Close(ctx))

	// Close drains and flushes whatever was still in flight.
	require.Eventually(t, func() bool {
		return len(client.SentErrorReports()) >= 1 && len(client.SentMetrics()) >= 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDefaultPipeline(t *testing.T) {
	p, _ := newTestPipeline(t)
	SetDefault(p)
	t.Cleanup(func() { SetDefault(nil) })

	got, err := Default()
	require.NoError(t, err)
	assert.Same(t, p, got)
}

func TestThresholdOverrides(t *testing.T) {
	out := thresholdOverrides(map[string]float64{
		"LCP":                 2000,
		"time-to-first-byte":  500,
		"not-a-known-metric":  1,
	})
	assert.Equal(t, map[metrics.Type]float64{
		metrics.LCP:  2000,
		metrics.TTFB: 500,
	}, out)
}

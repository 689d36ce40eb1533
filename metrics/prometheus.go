package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"campus-telemetry/delivery"
)

// Mirror republishes recorded observations into a Prometheus registry so
// host applications can scrape the same signals the pipeline ships to the
// central collector.
type Mirror struct {
	registry *prometheus.Registry

	observations *prometheus.HistogramVec
	recorded     *prometheus.CounterVec
}

// NewMirror creates a mirror with its own registry under the given
// namespace.
func NewMirror(namespace string) *Mirror {
	registry := prometheus.NewRegistry()

	observations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "web_vitals_value",
			Help:      "Observed performance metric values by type",
			Buckets:   []float64{50, 100, 200, 400, 800, 1600, 2500, 4000, 8000},
		},
		[]string{"app_name", "metric_type"},
	)

	recorded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metrics_recorded_total",
			Help:      "Total performance metrics recorded",
		},
		[]string{"app_name", "metric_type"},
	)

	registry.MustRegister(observations, recorded)

	return &Mirror{
		registry:     registry,
		observations: observations,
		recorded:     recorded,
	}
}

// Observe records one metric into the mirror.
func (m *Mirror) Observe(metric delivery.Metric) {
	labels := prometheus.Labels{
		"app_name":    metric.AppName,
		"metric_type": metric.MetricType,
	}
	m.observations.With(labels).Observe(metric.Value)
	m.recorded.With(labels).Inc()
}

// Registry exposes the mirror's registry for scraping.
func (m *Mirror) Registry() *prometheus.Registry {
	return m.registry
}

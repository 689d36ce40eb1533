package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"campus-telemetry/delivery"
	"campus-telemetry/logging"
	"campus-telemetry/metrics"
	"campus-telemetry/pkg/attribution"
	"campus-telemetry/pkg/config"
	"campus-telemetry/reporting"
	"campus-telemetry/tracing"
)

func TestAttribution(t *testing.T) {
	var got attribution.Info

	r := chi.NewRouter()
	r.Use(Attribution("campus-app"))
	r.Get("/courses/{id}", func(w http.ResponseWriter, req *http.Request) {
		got, _ = attribution.FromContext(req.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/courses/17", nil)
	req.Header.Set(HeaderTenantID, "district-7")
	req.Header.Set(HeaderUserID, "teacher-42")
	req.Header.Set("User-Agent", "test-agent")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "campus-app", got.AppName)
	assert.Equal(t, "district-7", got.TenantID)
	assert.Equal(t, "teacher-42", got.UserID)
	assert.Equal(t, "/courses/17", got.URL)
	assert.Equal(t, "test-agent", got.UserAgent)
	assert.NotEmpty(t, got.IPAddress)
}

func TestTracing(t *testing.T) {
	registry := tracing.NewRegistry(time.Minute, 10*time.Second, nil, zap.NewNop())

	var inHandler string
	r := chi.NewRouter()
	r.Use(Tracing(registry))
	r.Get("/courses/{id}", func(w http.ResponseWriter, req *http.Request) {
		inHandler = TraceIDFromContext(req.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/courses/17", nil))

	traceID := rec.Header().Get(HeaderTraceID)
	require.NotEmpty(t, traceID)
	assert.Equal(t, traceID, inHandler)

	trace := registry.Get(traceID)
	require.NotNil(t, trace)
	assert.Equal(t, "GET /courses/{id}", trace.Operation)
	assert.False(t, trace.EndTime.IsZero())
	assert.Equal(t, "200", trace.Tags["http.status"])
	assert.Equal(t, "GET", trace.Tags["http.method"])
}

func TestTracing_ParentHeaderJoinsTrace(t *testing.T) {
	registry := tracing.NewRegistry(time.Minute, 10*time.Second, nil, zap.NewNop())
	parentID := registry.StartTrace("page_load", "")

	r := chi.NewRouter()
	r.Use(Tracing(registry))
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderTraceID, parentID)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	child := registry.Get(rec.Header().Get(HeaderTraceID))
	parent := registry.Get(parentID)
	require.NotNil(t, child)
	require.NotNil(t, parent)
	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentSpanID)
}

func TestTracing_ErrorStatusLogged(t *testing.T) {
	registry := tracing.NewRegistry(time.Minute, 10*time.Second, nil, zap.NewNop())

	r := chi.NewRouter()
	r.Use(Tracing(registry))
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	trace := registry.Get(rec.Header().Get(HeaderTraceID))
	require.NotNil(t, trace)
	assert.Equal(t, "502", trace.Tags["http.status"])
	require.Len(t, trace.Logs, 1)
	assert.Equal(t, "error", trace.Logs[0].Level)
}

func TestMetrics(t *testing.T) {
	client := delivery.NewMemory()
	collector := metrics.NewCollector("campus-app", client, time.Second, nil, zap.NewNop())

	r := chi.NewRouter()
	r.Use(Metrics(collector))
	r.Get("/courses/{id}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/courses/17", nil))

	session := collector.Session()
	require.Len(t, session, 1)
	assert.Equal(t, string(metrics.Custom), session[0].MetricType)
	assert.Equal(t, "http_request_duration", session[0].MetricName)
	assert.Equal(t, "ms", session[0].Unit)
	assert.Equal(t, "/courses/{id}", session[0].Metadata["route"])
	assert.Equal(t, http.StatusOK, session[0].Metadata["status"])
}

func TestRecovery(t *testing.T) {
	client := delivery.NewMemory()
	reporterCfg := config.Default().Reporter
	reporter := reporting.NewReporter("campus-app", client, reporterCfg, time.Second, zap.NewNop())
	handler := reporting.NewHandler("campus-app", logging.NewNop(), reporter)

	r := chi.NewRouter()
	r.Use(Recovery(handler))
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		panic("lost the plot")
	})

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Eventually(t, func() bool {
		return len(client.SentErrorReports()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, client.SentErrorReports()[0].Message, "lost the plot")
}

func TestRecovery_NoPanicPassesThrough(t *testing.T) {
	client := delivery.NewMemory()
	reporter := reporting.NewReporter("campus-app", client, config.Default().Reporter, time.Second, zap.NewNop())
	handler := reporting.NewHandler("campus-app", logging.NewNop(), reporter)

	r := chi.NewRouter()
	r.Use(Recovery(handler))
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, client.SentErrorReports())
}

// The full stack composed the way a host application would mount it.
func TestMiddlewareStack(t *testing.T) {
	client := delivery.NewMemory()
	registry := tracing.NewRegistry(time.Minute, 10*time.Second, nil, zap.NewNop())
	collector := metrics.NewCollector("campus-app", client, time.Second, nil, zap.NewNop())
	reporter := reporting.NewReporter("campus-app", client, config.Default().Reporter, time.Second, zap.NewNop())
	handler := reporting.NewHandler("campus-app", logging.NewNop(), reporter)

	r := chi.NewRouter()
	r.Use(Attribution("campus-app"))
	r.Use(Tracing(registry))
	r.Use(Metrics(collector))
	r.Use(Recovery(handler))
	r.Get("/gradebook", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/gradebook", nil)
	req.Header.Set(HeaderTenantID, "district-7")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	// The metric carries the attribution the outer middleware injected.
	session := collector.Session()
	require.Len(t, session, 1)
	assert.Equal(t, "district-7", session[0].TenantID)

	// And the trace was opened and closed.
	trace := registry.Get(rec.Header().Get(HeaderTraceID))
	require.NotNil(t, trace)
	assert.False(t, trace.EndTime.IsZero())
}

// Package middleware instruments chi-routed HTTP servers with the
// telemetry pipeline: request attribution, per-request traces, duration
// metrics, and panic capture. Each middleware is independent and they
// compose in any order, though Attribution should run first so the
// downstream signals carry tenant and user identity.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"campus-telemetry/metrics"
	"campus-telemetry/pkg/attribution"
	"campus-telemetry/reporting"
	"campus-telemetry/tracing"
)

// Header names recognized by the middleware stack.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
	HeaderTraceID  = "X-Trace-ID"
)

type traceIDKey struct{}

// TraceIDFromContext returns the trace id opened by Tracing for the
// current request, or "" when the request is not traced.
func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

// Attribution stamps the request context with attribution derived from
// the request: tenant and user headers, URL, user agent, and client
// address. Downstream telemetry calls pick it up automatically.
func Attribution(appName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := attribution.Info{
				AppName:   appName,
				TenantID:  r.Header.Get(HeaderTenantID),
				UserID:    r.Header.Get(HeaderUserID),
				URL:       r.URL.String(),
				UserAgent: r.UserAgent(),
				IPAddress: clientIP(r),
			}
			next.ServeHTTP(w, r.WithContext(attribution.NewContext(r.Context(), info)))
		})
	}
}

// Tracing opens a trace per request named after its method and chi route
// pattern. An incoming X-Trace-ID header joins the request to a known
// parent trace; the opened trace id is echoed back in the response header
// and made available via TraceIDFromContext.
func Tracing(registry *tracing.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := registry.StartTrace(spanName(r), r.Header.Get(HeaderTraceID))
			w.Header().Set(HeaderTraceID, id)

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), traceIDKey{}, id)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusBadRequest {
				registry.AddLog(id, "error", http.StatusText(status))
			}
			registry.EndTrace(id, map[string]string{
				"http.method": r.Method,
				"http.status": strconv.Itoa(status),
			})
		})
	}
}

// Metrics records a custom duration metric for every request, labeled
// with its method, route pattern, and status.
func Metrics(collector *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			collector.Record(r.Context(), metrics.Observation{
				Type:  metrics.Custom,
				Name:  "http_request_duration",
				Value: float64(time.Since(start).Milliseconds()),
				Unit:  "ms",
				URL:   r.URL.Path,
				Metadata: map[string]interface{}{
					"method": r.Method,
					"route":  routePattern(r),
					"status": status,
				},
			})
		})
	}
}

// Recovery converts handler panics into error reports and a 500 response.
// The panic is reported through the pipeline rather than re-raised so one
// bad request cannot take the server down.
func Recovery(handler *reporting.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					handler.HandleError(r.Context(), fmt.Errorf("panic: %v", rec), map[string]interface{}{
						"method": r.Method,
						"route":  routePattern(r),
						"panic":  true,
					})
					if w.Header().Get("Content-Type") == "" {
						http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					}
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func spanName(r *http.Request) string {
	return fmt.Sprintf("%s %s", r.Method, routePattern(r))
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

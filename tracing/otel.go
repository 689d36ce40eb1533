package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"campus-telemetry/pkg/config"
)

// OTELBridge exports finalized registry traces as OpenTelemetry spans so
// the platform's existing OTLP collectors see the same operations the
// registry tracks.
type OTELBridge struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewOTELBridge builds a tracer provider with an OTLP/gRPC exporter and
// environment-appropriate sampling: everything in development, the
// configured ratio in production.
func NewOTELBridge(appName string, env config.Environment, cfg config.TracingConfig) (*OTELBridge, error) {
	endpoint := cfg.OTLPEndpoint
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(endpoint),
	}
	if endpoint == "localhost:4317" || endpoint == "127.0.0.1:4317" {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(appName),
			attribute.String("deployment.environment", string(env)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(env, cfg.SampleRate)),
	)

	return &OTELBridge{
		provider: provider,
		tracer:   provider.Tracer(appName),
	}, nil
}

// sampler picks the sampling strategy for the environment.
func sampler(env config.Environment, rate float64) sdktrace.Sampler {
	switch env {
	case config.Production:
		if rate <= 0 || rate > 1 {
			rate = 0.01
		}
		return sdktrace.TraceIDRatioBased(rate)
	case config.Staging:
		return sdktrace.TraceIDRatioBased(0.1)
	default:
		return sdktrace.AlwaysSample()
	}
}

// Export replays one finalized trace as a span with its original
// timestamps; tags become attributes and trace logs become span events.
func (b *OTELBridge) Export(t Trace) {
	attrs := make([]attribute.KeyValue, 0, len(t.Tags)+3)
	attrs = append(attrs,
		attribute.String("registry.trace_id", t.TraceID),
		attribute.String("registry.span_id", t.SpanID),
	)
	if t.ParentSpanID != "" {
		attrs = append(attrs, attribute.String("registry.parent_span_id", t.ParentSpanID))
	}
	for k, v := range t.Tags {
		attrs = append(attrs, attribute.String(k, v))
	}

	_, span := b.tracer.Start(context.Background(), t.Operation,
		trace.WithTimestamp(t.StartTime),
		trace.WithAttributes(attrs...),
	)
	for _, l := range t.Logs {
		span.AddEvent(l.Message,
			trace.WithTimestamp(l.Timestamp),
			trace.WithAttributes(attribute.String("level", l.Level)),
		)
	}
	span.End(trace.WithTimestamp(t.EndTime))
}

// Shutdown flushes and stops the underlying provider.
func (b *OTELBridge) Shutdown(ctx context.Context) error {
	return b.provider.Shutdown(ctx)
}

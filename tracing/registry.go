// Package tracing implements the trace registry: an in-memory store of
// trace contexts that application code opens with StartTrace, annotates
// with logs and tags, and closes with EndTrace. Completed traces are
// garbage-collected by a single periodic sweep a fixed TTL after
// completion; traces never ended stay live until the process exits, so
// instrumented code must pair every StartTrace with an EndTrace. Finished
// traces can optionally be exported as OpenTelemetry spans.
package tracing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Log is one annotation attached to an in-flight trace.
type Log struct {
	Timestamp time.Time
	Level     string
	Message   string
}

// Trace is one traced operation. SpanID identifies this segment;
// ParentSpanID links a child operation to the trace that started it.
type Trace struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Operation    string
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	Tags         map[string]string
	Logs         []Log

	// completedAt is the sweep deadline anchor; zero while in flight.
	completedAt time.Time
}

// Exporter receives finalized traces. The OTLP bridge implements it.
type Exporter interface {
	Export(t Trace)
}

// Registry stores in-flight and recently completed traces. Safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	traces map[string]*Trace

	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger
	exporter Exporter

	now func() time.Time
}

// NewRegistry creates a registry whose completed traces live for ttl
// after EndTrace. The exporter may be nil.
func NewRegistry(ttl, sweepInterval time.Duration, exporter Exporter, logger *zap.Logger) *Registry {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Second
	}
	return &Registry{
		traces:   make(map[string]*Trace),
		ttl:      ttl,
		interval: sweepInterval,
		logger:   logger.Named("tracer"),
		exporter: exporter,
		now:      time.Now,
	}
}

// StartTrace opens a trace for the operation and returns its id. When the
// parent trace is known, the child records the parent's span id and joins
// its logical trace id; an unknown parent id starts a fresh root trace.
func (r *Registry) StartTrace(operation, parentTraceID string) string {
	id := uuid.New().String()
	t := &Trace{
		TraceID:   id,
		SpanID:    uuid.New().String(),
		Operation: operation,
		StartTime: r.now(),
		Tags:      make(map[string]string),
	}

	r.mu.Lock()
	if parent, ok := r.traces[parentTraceID]; ok {
		t.TraceID = parent.TraceID
		t.ParentSpanID = parent.SpanID
	}
	r.traces[id] = t
	r.mu.Unlock()

	return id
}

// EndTrace finalizes the trace: stamps end time and duration, merges tags,
// and schedules removal one TTL from now. It returns the finalized trace,
// or nil when the id is unknown (already swept or never started); the nil
// is a no-op signal, not an error. Ending an already-ended trace returns it unchanged.
func (r *Registry) EndTrace(traceID string, tags map[string]string) *Trace {
	r.mu.Lock()
	t, ok := r.traces[traceID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	if t.completedAt.IsZero() {
		now := r.now()
		t.EndTime = now
		t.Duration = now.Sub(t.StartTime)
		t.completedAt = now
		for k, v := range tags {
			t.Tags[k] = v
		}
	}
	out := t.snapshot()
	r.mu.Unlock()

	if r.exporter != nil {
		r.exporter.Export(out)
	}
	return &out
}

// AddLog attaches a log entry to an in-flight trace; unknown ids are a
// silent no-op.
func (r *Registry) AddLog(traceID, level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.traces[traceID]
	if !ok || !t.completedAt.IsZero() {
		return
	}
	t.Logs = append(t.Logs, Log{
		Timestamp: r.now(),
		Level:     level,
		Message:   message,
	})
}

// AddTags merges tags into an in-flight trace; unknown ids are a silent
// no-op.
func (r *Registry) AddTags(traceID string, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.traces[traceID]
	if !ok || !t.completedAt.IsZero() {
		return
	}
	for k, v := range tags {
		t.Tags[k] = v
	}
}

// Get returns a copy of the trace, or nil when the id is unknown.
func (r *Registry) Get(traceID string) *Trace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.traces[traceID]
	if !ok {
		return nil
	}
	out := t.snapshot()
	return &out
}

// Len reports how many traces the registry holds, in-flight included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.traces)
}

// Sweep removes completed traces older than the TTL and returns how many
// were collected. In-flight traces are never swept.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	collected := 0
	for id, t := range r.traces {
		if !t.completedAt.IsZero() && t.completedAt.Before(cutoff) {
			delete(r.traces, id)
			collected++
		}
	}
	if collected > 0 {
		r.logger.Debug("Swept completed traces",
			zap.Int("collected", collected),
			zap.Int("remaining", len(r.traces)),
		)
	}
	return collected
}

// Run sweeps on the configured interval until the context is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// snapshot returns a deep copy so callers never share the registry's
// mutable state.
func (t *Trace) snapshot() Trace {
	out := *t
	out.Tags = make(map[string]string, len(t.Tags))
	for k, v := range t.Tags {
		out.Tags[k] = v
	}
	out.Logs = make([]Log, len(t.Logs))
	copy(out.Logs, t.Logs)
	return out
}

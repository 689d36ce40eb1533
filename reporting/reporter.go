// Package reporting implements the Error Reporter and Error Handler: error
// reports are classified, queued in a bounded in-memory FIFO, delivered to
// the central collector with per-attempt timeouts, and retried with
// exponential backoff and jitter behind a circuit breaker. Reports that
// exhaust their retry budget move to a dead-letter set instead of retrying
// forever. A process restart loses undelivered reports; that is the
// accepted durability bound for client-side telemetry.
package reporting

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"campus-telemetry/delivery"
	"campus-telemetry/pkg/attribution"
	"campus-telemetry/pkg/config"
	"campus-telemetry/pkg/errors"
)

// Options carries per-report overrides. Attribution (tenant, user, url,
// client address) comes from the call's context; Options only overrides
// what heuristics would otherwise decide.
type Options struct {
	Severity errors.Severity
	Metadata map[string]interface{}
}

// pending is one queued report with its retry bookkeeping.
type pending struct {
	report   delivery.ErrorReport
	attempts int
	notUntil time.Time
}

// Reporter queues and delivers error reports. It is safe for concurrent
// use; producers never block on delivery.
type Reporter struct {
	appName string
	client  delivery.Client
	logger  *zap.Logger
	breaker *gobreaker.CircuitBreaker
	cfg     config.ReporterConfig
	timeout time.Duration

	mu          sync.Mutex
	queue       []*pending
	deadLetters []delivery.ErrorReport
	dropped     int
	draining    bool
	rand        *rand.Rand

	// now is replaceable in tests.
	now func() time.Time
}

// NewReporter creates a reporter delivering through the given client.
func NewReporter(appName string, client delivery.Client, cfg config.ReporterConfig, timeout time.Duration, logger *zap.Logger) *Reporter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	r := &Reporter{
		appName: appName,
		client:  client,
		logger:  logger.Named("reporter"),
		cfg:     cfg,
		timeout: timeout,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "error-report-delivery",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.8
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("Delivery circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return r
}

// Report classifies the error, builds a report attributed from the
// context, queues it, and kicks an immediate delivery attempt. It returns
// the report id, or the empty string when there is nothing to report or the
// queue is full. It never returns an error: reporting failures must not
// become failures of the instrumented code.
func (r *Reporter) Report(ctx context.Context, err error, opts Options) string {
	if err == nil {
		return ""
	}

	re := errors.From(err)
	severity := re.Severity
	if opts.Severity != "" {
		severity = opts.Severity
	}
	metadata := opts.Metadata
	if metadata == nil {
		metadata = re.Metadata
	}

	info := attribution.Resolve(ctx, attribution.Info{AppName: r.appName})
	report := delivery.ErrorReport{
		ID:         uuid.New().String(),
		AppName:    info.AppName,
		ErrorType:  string(re.Type),
		Message:    re.Message,
		StackTrace: re.Stack,
		TenantID:   info.TenantID,
		UserID:     info.UserID,
		URL:        info.URL,
		UserAgent:  info.UserAgent,
		IPAddress:  info.IPAddress,
		Severity:   string(severity),
		Metadata:   metadata,
		CreatedAt:  r.now().UTC(),
	}

	if !r.enqueue(report) {
		return ""
	}

	// Immediate delivery attempt; the report stays queued until it lands.
	go r.Drain(context.Background())

	return report.ID
}

// enqueue appends the report, dropping it when the queue is at capacity.
func (r *Reporter) enqueue(report delivery.ErrorReport) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.queue) >= r.cfg.QueueSize {
		r.dropped++
		r.logger.Warn("Report queue full, dropping report",
			zap.String("report_id", report.ID),
			zap.Int("queue_size", r.cfg.QueueSize),
			zap.Int("dropped_total", r.dropped),
		)
		return false
	}
	r.queue = append(r.queue, &pending{report: report})
	return true
}

// Drain processes the queue until it is empty or every remaining report is
// waiting out its backoff. It is idempotent and re-entrant safe: concurrent
// calls collapse into one pass.
func (r *Reporter) Drain(ctx context.Context) {
	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		return
	}
	r.draining = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.draining = false
		r.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		item, ok := r.next()
		if !ok {
			return
		}

		if err := r.deliver(ctx, item.report); err != nil {
			item.attempts++
			if item.attempts > r.cfg.MaxRetries {
				r.deadLetter(item, err)
				continue
			}
			item.notUntil = r.now().Add(r.backoff(item.attempts))
			r.requeue(item)
			r.logger.Warn("Report delivery failed, will retry",
				zap.String("report_id", item.report.ID),
				zap.Int("attempt", item.attempts),
				zap.Time("not_until", item.notUntil),
				zap.Error(err),
			)
		}
	}
}

// next pops the first due report, FIFO order. ok is false when the queue is
// empty or nothing is due yet.
func (r *Reporter) next() (*pending, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for i, item := range r.queue {
		if item.notUntil.After(now) {
			continue
		}
		r.queue = append(r.queue[:i], r.queue[i+1:]...)
		return item, true
	}
	return nil, false
}

// requeue re-appends a failed report to the tail. Delivery order under
// failure therefore diverges from creation order; that is the documented
// trade for forward progress.
func (r *Reporter) requeue(item *pending) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, item)
}

// deadLetter sets aside a report that exhausted its retry budget.
func (r *Reporter) deadLetter(item *pending, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deadLetters = append(r.deadLetters, item.report)
	r.logger.Error("Report exhausted retry budget, dead-lettered",
		zap.String("report_id", item.report.ID),
		zap.Int("attempts", item.attempts),
		zap.Error(err),
	)
}

// deliver sends one report through the circuit breaker with a per-attempt
// timeout.
func (r *Reporter) deliver(ctx context.Context, report delivery.ErrorReport) error {
	_, err := r.breaker.Execute(func() (any, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return r.client.ReportError(attemptCtx, report)
	})
	return err
}

// backoff computes the delay before the given attempt, exponential with
// jitter, capped at MaxBackoff.
func (r *Reporter) backoff(attempt int) time.Duration {
	base := float64(r.cfg.InitialBackoff) * math.Pow(r.cfg.BackoffFactor, float64(attempt-1))
	if base > float64(r.cfg.MaxBackoff) {
		base = float64(r.cfg.MaxBackoff)
	}

	r.mu.Lock()
	jitter := r.cfg.JitterFactor * base * (r.rand.Float64()*2 - 1)
	r.mu.Unlock()

	delay := base + jitter
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Run drains the queue on a fixed interval until the context is cancelled.
// The Pipeline starts it; tests call Drain directly.
func (r *Reporter) Run(ctx context.Context) {
	interval := r.cfg.DrainInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Drain(ctx)
		}
	}
}

// QueueDepth reports how many reports are waiting for delivery.
func (r *Reporter) QueueDepth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// DeadLetters returns a copy of the reports that exhausted their retry
// budget.
func (r *Reporter) DeadLetters() []delivery.ErrorReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]delivery.ErrorReport, len(r.deadLetters))
	copy(out, r.deadLetters)
	return out
}

// Capture implements logging.EscalationSink so error and fatal log records
// flow into the same queue as directly reported errors.
func (r *Reporter) Capture(ctx context.Context, err error, metadata map[string]interface{}) error {
	r.Report(ctx, err, Options{Metadata: metadata})
	return nil
}

package reporting

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"campus-telemetry/logging"
	"campus-telemetry/pkg/errors"
)

// Handler captures errors and panics from the instrumented application,
// determines their severity, logs them, and forwards them to the Reporter.
// Reporter failures are caught and logged, never propagated: the handler
// exists to observe failures, not to add new ones. The only deliberate
// exceptions are Wrap and Go, which re-deliver the original failure to the
// caller after reporting it, preserving the caller's error-handling
// contract.
type Handler struct {
	appName  string
	logger   *logging.Logger
	reporter *Reporter
}

// NewHandler creates an error handler bound to the app name.
func NewHandler(appName string, logger *logging.Logger, reporter *Reporter) *Handler {
	return &Handler{
		appName:  appName,
		logger:   logger,
		reporter: reporter,
	}
}

// HandleError classifies, logs, and reports one captured error. Metadata
// is attached to the report verbatim.
func (h *Handler) HandleError(ctx context.Context, err error, metadata map[string]interface{}) {
	if err == nil {
		return
	}

	re := errors.From(err)
	h.logger.LocalError(ctx, "Captured application error", err,
		zap.String("error_type", string(re.Type)),
		zap.String("severity", string(re.Severity)),
	)

	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn(ctx, "Error reporting panicked", zap.Any("panic", r))
		}
	}()
	h.reporter.Report(ctx, re, Options{
		Severity: re.Severity,
		Metadata: metadata,
	})
}

// Recover is meant for use in a deferred call at a goroutine boundary: it
// captures a panic, reports it, and re-panics so the caller's crash
// semantics are unchanged.
//
//	defer handler.Recover(ctx)
func (h *Handler) Recover(ctx context.Context) {
	if r := recover(); r != nil {
		h.HandleError(ctx, panicError(r), map[string]interface{}{
			"panic": true,
		})
		panic(r)
	}
}

// Wrap runs fn, reporting any error or panic before handing it back to the
// caller unchanged. The error return and panic value are the originals.
func (h *Handler) Wrap(ctx context.Context, operation string, fn func() error) error {
	defer func() {
		if r := recover(); r != nil {
			h.HandleError(ctx, panicError(r), map[string]interface{}{
				"operation": operation,
				"panic":     true,
			})
			panic(r)
		}
	}()

	err := fn()
	if err != nil {
		h.HandleError(ctx, err, map[string]interface{}{
			"operation": operation,
		})
	}
	return err
}

// Go runs fn on a new goroutine, reporting any error or panic it produces.
// A panic is reported and swallowed rather than re-raised: an untended
// goroutine has no caller to preserve crash semantics for, and telemetry
// must not take the process down. This is the process-wide capture point
// for asynchronous failures.
func (h *Handler) Go(ctx context.Context, operation string, fn func(ctx context.Context) error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				h.HandleError(ctx, panicError(r), map[string]interface{}{
					"operation": operation,
					"panic":     true,
				})
			}
		}()

		if err := fn(ctx); err != nil {
			h.HandleError(ctx, err, map[string]interface{}{
				"operation": operation,
			})
		}
	}()
}

// panicError normalizes a recovered panic value into an error.
func panicError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}

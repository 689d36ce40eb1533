// Package logging implements the pipeline's structured logger: leveled log
// records enriched with tenant, user, and application attribution, with
// error and fatal records escalated to the Error Reporter. Logging never
// propagates a failure to the caller; a failed escalation is logged at warn
// level and dropped.
package logging

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"campus-telemetry/pkg/attribution"
	"campus-telemetry/pkg/config"
)

// Level is the log-record vocabulary. Trace maps onto zap's debug level;
// fatal is a severity marker, not a process exit, because the pipeline must
// never terminate the instrumented application.
type Level string

const (
	LevelTrace Level = "trace"
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// EscalationSink receives error and fatal records for delivery to the
// central collector. The Error Reporter implements it.
type EscalationSink interface {
	Capture(ctx context.Context, err error, metadata map[string]interface{}) error
}

// Logger emits structured, attributed log records. It is safe for
// concurrent use.
type Logger struct {
	zap      *zap.Logger
	defaults attribution.Info
	prod     bool

	mu   sync.RWMutex
	sink EscalationSink
}

// New creates a logger bound to the given app name and environment. The
// production configuration samples repeated records and logs JSON; other
// environments log human-readable output at debug level.
func New(appName string, env config.Environment) (*Logger, error) {
	var zapCfg zap.Config
	if env == config.Production {
		zapCfg = zap.NewProductionConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zapCfg.Sampling = &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		}
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	z, err := zapCfg.Build(
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zap.ErrorLevel),
	)
	if err != nil {
		return nil, err
	}

	return &Logger{
		zap:      z.With(zap.String("app_name", appName)),
		defaults: attribution.Info{AppName: appName},
		prod:     env == config.Production,
	}, nil
}

// NewNop returns a logger that discards everything. Used by tests that
// exercise other components.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// SetEscalationSink wires the Error Reporter in after construction; the
// logger and reporter reference each other, so one side has to be attached
// late.
func (l *Logger) SetEscalationSink(sink EscalationSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
}

// Zap exposes the underlying zap logger for components that want named
// child loggers.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// Log emits one record at the given level. Error and fatal records carry
// no attached error; use Error or Fatal to attach one.
func (l *Logger) Log(ctx context.Context, level Level, msg string, fields ...zap.Field) {
	switch level {
	case LevelTrace, LevelDebug:
		l.Debug(ctx, msg, fields...)
	case LevelInfo:
		l.Info(ctx, msg, fields...)
	case LevelWarn:
		l.Warn(ctx, msg, fields...)
	case LevelError:
		l.Error(ctx, msg, nil, fields...)
	case LevelFatal:
		l.Fatal(ctx, msg, nil, fields...)
	default:
		l.Info(ctx, msg, fields...)
	}
}

// Debug emits a debug record.
func (l *Logger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Debug(msg, l.enrich(ctx, fields)...)
}

// Info emits an info record.
func (l *Logger) Info(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Info(msg, l.enrich(ctx, fields)...)
}

// Warn emits a warn record.
func (l *Logger) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Warn(msg, l.enrich(ctx, fields)...)
}

// Error emits an error record and, in production, escalates it to the
// Error Reporter. The attached error may be nil.
func (l *Logger) Error(ctx context.Context, msg string, err error, fields ...zap.Field) {
	enriched := l.enrich(ctx, fields)
	if err != nil {
		enriched = append(enriched, zap.Error(err))
	}
	l.zap.Error(msg, enriched...)

	if l.prod {
		l.escalate(ctx, msg, err)
	}
}

// LocalError emits an error record without escalating it to the Error
// Reporter. Pipeline components that already report through the reporter
// use it to avoid feeding their own captures back into the queue twice.
func (l *Logger) LocalError(ctx context.Context, msg string, err error, fields ...zap.Field) {
	enriched := l.enrich(ctx, fields)
	if err != nil {
		enriched = append(enriched, zap.Error(err))
	}
	l.zap.Error(msg, enriched...)
}

// Fatal emits a fatal record and escalates it regardless of environment.
// Unlike zap's Fatal it does not exit the process.
func (l *Logger) Fatal(ctx context.Context, msg string, err error, fields ...zap.Field) {
	enriched := append(l.enrich(ctx, fields), zap.String("level_override", string(LevelFatal)))
	if err != nil {
		enriched = append(enriched, zap.Error(err))
	}
	l.zap.Error(msg, enriched...)

	l.escalate(ctx, msg, err)
}

// enrich appends attribution from the context (falling back to the
// logger's bound app name) to the caller's fields.
func (l *Logger) enrich(ctx context.Context, fields []zap.Field) []zap.Field {
	info := attribution.Resolve(ctx, l.defaults)

	out := make([]zap.Field, 0, len(fields)+4)
	out = append(out, fields...)
	if info.TenantID != "" {
		out = append(out, zap.String("tenant_id", info.TenantID))
	}
	if info.UserID != "" {
		out = append(out, zap.String("user_id", info.UserID))
	}
	if info.URL != "" {
		out = append(out, zap.String("url", info.URL))
	}
	return out
}

// escalate hands the record to the Error Reporter on a separate goroutine
// so the logging call never waits on delivery. Escalation failures are
// logged at warn level and dropped.
func (l *Logger) escalate(ctx context.Context, msg string, err error) {
	l.mu.RLock()
	sink := l.sink
	l.mu.RUnlock()
	if sink == nil {
		return
	}

	if err == nil {
		err = errors.New(msg)
	}
	info := attribution.Resolve(ctx, l.defaults)
	escCtx := attribution.NewContext(context.Background(), info)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				l.zap.Warn("Error escalation panicked", zap.Any("panic", r))
			}
		}()
		if capErr := sink.Capture(escCtx, err, map[string]interface{}{
			"log_message": msg,
		}); capErr != nil {
			l.zap.Warn("Error escalation failed", zap.Error(capErr))
		}
	}()
}

package alerting

import (
	"context"

	"go.uber.org/zap"
)

// Notifier dispatches a newly created alert to its notification channels.
// Channel delivery (email, chat, paging) is owned by downstream systems;
// the pipeline only defines the hook.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogNotifier is the default Notifier: it records the dispatch intent in
// the structured log and nothing more.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notifier")}
}

// Notify logs the alert that would be dispatched.
func (n *LogNotifier) Notify(ctx context.Context, alert Alert) error {
	n.logger.Info("Alert raised",
		zap.String("alert_id", alert.ID),
		zap.String("alert_name", alert.Name),
		zap.String("alert_type", alert.AlertType),
		zap.String("severity", alert.Severity),
		zap.String("app_name", alert.AppName),
		zap.String("tenant_id", alert.TenantID),
	)
	return nil
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, alert Alert) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, alert Alert) error {
	return f(ctx, alert)
}

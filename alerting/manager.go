// Package alerting implements the Alert Manager: persistence and querying
// of alert records and alert rules, a strict status state machine with an
// audit trail, and a notification hook. Creation and query failures are
// logged and absorbed: raising an alert must never fail the code path
// that detected the problem.
package alerting

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"campus-telemetry/delivery"
)

// Alert and Rule are the wire-level models; the manager adds behavior, not
// shape.
type (
	Alert = delivery.Alert
	Rule  = delivery.AlertRule
)

// Type is the alert classification vocabulary.
type Type string

const (
	TypeErrorRate    Type = "error_rate"
	TypePerformance  Type = "performance"
	TypeAvailability Type = "availability"
	TypeSecurity     Type = "security"
	TypeCustom       Type = "custom"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Status is an alert's lifecycle state.
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
	StatusDismissed    Status = "dismissed"
)

// validTransitions is the enforced state machine: resolved and dismissed
// are terminal.
var validTransitions = map[Status]map[Status]bool{
	StatusActive: {
		StatusAcknowledged: true,
		StatusResolved:     true,
		StatusDismissed:    true,
	},
	StatusAcknowledged: {
		StatusResolved:  true,
		StatusDismissed: true,
	},
}

// TransitionAllowed reports whether an alert may move between the two
// statuses.
func TransitionAllowed(from, to Status) bool {
	return validTransitions[from][to]
}

// Manager owns alert and rule persistence through the delivery layer.
// Safe for concurrent use.
type Manager struct {
	appName  string
	client   delivery.Client
	logger   *zap.Logger
	notifier Notifier
	validate *validator.Validate
	timeout  time.Duration

	now func() time.Time
}

// NewManager creates an alert manager. A nil notifier disables dispatch.
func NewManager(appName string, client delivery.Client, timeout time.Duration, notifier Notifier, logger *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Manager{
		appName:  appName,
		client:   client,
		logger:   logger.Named("alerts"),
		notifier: notifier,
		validate: validator.New(),
		timeout:  timeout,
		now:      time.Now,
	}
}

// CreateAlert persists an alert and triggers notification dispatch. The
// status defaults to active and the app name to the manager's own. It
// returns the stored id, or the empty string on validation or storage
// failure; alert creation never errors back to the caller.
func (m *Manager) CreateAlert(ctx context.Context, alert Alert) string {
	if alert.AppName == "" {
		alert.AppName = m.appName
	}
	if alert.Status == "" {
		alert.Status = string(StatusActive)
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = m.now().UTC()
	}

	if err := m.validate.Struct(alert); err != nil {
		m.logger.Warn("Alert rejected by validation",
			zap.String("alert_name", alert.Name),
			zap.Error(err),
		)
		return ""
	}

	insertCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	id, err := m.client.InsertAlert(insertCtx, alert)
	if err != nil {
		m.logger.Warn("Alert storage failed",
			zap.String("alert_name", alert.Name),
			zap.String("alert_type", alert.AlertType),
			zap.Error(err),
		)
		return ""
	}
	alert.ID = id

	if m.notifier != nil {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Warn("Notification dispatch panicked", zap.Any("panic", r))
				}
			}()
			if err := m.notifier.Notify(context.Background(), alert); err != nil {
				m.logger.Warn("Notification dispatch failed",
					zap.String("alert_id", id),
					zap.Error(err),
				)
			}
		}()
	}

	return id
}

// Alerts returns alerts matching the filters, newest first. Query failures
// yield an empty slice, never an error.
func (m *Manager) Alerts(ctx context.Context, filters delivery.AlertFilters) []Alert {
	queryCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	alerts, err := m.client.QueryAlerts(queryCtx, filters)
	if err != nil {
		m.logger.Warn("Alert query failed", zap.Error(err))
		return []Alert{}
	}
	return alerts
}

// UpdateStatus transitions an alert through the state machine, stamping
// the audit fields for acknowledgement and resolution. It returns false
// when the alert is unknown, the transition is illegal, or storage fails.
func (m *Manager) UpdateStatus(ctx context.Context, id string, status Status, userID string) bool {
	queryCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	current, err := m.client.QueryAlerts(queryCtx, delivery.AlertFilters{ID: id, Limit: 1})
	if err != nil || len(current) == 0 {
		m.logger.Warn("Alert status update: alert not found",
			zap.String("alert_id", id),
			zap.Error(err),
		)
		return false
	}

	from := Status(current[0].Status)
	if !TransitionAllowed(from, status) {
		m.logger.Warn("Alert status update rejected: illegal transition",
			zap.String("alert_id", id),
			zap.String("from", string(from)),
			zap.String("to", string(status)),
		)
		return false
	}

	update := delivery.AlertUpdate{Status: string(status)}
	now := m.now().UTC()
	switch status {
	case StatusAcknowledged:
		update.AcknowledgedAt = &now
		update.AcknowledgedBy = userID
	case StatusResolved:
		update.ResolvedAt = &now
		update.ResolvedBy = userID
	}

	updateCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.client.UpdateAlert(updateCtx, id, update); err != nil {
		m.logger.Warn("Alert status update failed",
			zap.String("alert_id", id),
			zap.Error(err),
		)
		return false
	}
	return true
}

// CreateRule persists rule configuration, validating required fields only.
// Returns the stored id, or the empty string on failure.
func (m *Manager) CreateRule(ctx context.Context, rule Rule) string {
	if err := m.validate.Struct(rule); err != nil {
		m.logger.Warn("Alert rule rejected by validation",
			zap.String("rule_name", rule.Name),
			zap.Error(err),
		)
		return ""
	}

	insertCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	id, err := m.client.InsertAlertRule(insertCtx, rule)
	if err != nil {
		m.logger.Warn("Alert rule storage failed",
			zap.String("rule_name", rule.Name),
			zap.Error(err),
		)
		return ""
	}
	return id
}

// Rules returns rule configuration matching the filters. Query failures
// yield an empty slice.
func (m *Manager) Rules(ctx context.Context, filters delivery.RuleFilters) []Rule {
	queryCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	rules, err := m.client.QueryAlertRules(queryCtx, filters)
	if err != nil {
		m.logger.Warn("Alert rule query failed", zap.Error(err))
		return []Rule{}
	}
	return rules
}

package delivery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory Client used by tests and local development.
// Failures can be scripted per operation to exercise retry paths.
type Memory struct {
	mu sync.Mutex

	errorReports []ErrorReport
	metrics      []Metric
	alerts       map[string]*Alert
	rules        map[string]*AlertRule

	failErrorReports int
	failMetrics      int
	failAlerts       int

	now func() time.Time
}

// NewMemory creates an empty in-memory collector.
func NewMemory() *Memory {
	return &Memory{
		alerts: make(map[string]*Alert),
		rules:  make(map[string]*AlertRule),
		now:    time.Now,
	}
}

// FailNextErrorReports makes the next n ReportError calls fail.
func (m *Memory) FailNextErrorReports(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErrorReports = n
}

// FailNextMetrics makes the next n ReportMetric calls fail.
func (m *Memory) FailNextMetrics(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failMetrics = n
}

// FailNextAlerts makes the next n InsertAlert calls fail.
func (m *Memory) FailNextAlerts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAlerts = n
}

// ReportError records the report, assigning an id when it carries none.
func (m *Memory) ReportError(ctx context.Context, report ErrorReport) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErrorReports > 0 {
		m.failErrorReports--
		return "", errScripted
	}
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = m.now()
	}
	m.errorReports = append(m.errorReports, report)
	return report.ID, nil
}

// SentErrorReports returns a copy of every report delivered so far.
func (m *Memory) SentErrorReports() []ErrorReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ErrorReport, len(m.errorReports))
	copy(out, m.errorReports)
	return out
}

// SentMetrics returns a copy of every metric delivered so far.
func (m *Memory) SentMetrics() []Metric {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Metric, len(m.metrics))
	copy(out, m.metrics)
	return out
}

// ReportMetric records the metric observation.
func (m *Memory) ReportMetric(ctx context.Context, metric Metric) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMetrics > 0 {
		m.failMetrics--
		return errScripted
	}
	if metric.CreatedAt.IsZero() {
		metric.CreatedAt = m.now()
	}
	m.metrics = append(m.metrics, metric)
	return nil
}

// InsertAlert stores the alert and returns its id.
func (m *Memory) InsertAlert(ctx context.Context, alert Alert) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAlerts > 0 {
		m.failAlerts--
		return "", errScripted
	}
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = m.now()
	}
	stored := alert
	m.alerts[alert.ID] = &stored
	return alert.ID, nil
}

// UpdateAlert applies a status transition to a stored alert.
func (m *Memory) UpdateAlert(ctx context.Context, id string, update AlertUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	alert, ok := m.alerts[id]
	if !ok {
		return errNotFound
	}
	alert.Status = update.Status
	if update.AcknowledgedAt != nil {
		alert.AcknowledgedAt = update.AcknowledgedAt
		alert.AcknowledgedBy = update.AcknowledgedBy
	}
	if update.ResolvedAt != nil {
		alert.ResolvedAt = update.ResolvedAt
		alert.ResolvedBy = update.ResolvedBy
	}
	return nil
}

// QueryAlerts returns matching alerts ordered by creation time descending.
func (m *Memory) QueryAlerts(ctx context.Context, filters AlertFilters) ([]Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Alert
	for _, alert := range m.alerts {
		if filters.ID != "" && alert.ID != filters.ID {
			continue
		}
		if filters.AppName != "" && alert.AppName != filters.AppName {
			continue
		}
		if filters.TenantID != "" && alert.TenantID != filters.TenantID {
			continue
		}
		if filters.Type != "" && alert.AlertType != filters.Type {
			continue
		}
		if filters.Status != "" && alert.Status != filters.Status {
			continue
		}
		if filters.Severity != "" && alert.Severity != filters.Severity {
			continue
		}
		out = append(out, *alert)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

// InsertAlertRule stores rule configuration and returns its id.
func (m *Memory) InsertAlertRule(ctx context.Context, rule AlertRule) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	stored := rule
	m.rules[rule.ID] = &stored
	return rule.ID, nil
}

// QueryAlertRules returns matching alert rules.
func (m *Memory) QueryAlertRules(ctx context.Context, filters RuleFilters) ([]AlertRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []AlertRule
	for _, rule := range m.rules {
		if filters.AppName != "" && rule.AppName != "" && rule.AppName != filters.AppName {
			continue
		}
		if filters.TenantID != "" && rule.TenantID != "" && rule.TenantID != filters.TenantID {
			continue
		}
		if filters.ActiveOnly && !rule.Active {
			continue
		}
		out = append(out, *rule)
	}
	return out, nil
}

// Package delivery defines the telemetry pipeline's wire contract against
// the central collector: four logical write operations and two logical read
// operations over error reports, performance metrics, alerts, and alert
// rules. The production implementation writes to the platform's hosted
// Postgres tables through the Supabase client; an in-memory implementation
// backs tests and local development.
package delivery

import (
	"context"
	"time"
)

// Client is the collector boundary. All methods honor context cancellation
// and deadlines; callers own retry policy.
type Client interface {
	// ReportError persists one error report and returns its opaque id.
	ReportError(ctx context.Context, report ErrorReport) (string, error)

	// ReportMetric persists one performance metric observation.
	ReportMetric(ctx context.Context, metric Metric) error

	// InsertAlert persists one alert and returns its opaque id.
	InsertAlert(ctx context.Context, alert Alert) (string, error)

	// UpdateAlert applies a status transition and its audit stamps.
	UpdateAlert(ctx context.Context, id string, update AlertUpdate) error

	// QueryAlerts returns alerts matching the filters, newest first.
	QueryAlerts(ctx context.Context, filters AlertFilters) ([]Alert, error)

	// InsertAlertRule persists rule configuration and returns its id.
	InsertAlertRule(ctx context.Context, rule AlertRule) (string, error)

	// QueryAlertRules returns rule configuration matching the filters.
	QueryAlertRules(ctx context.Context, filters RuleFilters) ([]AlertRule, error)
}

// ErrorReport is one captured application error, attributed for
// multi-tenant aggregation. AppName is mandatory.
type ErrorReport struct {
	ID         string                 `json:"id,omitempty"`
	AppName    string                 `json:"app_name"`
	ErrorType  string                 `json:"error_type"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stack_trace,omitempty"`
	TenantID   string                 `json:"tenant_id,omitempty"`
	UserID     string                 `json:"user_id,omitempty"`
	URL        string                 `json:"url,omitempty"`
	UserAgent  string                 `json:"user_agent,omitempty"`
	IPAddress  string                 `json:"ip_address,omitempty"`
	Severity   string                 `json:"severity"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at,omitempty"`
}

// Metric is one performance observation. AppName is mandatory.
type Metric struct {
	AppName    string                 `json:"app_name"`
	MetricType string                 `json:"metric_type"`
	MetricName string                 `json:"metric_name"`
	Value      float64                `json:"value"`
	Unit       string                 `json:"unit,omitempty"`
	TenantID   string                 `json:"tenant_id,omitempty"`
	UserID     string                 `json:"user_id,omitempty"`
	URL        string                 `json:"url,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at,omitempty"`
}

// Alert is a raised operational alert with its status audit trail.
type Alert struct {
	ID             string                 `json:"id,omitempty"`
	AppName        string                 `json:"app_name" validate:"required"`
	TenantID       string                 `json:"tenant_id,omitempty"`
	AlertType      string                 `json:"alert_type" validate:"required"`
	Name           string                 `json:"alert_name" validate:"required"`
	Message        string                 `json:"message" validate:"required"`
	Severity       string                 `json:"severity" validate:"required"`
	Status         string                 `json:"status"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	AcknowledgedAt *time.Time             `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string                 `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time             `json:"resolved_at,omitempty"`
	ResolvedBy     string                 `json:"resolved_by,omitempty"`
	CreatedAt      time.Time              `json:"created_at,omitempty"`
}

// AlertRule is read-mostly alerting configuration. An empty AppName or
// TenantID scopes the rule globally.
type AlertRule struct {
	ID            string   `json:"id,omitempty"`
	AppName       string   `json:"app_name,omitempty"`
	TenantID      string   `json:"tenant_id,omitempty"`
	Name          string   `json:"rule_name" validate:"required"`
	AlertType     string   `json:"alert_type" validate:"required"`
	MetricName    string   `json:"metric_name" validate:"required"`
	Operator      string   `json:"operator" validate:"required,oneof=gt gte lt lte eq"`
	Threshold     float64  `json:"threshold"`
	WindowSeconds int      `json:"window_seconds,omitempty"`
	Severity      string   `json:"severity"`
	Channels      []string `json:"notification_channels,omitempty"`
	Active        bool     `json:"active"`
}

// AlertUpdate carries a status transition and the audit stamps that
// accompany it. Nil timestamp fields are left untouched.
type AlertUpdate struct {
	Status         string     `json:"status"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
}

// AlertFilters narrows an alert query. Zero values mean "any".
type AlertFilters struct {
	ID       string
	AppName  string
	TenantID string
	Type     string
	Status   string
	Severity string
	Limit    int
}

// RuleFilters narrows an alert-rule query. Zero values mean "any".
type RuleFilters struct {
	AppName    string
	TenantID   string
	ActiveOnly bool
}

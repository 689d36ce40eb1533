package delivery

import (
	"context"
	"fmt"
	"strconv"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"
)

// Table names in the collector's Postgres schema.
const (
	errorReportsTable = "error_reports"
	metricsTable      = "performance_metrics"
	alertsTable       = "alerts"
	alertRulesTable   = "alert_rules"
)

// Supabase delivers telemetry to the platform's hosted Postgres through
// the Supabase REST layer. It is safe for concurrent use.
type Supabase struct {
	client *supabase.Client
	logger *zap.Logger
}

// NewSupabase creates a collector client against the given project URL
// using the service-role key. The service role key bypasses row-level
// security, which the telemetry tables require for cross-tenant writes.
func NewSupabase(url, serviceKey string, logger *zap.Logger) (*Supabase, error) {
	if url == "" || serviceKey == "" {
		return nil, fmt.Errorf("supabase delivery requires url and service key")
	}
	client, err := supabase.NewClient(url, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supabase{
		client: client,
		logger: logger.Named("delivery"),
	}, nil
}

// ReportError inserts one error report and returns the stored row id.
func (s *Supabase) ReportError(ctx context.Context, report ErrorReport) (string, error) {
	var rows []ErrorReport
	err := s.await(ctx, func() error {
		_, execErr := s.client.From(errorReportsTable).
			Insert(report, false, "", "representation", "").
			ExecuteTo(&rows)
		return execErr
	})
	if err != nil {
		return "", fmt.Errorf("insert error report: %w", err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("insert error report: no row returned")
	}
	return rows[0].ID, nil
}

// ReportMetric inserts one performance metric observation.
func (s *Supabase) ReportMetric(ctx context.Context, metric Metric) error {
	err := s.await(ctx, func() error {
		_, _, execErr := s.client.From(metricsTable).
			Insert(metric, false, "", "minimal", "").
			Execute()
		return execErr
	})
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	return nil
}

// InsertAlert inserts one alert and returns the stored row id.
func (s *Supabase) InsertAlert(ctx context.Context, alert Alert) (string, error) {
	var rows []Alert
	err := s.await(ctx, func() error {
		_, execErr := s.client.From(alertsTable).
			Insert(alert, false, "", "representation", "").
			ExecuteTo(&rows)
		return execErr
	})
	if err != nil {
		return "", fmt.Errorf("insert alert: %w", err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("insert alert: no row returned")
	}
	return rows[0].ID, nil
}

// UpdateAlert applies a status transition to an existing alert.
func (s *Supabase) UpdateAlert(ctx context.Context, id string, update AlertUpdate) error {
	err := s.await(ctx, func() error {
		_, _, execErr := s.client.From(alertsTable).
			Update(update, "minimal", "").
			Eq("id", id).
			Execute()
		return execErr
	})
	if err != nil {
		return fmt.Errorf("update alert %s: %w", id, err)
	}
	return nil
}

// QueryAlerts returns alerts matching the filters, newest first.
func (s *Supabase) QueryAlerts(ctx context.Context, filters AlertFilters) ([]Alert, error) {
	var rows []Alert
	err := s.await(ctx, func() error {
		q := s.client.From(alertsTable).Select("*", "", false)
		if filters.ID != "" {
			q = q.Eq("id", filters.ID)
		}
		if filters.AppName != "" {
			q = q.Eq("app_name", filters.AppName)
		}
		if filters.TenantID != "" {
			q = q.Eq("tenant_id", filters.TenantID)
		}
		if filters.Type != "" {
			q = q.Eq("alert_type", filters.Type)
		}
		if filters.Status != "" {
			q = q.Eq("status", filters.Status)
		}
		if filters.Severity != "" {
			q = q.Eq("severity", filters.Severity)
		}
		q = q.Order("created_at", &postgrest.OrderOpts{Ascending: false})
		if filters.Limit > 0 {
			q = q.Limit(filters.Limit, "")
		}
		_, execErr := q.ExecuteTo(&rows)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	return rows, nil
}

// InsertAlertRule inserts rule configuration and returns the stored row id.
func (s *Supabase) InsertAlertRule(ctx context.Context, rule AlertRule) (string, error) {
	var rows []AlertRule
	err := s.await(ctx, func() error {
		_, execErr := s.client.From(alertRulesTable).
			Insert(rule, false, "", "representation", "").
			ExecuteTo(&rows)
		return execErr
	})
	if err != nil {
		return "", fmt.Errorf("insert alert rule: %w", err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("insert alert rule: no row returned")
	}
	return rows[0].ID, nil
}

// QueryAlertRules returns alert rules matching the filters.
func (s *Supabase) QueryAlertRules(ctx context.Context, filters RuleFilters) ([]AlertRule, error) {
	var rows []AlertRule
	err := s.await(ctx, func() error {
		q := s.client.From(alertRulesTable).Select("*", "", false)
		if filters.AppName != "" {
			q = q.Eq("app_name", filters.AppName)
		}
		if filters.TenantID != "" {
			q = q.Eq("tenant_id", filters.TenantID)
		}
		if filters.ActiveOnly {
			q = q.Eq("active", strconv.FormatBool(true))
		}
		_, execErr := q.ExecuteTo(&rows)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("query alert rules: %w", err)
	}
	return rows, nil
}

// await runs a blocking REST call on its own goroutine so the caller's
// context deadline is honored even though the underlying client does not
// accept a context. A call abandoned on timeout finishes in the background;
// its result is discarded.
func (s *Supabase) await(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("delivery panic: %v", r)
			}
		}()
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.logger.Warn("delivery call abandoned", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

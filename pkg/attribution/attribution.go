// Package attribution threads tenant and user identity through the
// telemetry pipeline explicitly, via context values, instead of mutating
// shared singleton state. Every signal the pipeline emits (log record,
// error report, performance metric, alert) is attributed from the context
// of the call that produced it, so two concurrent requests never leak
// attribution into each other.
package attribution

import (
	"context"
)

// Info identifies the origin of a telemetry signal. AppName is mandatory
// for multi-tenant aggregation and is filled from the pipeline's own
// configuration when the context carries none; the remaining fields are
// best-effort.
type Info struct {
	AppName   string
	TenantID  string
	UserID    string
	URL       string
	UserAgent string
	IPAddress string
}

// contextKey is used for context values
type contextKey struct {
	name string
}

var infoKey = contextKey{"attribution"}

// NewContext returns a context carrying the given attribution.
func NewContext(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, infoKey, info)
}

// FromContext extracts attribution from the context, reporting whether any
// was set.
func FromContext(ctx context.Context) (Info, bool) {
	if ctx == nil {
		return Info{}, false
	}
	info, ok := ctx.Value(infoKey).(Info)
	return info, ok
}

// Resolve merges context attribution over the given fallback: fields set in
// the context win, empty ones fall through. The fallback's AppName is used
// whenever the context does not carry one, preserving the invariant that no
// signal leaves the pipeline without an app name.
func Resolve(ctx context.Context, fallback Info) Info {
	info, ok := FromContext(ctx)
	if !ok {
		return fallback
	}
	if info.AppName == "" {
		info.AppName = fallback.AppName
	}
	if info.TenantID == "" {
		info.TenantID = fallback.TenantID
	}
	if info.UserID == "" {
		info.UserID = fallback.UserID
	}
	return info
}

// WithTenantID returns a context whose attribution carries the tenant id,
// preserving any other attribution already present.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	info, _ := FromContext(ctx)
	info.TenantID = tenantID
	return NewContext(ctx, info)
}

// WithUserID returns a context whose attribution carries the user id,
// preserving any other attribution already present.
func WithUserID(ctx context.Context, userID string) context.Context {
	info, _ := FromContext(ctx)
	info.UserID = userID
	return NewContext(ctx, info)
}

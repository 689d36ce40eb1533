// Package errors provides the error taxonomy used across the telemetry
// pipeline: every captured error is classified into a fixed error-type
// vocabulary and assigned a severity before it is queued for delivery.
// Classification and severity are pure functions of the error's message,
// stack, and dynamic type, so the same error always produces the same
// report regardless of call order.
package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// ErrorType is the collector's fixed classification vocabulary. The wire
// values predate this SDK and are shared with the other platform clients,
// so they are kept verbatim (including the runtime bucket's historical
// "javascript_error" value).
type ErrorType string

const (
	TypeRuntime        ErrorType = "javascript_error"
	TypeNetwork        ErrorType = "network_error"
	TypeAuthentication ErrorType = "authentication_error"
	TypeAuthorization  ErrorType = "authorization_error"
	TypeValidation     ErrorType = "validation_error"
	TypeDatabase       ErrorType = "database_error"
	TypeAPI            ErrorType = "api_error"
	TypeUnknown        ErrorType = "unknown_error"
)

// Severity ranks a captured error for alerting and triage.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ============================================================================
// REPORTABLE ERROR
// ============================================================================

// ReportableError carries an error together with its classification, the
// captured stack, and arbitrary metadata. It is the unit the Error Reporter
// turns into a wire-level report.
type ReportableError struct {
	Type     ErrorType
	Severity Severity
	Message  string
	Stack    string
	Metadata map[string]interface{}
	Cause    error
}

// Error implements the error interface.
func (e *ReportableError) Error() string {
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Severity, e.Message)
}

// Unwrap allows errors.Is and errors.As to reach the underlying cause.
func (e *ReportableError) Unwrap() error {
	return e.Cause
}

// From wraps an arbitrary error into a ReportableError, classifying it and
// capturing the current stack. A nil error yields nil. An error that is
// already a ReportableError is returned as-is so classification is stable
// across layers.
func From(err error) *ReportableError {
	if err == nil {
		return nil
	}
	if re, ok := err.(*ReportableError); ok {
		return re
	}

	stack := captureStack(2)
	return &ReportableError{
		Type:     Classify(err),
		Severity: DetermineSeverity(err.Error(), stack),
		Message:  err.Error(),
		Stack:    stack,
		Cause:    err,
	}
}

// WithMetadata attaches metadata to the error and returns it for chaining.
func (e *ReportableError) WithMetadata(metadata map[string]interface{}) *ReportableError {
	e.Metadata = metadata
	return e
}

// WithSeverity overrides the heuristic severity.
func (e *ReportableError) WithSeverity(severity Severity) *ReportableError {
	e.Severity = severity
	return e
}

// captureStack renders the calling stack as a newline-separated list of
// frames, skipping the given number of frames above the caller.
func captureStack(skip int) string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}

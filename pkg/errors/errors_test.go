package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type fakeSyntaxError struct{ msg string }

func (e *fakeSyntaxError) Error() string { return e.msg }

type fakeReferenceError struct{ msg string }

func (e *fakeReferenceError) Error() string { return e.msg }

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorType
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: TypeUnknown,
		},
		{
			name:     "syntax error by type name",
			err:      &fakeSyntaxError{msg: "unexpected token"},
			expected: TypeRuntime,
		},
		{
			name:     "reference error by type name",
			err:      &fakeReferenceError{msg: "x is not defined"},
			expected: TypeRuntime,
		},
		{
			name:     "network keyword",
			err:      stderrors.New("network request failed"),
			expected: TypeNetwork,
		},
		{
			name:     "fetch keyword",
			err:      stderrors.New("failed to fetch resource"),
			expected: TypeNetwork,
		},
		{
			name:     "timeout keyword",
			err:      stderrors.New("request timeout exceeded"),
			expected: TypeNetwork,
		},
		{
			name:     "401 status code",
			err:      stderrors.New("401 Unauthorized"),
			expected: TypeAuthentication,
		},
		{
			name:     "unauthorized keyword case-insensitive",
			err:      stderrors.New("UNAUTHORIZED access attempt"),
			expected: TypeAuthentication,
		},
		{
			name:     "403 status code",
			err:      stderrors.New("server returned 403"),
			expected: TypeAuthorization,
		},
		{
			name:     "forbidden keyword",
			err:      stderrors.New("access Forbidden for tenant"),
			expected: TypeAuthorization,
		},
		{
			name:     "validation keyword",
			err:      stderrors.New("validation failed for field email"),
			expected: TypeValidation,
		},
		{
			name:     "invalid keyword",
			err:      stderrors.New("invalid enrollment date"),
			expected: TypeValidation,
		},
		{
			name:     "database keyword",
			err:      stderrors.New("database connection refused"),
			expected: TypeDatabase,
		},
		{
			name:     "sql keyword",
			err:      stderrors.New("sql: no rows in result set"),
			expected: TypeDatabase,
		},
		{
			name:     "api keyword",
			err:      stderrors.New("api returned malformed body"),
			expected: TypeAPI,
		},
		{
			name:     "500 status code",
			err:      stderrors.New("upstream replied 500"),
			expected: TypeAPI,
		},
		{
			name:     "no keyword match",
			err:      stderrors.New("something odd happened"),
			expected: TypeUnknown,
		},
		{
			// Network outranks validation when both match.
			name:     "first matching rule wins",
			err:      stderrors.New("network payload is invalid"),
			expected: TypeNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestDetermineSeverity(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		stack    string
		expected Severity
	}{
		{"critical keyword", "critical failure in scheduler", "", SeverityCritical},
		{"fatal keyword", "fatal: lost session", "", SeverityCritical},
		{"security keyword", "security policy rejected token", "", SeverityCritical},
		{"unauthorized keyword", "401 Unauthorized", "", SeverityCritical},
		{"database keyword", "database is unreachable", "", SeverityHigh},
		{"network keyword", "network flapped", "", SeverityHigh},
		{"timeout keyword", "operation timeout", "", SeverityHigh},
		{"500 in message", "got 500 from gradebook service", "", SeverityHigh},
		{"validation keyword", "validation failed", "", SeverityMedium},
		{"invalid keyword", "invalid grade value", "", SeverityMedium},
		{"404 in message", "page 404", "", SeverityMedium},
		{"no match", "shrug", "", SeverityLow},
		{"empty inputs", "", "", SeverityLow},
		{"keyword only in stack", "boom", "app/database/pool.go:42", SeverityHigh},
		{"critical outranks high", "critical database failure", "", SeverityCritical},
		{"case-insensitive", "CRITICAL OUTAGE", "", SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetermineSeverity(tt.message, tt.stack))
		})
	}
}

// Severity is a pure function of its inputs: repeated calls agree, the
// result is always one of the four ranks, and a message containing
// "critical" ranks critical no matter what surrounds it.
func TestDetermineSeverity_Properties(t *testing.T) {
	known := map[Severity]bool{
		SeverityLow: true, SeverityMedium: true, SeverityHigh: true, SeverityCritical: true,
	}

	rapid.Check(t, func(t *rapid.T) {
		message := rapid.String().Draw(t, "message")
		stack := rapid.String().Draw(t, "stack")

		first := DetermineSeverity(message, stack)
		second := DetermineSeverity(message, stack)

		if first != second {
			t.Fatalf("severity not deterministic: %q then %q", first, second)
		}
		if !known[first] {
			t.Fatalf("unknown severity %q", first)
		}
		if DetermineSeverity(message+" critical", stack) != SeverityCritical {
			t.Fatalf("critical keyword did not force critical severity")
		}
	})
}

func TestFrom(t *testing.T) {
	t.Run("nil yields nil", func(t *testing.T) {
		assert.Nil(t, From(nil))
	})

	t.Run("classifies and captures stack", func(t *testing.T) {
		re := From(stderrors.New("database write failed"))
		require.NotNil(t, re)
		assert.Equal(t, TypeDatabase, re.Type)
		assert.Equal(t, SeverityHigh, re.Severity)
		assert.Equal(t, "database write failed", re.Message)
		assert.Contains(t, re.Stack, "errors_test.go")
	})

	t.Run("already reportable is returned as-is", func(t *testing.T) {
		orig := From(stderrors.New("invalid input")).WithSeverity(SeverityCritical)
		again := From(orig)
		assert.Same(t, orig, again)
		assert.Equal(t, SeverityCritical, again.Severity)
	})

	t.Run("unwraps to cause", func(t *testing.T) {
		cause := stderrors.New("network down")
		re := From(fmt.Errorf("report sync: %w", cause))
		assert.True(t, stderrors.Is(re, cause))
	})
}

func TestReportableError_Error(t *testing.T) {
	re := &ReportableError{
		Type:     TypeNetwork,
		Severity: SeverityHigh,
		Message:  "socket closed",
	}
	assert.Equal(t, "[network_error:high] socket closed", re.Error())
}

func TestReportableError_WithMetadata(t *testing.T) {
	re := From(stderrors.New("whatever")).WithMetadata(map[string]interface{}{"course_id": "c-17"})
	assert.Equal(t, "c-17", re.Metadata["course_id"])
}

package errors

import (
	"reflect"
	"strings"
)

// classificationRule maps keyword matches to an error type. Rules are
// evaluated in order; the first match wins.
type classificationRule struct {
	keywords []string
	errType  ErrorType
}

// typeNameRules match against the error's dynamic type name (the Go
// counterpart of a constructor name): a *json.SyntaxError or a custom
// TypeMismatchError lands in the runtime bucket.
var typeNameRules = classificationRule{
	keywords: []string{"type", "reference", "syntax"},
	errType:  TypeRuntime,
}

// messageRules match against the error message, lowest-numbered rule first.
var messageRules = []classificationRule{
	{keywords: []string{"network", "fetch", "timeout"}, errType: TypeNetwork},
	{keywords: []string{"401", "unauthorized"}, errType: TypeAuthentication},
	{keywords: []string{"403", "forbidden"}, errType: TypeAuthorization},
	{keywords: []string{"validation", "invalid"}, errType: TypeValidation},
	{keywords: []string{"database", "sql", "query"}, errType: TypeDatabase},
	{keywords: []string{"api", "endpoint", "500"}, errType: TypeAPI},
}

// severityRules implement the keyword heuristic over message+stack.
// First match wins; unmatched errors are low severity.
var severityRules = []struct {
	keywords []string
	severity Severity
}{
	{[]string{"critical", "fatal", "security", "unauthorized"}, SeverityCritical},
	{[]string{"database", "network", "timeout", "500"}, SeverityHigh},
	{[]string{"validation", "invalid", "400", "404"}, SeverityMedium},
}

// Classify assigns an error type based on the error's dynamic type name and
// message. The match is a case-insensitive substring test.
func Classify(err error) ErrorType {
	if err == nil {
		return TypeUnknown
	}

	typeName := strings.ToLower(reflect.TypeOf(err).String())
	for _, kw := range typeNameRules.keywords {
		if strings.Contains(typeName, kw) {
			return typeNameRules.errType
		}
	}

	message := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		for _, kw := range rule.keywords {
			if strings.Contains(message, kw) {
				return rule.errType
			}
		}
	}

	return TypeUnknown
}

// DetermineSeverity derives a severity from an error's message and stack.
// It is deterministic: the same (message, stack) pair always yields the
// same severity.
func DetermineSeverity(message, stack string) Severity {
	haystack := strings.ToLower(message + " " + stack)

	for _, rule := range severityRules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.severity
			}
		}
	}

	return SeverityLow
}

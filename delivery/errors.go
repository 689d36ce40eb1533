package delivery

import "errors"

var (
	// errScripted is returned by Memory when a failure has been scripted.
	errScripted = errors.New("delivery: scripted failure")

	// errNotFound is returned when an update targets an unknown row.
	errNotFound = errors.New("delivery: row not found")
)

// IsNotFound reports whether the error marks a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}

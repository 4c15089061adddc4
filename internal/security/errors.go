// errors.go defines sentinel error values for the security engine, covering
// alert lookup, lifecycle validation, and malformed input.
package security

import "errors"

var (
	// ErrAlertNotFound is returned when an alert id resolves to nothing.
	ErrAlertNotFound = errors.New("security: alert not found")

	// ErrInvalidTransition is returned when an alert status update does not
	// follow the open → investigating → {resolved|false_positive} lifecycle.
	ErrInvalidTransition = errors.New("security: invalid alert status transition")

	// ErrInvalidInput is returned for malformed event or alert payloads.
	ErrInvalidInput = errors.New("security: invalid input")
)

package alert

import "errors"

var (
	// ErrValidation marks malformed input. Nothing is written.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing alert or notification.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyResolved is returned for any transition out of a terminal status.
	ErrAlreadyResolved = errors.New("alert already resolved")
	// ErrConcurrentModification is returned when a compare-and-set lost its race twice.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrConflict is returned when an administrative create collides with an open alert.
	ErrConflict = errors.New("open alert already exists")
	// ErrUpstreamUnavailable wraps failures of the domain data gateway.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

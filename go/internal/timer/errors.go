package timer

import "errors"

var (
	// ErrNotFound covers both a missing timer and one owned by another user.
	ErrNotFound = errors.New("timer not found")
	// ErrInvalidTransition is returned when the requested transition is not allowed
	// from the timer's current status.
	ErrInvalidTransition = errors.New("invalid timer transition")
	// ErrValidation is returned for malformed start requests.
	ErrValidation = errors.New("validation failed")
)

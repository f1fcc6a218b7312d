package service

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a reservation or payment does not exist,
// or when it exists but belongs to another user. Both cases look the
// same to the caller.
var ErrNotFound = errors.New("not found")

// ValidationError marks malformed input: bad date ordering, unknown
// status values, invalid option entries. Maps to HTTP 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError is returned when the requested dates collide with a
// confirmed reservation. AvailableFrom carries the earliest start that
// would fit the requested stay length, so clients can offer an
// alternative.
type ConflictError struct {
	AvailableFrom time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("apartment is not available for the selected dates, available from %s",
		e.AvailableFrom.Format("2006-01-02"))
}

// StateError marks a transition the reservation's current state does
// not allow, such as cancelling after check-in. Maps to HTTP 400.
type StateError struct {
	Msg string
}

func (e *StateError) Error() string { return e.Msg }

// UpstreamError wraps a payment-gateway failure. The enclosing
// operation fails, but rows already persisted stay persisted.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *UpstreamError) Unwrap() error { return e.Err }

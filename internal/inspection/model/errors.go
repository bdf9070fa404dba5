package model

import (
	"errors"
	"fmt"
)

// ErrRunNotFound is returned when a run id does not resolve to a run,
// or resolves to a run owned by a different order.
var ErrRunNotFound = errors.New("inspection run not found")

// ValidationError reports a payload that fails the structural rules for its
// step. It is raised before any persistence attempt and is never retried.
type ValidationError struct {
	Step   StepID
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s payload: %s: %s", e.Step, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s payload: %s", e.Step, e.Reason)
}

// NewValidationError builds a ValidationError for a step field.
func NewValidationError(step StepID, field, reason string) *ValidationError {
	return &ValidationError{Step: step, Field: field, Reason: reason}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StateError reports a submission the run cannot legally accept: the run is
// complete, held, or the idempotency key collides with a different payload.
// State errors block until an operator or supervisor intervenes.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string {
	return "inspection state error: " + e.Reason
}

// NewStateError builds a StateError with a formatted reason.
func NewStateError(format string, args ...any) *StateError {
	return &StateError{Reason: fmt.Sprintf(format, args...)}
}

// IsStateError reports whether err is (or wraps) a StateError.
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

// ConnectivityError reports a submission that never reached the backing
// store. It is transient: the caller queues the submission for replay
// instead of surfacing an error.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity failure during %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// IsConnectivityError reports whether err is (or wraps) a ConnectivityError.
func IsConnectivityError(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData marks a statistic that needs more observations.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidTransition marks a lifecycle change the state machine rejects.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotRunning marks writes against an experiment that is not running.
	ErrNotRunning = errors.New("experiment is not running")
	// ErrVariantMismatch marks an event whose variant differs from the user's assignment.
	ErrVariantMismatch = errors.New("variant does not match assignment")
)

// ValidationError reports malformed input. It is never persisted.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a lookup miss where the caller assumed existence.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports errors caused by the experiment's current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotRunning)
}

package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateClaim is returned when the job already has a claim or the receipt number was used before
	ErrDuplicateClaim = errors.New("duplicate claim")

	// ErrInvalidJobState is returned when the referenced job is not completed
	ErrInvalidJobState = errors.New("invalid job state")

	// ErrValidationFailed is returned for malformed or missing submission input
	ErrValidationFailed = errors.New("validation failed")

	// ErrClaimNotFound is returned when no claim has the requested id
	ErrClaimNotFound = errors.New("claim not found")
)

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidationFailed, e.Field, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrValidationFailed).
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

package model

import (
	"errors"
	"fmt"
)

var (
	// ErrSlotConflict means the requested interval overlaps a committed
	// appointment for the professional. Recoverable by picking another slot;
	// never retried automatically.
	ErrSlotConflict = errors.New("slot conflict")

	ErrNotFound = errors.New("not found")

	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError rejects a malformed request before it touches storage.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

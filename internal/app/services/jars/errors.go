package jars

import (
	"errors"
	"fmt"
)

// ErrPermissionDenied is returned when the acting volunteer is missing or
// inactive.
var ErrPermissionDenied = errors.New("permission denied")

// ValidationError reports a single rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

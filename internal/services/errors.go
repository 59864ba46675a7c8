package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/adamara/apiserver/internal/store"
)

var (
	// ErrNotFound is returned for ids that do not resolve, including ids
	// that are not well formed.
	ErrNotFound = store.ErrNotFound

	// ErrUnauthenticated is returned when credentials or tokens do not
	// identify an active user.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden is returned when an authenticated user may not act on
	// a resource.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict is matched by every *ConflictError.
	ErrConflict = errors.New("conflict")
)

// FieldError is a single violated constraint.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every constraint a client payload violates.
type ValidationError struct {
	Violations []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a violation.
func (e *ValidationError) Add(field, message string) {
	e.Violations = append(e.Violations, FieldError{Field: field, Message: message})
}

// Addf records a violation with a formatted message.
func (e *ValidationError) Addf(field, format string, args ...any) {
	e.Add(field, fmt.Sprintf(format, args...))
}

// Err returns e when it holds violations and nil otherwise.
func (e *ValidationError) Err() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}

// ConflictError reports a request that clashes with existing state.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

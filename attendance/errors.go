/*
errors.go - Centralized error types for the attendance engine

PURPOSE:
  All error types in one place. Callers classify failures with errors.Is
  against the sentinels, or errors.As against the structured types when
  they need the details.

ERROR CATEGORIES:
  1. Validation - malformed clock time, status, date or salary input
  2. Not found  - unknown tenant or staff, or staff owned by another tenant
  3. Storage    - persistence unreachable or a constraint violation
  4. Export     - spreadsheet write/rename failure (raised by package export)

SEE ALSO:
  - recorder.go: raises Validation/NotFound, wraps Storage
  - export/excel.go: wraps ErrExport
*/
package attendance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation = errors.New("validation failed")

	ErrNotFound = errors.New("not found")

	ErrStorage = errors.New("storage failure")

	ErrExport = errors.New("export failed")

	// ErrDuplicateUsername is returned when registering a username that is
	// already taken.
	ErrDuplicateUsername = errors.New("username already registered")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes one rejected input value.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string // "tenant" or "staff"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func TenantNotFound(id TenantID) error {
	return &NotFoundError{Kind: "tenant", ID: fmt.Sprint(int64(id))}
}

func StaffNotFound(id StaffID) error {
	return &NotFoundError{Kind: "staff", ID: fmt.Sprint(int64(id))}
}

// StorageError wraps a persistence failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// storageErr classifies an error coming back from a store. Errors that are
// already part of the taxonomy pass through unchanged.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrStorage) || errors.Is(err, ErrDuplicateUsername) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrDuplicateUsername)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

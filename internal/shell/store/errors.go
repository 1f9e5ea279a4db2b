// Package store persists deployment run history.
package store

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotFound means no run matched: an unknown run ID, or a deployment
	// with no succeeded run to roll back to.
	ErrNotFound = errors.New("run not found")

	// ErrDuplicateID means a run ID was recorded twice.
	ErrDuplicateID = errors.New("run with this ID already exists")

	// ErrConnectionFailed means the history database could not be opened.
	ErrConnectionFailed = errors.New("history database unavailable")

	// ErrMigrationFailed means the history schema could not be brought up
	// to date.
	ErrMigrationFailed = errors.New("history migration failed")

	// ErrInvalidData means a stored run timestamp could not be parsed.
	ErrInvalidData = errors.New("invalid run record")
)

// StoreError is a failed history operation. Ref is the run ID or the
// deployment ID the operation was looking up, empty for whole-database
// operations.
type StoreError struct {
	Op      string
	Ref     string
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("history %s %s: %s", e.Op, e.Ref, e.Message)
	}
	return fmt.Sprintf("history %s: %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a StoreError.
func NewStoreError(op, ref, message string, err error) *StoreError {
	return &StoreError{Op: op, Ref: ref, Message: message, Err: err}
}

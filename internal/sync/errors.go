package sync

import (
	"errors"
	"fmt"

	"github.com/medhubvn/stocksheet/internal/models"
)

var (
	// ErrRowNotFound means the recorded row position was invalid and the
	// content-based fallback found no matching row either.
	ErrRowNotFound = errors.New("row not found")

	// ErrValidation means a mutation request is missing required parameters.
	ErrValidation = errors.New("invalid request")
)

// LockedError is returned when a row is already locked by another user.
type LockedError struct {
	RowID  string
	Holder string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("row %s is being edited by %s", e.RowID, e.Holder)
}

// ConflictError is returned when a commit's baseline diverged from the
// current remote content. Changes lists every field that moved between
// baseline and now so the caller can merge or retry with force.
type ConflictError struct {
	RowID   string
	Changes []models.FieldChange
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("row %s changed remotely in %d field(s) since edit began", e.RowID, len(e.Changes))
}

// AsConflict unwraps a ConflictError if err carries one.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// AsLocked unwraps a LockedError if err carries one.
func AsLocked(err error) (*LockedError, bool) {
	var le *LockedError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

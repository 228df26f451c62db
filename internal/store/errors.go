package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an instance or result does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating an instance with a used id.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotDraft is returned when recording responses for an instance that
	// has left the draft state.
	ErrNotDraft = errors.New("instance is not in draft")
)

// PersistenceError wraps a failed write. Nothing from the failed operation
// was committed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

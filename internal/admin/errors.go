package admin

import (
	"errors"
	"fmt"
)

var (
	// ErrPersistence marks collaborator failures. They are retryable and never
	// mean the caller lacked authority.
	ErrPersistence = errors.New("admin: persistence failure")
	// ErrConflict is returned by stores when a guarded write lost a race.
	ErrConflict = errors.New("admin: concurrent modification")
)

// PersistenceError wraps a failed fetch or write. The computed result was
// discarded; any snapshot returned with it was reloaded from the store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("admin: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Retryable reports that the operation may be retried after a reload.
func (e *PersistenceError) Retryable() bool { return true }

func persistErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

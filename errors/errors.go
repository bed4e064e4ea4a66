package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("entity not found")
	ErrForbidden        = errors.New("caller lacks standing for this operation")
	ErrInvalidState     = errors.New("operation not valid for current state")
	ErrAlreadyCompleted = errors.New("milestone already completed")
	ErrValidation       = errors.New("malformed payload")
	ErrWorkerPanic      = errors.New("worker panic")
)

// StateConflictError reports a lost state race or an illegal transition.
// It carries the expected and actual status so the caller can explain the
// rejection without a second read. Matches ErrInvalidState via errors.Is.
type StateConflictError struct {
	Expected string
	Actual   string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("%v: expected %q, got %q", ErrInvalidState, e.Expected, e.Actual)
}

func (e *StateConflictError) Unwrap() error {
	return ErrInvalidState
}

func NewStateConflict(expected, actual string) *StateConflictError {
	return &StateConflictError{Expected: expected, Actual: actual}
}

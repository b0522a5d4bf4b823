package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Error kinds returned by the engine. Match them with errors.Is.
var (
	ErrValidationFailed  = errors.New("validation failed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrConflict          = errors.New("conflict")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrForbidden         = errors.New("forbidden")
)

// Error is a per-request engine failure. An invalid transition also matches
// ErrConflict, which is how callers see it.
type Error struct {
	Op     string
	Kind   error
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Reason)
}

func (e *Error) Unwrap() []error {
	if e.Kind == ErrInvalidTransition {
		return []error{e.Kind, ErrConflict}
	}
	return []error{e.Kind}
}

func fail(op string, kind error, format string, args ...interface{}) error {
	return &Error{Op: op, Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// lookupErr converts a missing record into ErrNotFound and wraps anything else.
func lookupErr(op, what string, id uint, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(op, ErrNotFound, "%s %d does not exist", what, id)
	}
	return fmt.Errorf("%s: load %s %d: %w", op, what, id, err)
}

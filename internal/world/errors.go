package world

import (
	"errors"
	"fmt"
)

// The failure taxonomy distinguishes "nothing happened" (validation) from
// "something was partially attempted" (engine, persistence), so callers can
// decide whether a retry is safe.

// ValidationError rejects a request before any side effect.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// EngineFailure wraps a failure reported by the host engine. Registry state
// has been rolled back to the last consistent point when this is returned.
type EngineFailure struct {
	Op  string // "create", "load", "unload", "relocate", "delete"
	Err error
}

func (e *EngineFailure) Error() string { return fmt.Sprintf("engine %s: %v", e.Op, e.Err) }
func (e *EngineFailure) Unwrap() error { return e.Err }

// PersistenceFailure wraps a durable read/write error.
type PersistenceFailure struct {
	Op  string
	Err error
}

func (e *PersistenceFailure) Error() string { return fmt.Sprintf("persist %s: %v", e.Op, e.Err) }
func (e *PersistenceFailure) Unwrap() error { return e.Err }

// DecodeFailure marks a single corrupted snapshot field. Restoration skips
// the field and continues; this error is logged, never propagated as fatal.
type DecodeFailure struct {
	Field string
	Err   error
}

func (e *DecodeFailure) Error() string { return fmt.Sprintf("decode %s: %v", e.Field, e.Err) }
func (e *DecodeFailure) Unwrap() error { return e.Err }

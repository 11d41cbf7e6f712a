// Package operr defines the two failure kinds an exploration run can
// surface: transient errors the scheduler may retry, and fatal errors
// that mean the task's inputs are structurally wrong.
package operr

import (
	"errors"
	"fmt"
)

// TransientError indicates the run failed in a way that may succeed on a
// retry, such as a non-zero exit from the simulation engine.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// FatalError indicates the task's inputs violate a precondition; retrying
// with the same inputs cannot help.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Transientf formats a new TransientError.
func Transientf(format string, args ...any) error {
	return &TransientError{Err: fmt.Errorf(format, args...)}
}

// Fatalf formats a new FatalError.
func Fatalf(format string, args ...any) error {
	return &FatalError{Err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err is or wraps a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err is or wraps a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

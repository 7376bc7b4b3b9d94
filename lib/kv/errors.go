package kv

import (
	"context"
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error Classes
// --------------------------------------------------------------------------

var (
	// ErrTransient marks errors that are expected to resolve after a short wait,
	// e.g. region movement, leader changes, busy servers or write conflicts.
	ErrTransient = errors.New("transient backend error")
	// ErrFatal marks every other backend error.
	ErrFatal = errors.New("backend error")

	// ErrWriteConflict is returned by Commit if another transaction wrote one of the same keys first.
	ErrWriteConflict = fmt.Errorf("%w: write conflict", ErrTransient)
	// ErrTxnClosed is returned when a committed or rolled back transaction is used again.
	ErrTxnClosed = fmt.Errorf("%w: transaction already finished", ErrFatal)
)

type classified struct {
	class error
	err   error
}

func (e *classified) Error() string   { return e.err.Error() }
func (e *classified) Unwrap() []error { return []error{e.class, e.err} }

// Transient marks err as transient. A nil error stays nil.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return &classified{class: ErrTransient, err: err}
}

// Fatal marks err as fatal unless it is already classified. A nil error stays nil.
func Fatal(err error) error {
	if err == nil || errors.Is(err, ErrTransient) || errors.Is(err, ErrFatal) {
		return err
	}
	return &classified{class: ErrFatal, err: err}
}

// IsTransient reports whether err should be retried.
// Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrTransient)
}

package txn

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dStruct/lib/kv"
)

var (
	// ErrTxnAlreadyActive is returned by Begin if the session already has a transaction.
	ErrTxnAlreadyActive = errors.New("transaction already active")
	// ErrNoActiveTxn is returned by Commit and Rollback if the session has no transaction.
	ErrNoActiveTxn = errors.New("no active transaction")
	// ErrBackendTransient is returned once the retry budget for a transient backend error is used up.
	ErrBackendTransient = errors.New("backend unavailable")
	// ErrBackendFatal wraps every non transient backend error.
	ErrBackendFatal = errors.New("backend error")
	// ErrSwapFailed is returned when a compare and swap loop did not win before the deadline.
	ErrSwapFailed = errors.New("compare and swap failed")
)

// Classify maps a backend error onto ErrBackendTransient or ErrBackendFatal.
// Context errors and errors that are already classified are returned unchanged.
func Classify(err error) error {
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrBackendTransient),
		errors.Is(err, ErrBackendFatal),
		errors.Is(err, ErrSwapFailed):
		return err
	case kv.IsTransient(err):
		return fmt.Errorf("%w: %w", ErrBackendTransient, err)
	default:
		return fmt.Errorf("%w: %w", ErrBackendFatal, err)
	}
}

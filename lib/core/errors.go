package core

import (
	"errors"

	"github.com/ValentinKolb/dStruct/lib/txn"
	"github.com/ValentinKolb/dStruct/lib/types"
)

var (
	// ErrNotConnected is returned by every command but connect before Connect succeeded.
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadyConnected is returned by Connect if the store is connected.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrUnknownCommand is returned by Dispatch for names not in the command table.
	ErrUnknownCommand = errors.New("unknown command")

	ErrTxnAlreadyActive = txn.ErrTxnAlreadyActive
	ErrNoActiveTxn      = txn.ErrNoActiveTxn
	ErrBackendTransient = txn.ErrBackendTransient
	ErrBackendFatal     = txn.ErrBackendFatal
	ErrSwapFailed       = txn.ErrSwapFailed
	ErrKeyDecode        = types.ErrKeyDecode
	ErrArgument         = types.ErrArgument
)

// ErrorCodes maps every sentinel error to a stable code. Front ends send the
// code together with the message so that clients can restore the sentinel.
// Order matters: the first sentinel matching an error wins.
var ErrorCodes = []struct {
	Code string
	Err  error
}{
	{"NOTCONNECTED", ErrNotConnected},
	{"ALREADYCONNECTED", ErrAlreadyConnected},
	{"UNKNOWNCMD", ErrUnknownCommand},
	{"TXNACTIVE", ErrTxnAlreadyActive},
	{"NOTXN", ErrNoActiveTxn},
	{"DECODE", ErrKeyDecode},
	{"ARGUMENT", ErrArgument},
	{"SWAPFAILED", ErrSwapFailed},
	{"TRANSIENT", ErrBackendTransient},
	{"FATAL", ErrBackendFatal},
}

// ErrorCode returns the code of the first sentinel err matches, or "ERR".
func ErrorCode(err error) string {
	for _, c := range ErrorCodes {
		if errors.Is(err, c.Err) {
			return c.Code
		}
	}
	return "ERR"
}

// ErrorForCode returns the sentinel of code, or nil for unknown codes.
func ErrorForCode(code string) error {
	for _, c := range ErrorCodes {
		if c.Code == code {
			return c.Err
		}
	}
	return nil
}

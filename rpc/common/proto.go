package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dStruct/lib/core"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Request fields
	Cmd  string   `json:"cmd,omitempty"`  // Command name, see core.Commands
	Args [][]byte `json:"args,omitempty"` // Command arguments

	// Response fields
	Result core.Result `json:"result"`         // Set for MsgTResult
	Err    string      `json:"err,omitempty"`  // Error message, set for MsgTError
	Code   string      `json:"code,omitempty"` // Error code, see core.ErrorCodes
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewCommandRequest creates a request executing cmd with args
func NewCommandRequest(cmd string, args [][]byte) *Message {
	return &Message{
		MsgType: MsgTCommand,
		Cmd:     cmd,
		Args:    args,
	}
}

// NewCommandResponse creates the response for a command. A non nil err
// creates an error response carrying the code of err.
func NewCommandResponse(res core.Result, err error) *Message {
	if err != nil {
		return NewErrorResponse(core.ErrorCode(err), err.Error())
	}
	return &Message{
		MsgType: MsgTResult,
		Result:  res,
	}
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(code, err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Code:    code,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Remote errors
// --------------------------------------------------------------------------

// RemoteError is an error returned by the server. It unwraps to the sentinel
// of its code so callers can test it with errors.Is.
type RemoteError struct {
	Code string
	Msg  string
}

func (e *RemoteError) Error() string {
	return e.Code + " " + e.Msg
}

func (e *RemoteError) Unwrap() error {
	return core.ErrorForCode(e.Code)
}

// AsError returns the error carried by an error response, nil otherwise.
func (m *Message) AsError() error {
	if m.MsgType != MsgTError && m.Err == "" {
		return nil
	}
	code := m.Code
	if code == "" {
		code = "ERR"
	}
	return &RemoteError{Code: code, Msg: m.Err}
}

// IsRemote reports whether err was returned by the server.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTCommand:
		return "command"
	case MsgTResult:
		return "result"
	case MsgTError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "command":
		*t = MsgTCommand
	case "result":
		*t = MsgTResult
	case "error":
		*t = MsgTError
	case "unknown":
		*t = MsgTUnknown
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	MsgTUnknown MessageType = iota
	MsgTCommand             // Executes a command
	MsgTResult              // Successful command response
	MsgTError               // Indicates an error occurred
)

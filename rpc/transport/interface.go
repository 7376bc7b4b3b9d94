package transport

import (
	"github.com/ValentinKolb/dStruct/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received
// It takes the session id of the sender and a request as parameters and returns a response
type ServerHandleFunc func(sessionID uint64, req []byte) (resp []byte)

// DisconnectFunc is called once for every session that sent requests over a
// connection when that connection goes away
type DisconnectFunc func(sessionID uint64)

// IRPCServerTransport is the interface for the RPC transport layer
// It must accept a ServerConfig as a parameter
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler should be called when a request is received
	RegisterHandler(handler ServerHandleFunc)
	// RegisterDisconnectHandler registers the callback for sessions of closed connections
	RegisterDisconnectHandler(handler DisconnectFunc)
	// Listen starts the transport layer and blocks until Close is called
	Listen(config common.ServerConfig) error
	// Close stops accepting connections and closes all open ones
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response.
	// All requests of one session travel over the same connection.
	Send(sessionID uint64, req []byte) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}

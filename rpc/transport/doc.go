// Package transport defines the interfaces and abstractions for RPC communication
// between dstruct clients and servers. It provides a common contract that all transport
// implementations must fulfill, enabling protocol-agnostic communication.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Session-aware request routing
//   - Enabling multiple transport implementations (TCP, Unix sockets)
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and hands them to the registered handler.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
//
//   - DisconnectFunc: Callback for the sessions of a closed connection, the server
//     uses it to roll back transactions that were left open.
//
// A session is bound to one connection for its lifetime. The server keeps the
// transaction state of a session, so the client must never move a session to a
// different connection while it is in use.
package transport

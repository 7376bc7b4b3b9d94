// Package base provides a foundation for the stream transports of the dstruct RPC system,
// implementing core functionality independent of the specific network protocol
// (TCP, Unix sockets). It serves as a base layer that is extended with
// protocol-specific connectors.
//
// The package focuses on:
//   - Protocol-agnostic client and server transport implementations
//   - Frame-based message protocol with sessionID and requestID tracking
//   - Session-sticky connections and response correlation
//   - Error handling with retries of failed writes and reconnection logic
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - clientTransport: Core client implementation that manages multiple connections.
//     A session always uses connections[sessionID % n], the server keeps the
//     transaction of a session per connection.
//
//   - serverTransport: Core server implementation that accepts connections, hands
//     requests to the handler and reports the sessions of a closed connection to
//     the disconnect handler.
//
// Frame Format:
//
//	8 bytes sessionID | 8 bytes requestID | 4 bytes length | payload
//
// All integers are big endian. The server answers with the sessionID and requestID
// of the request.
//
// Timeouts:
//
//	Reads never time out, an idle connection keeps its sessions. Writes use the
//	configured timeout and a client request fails if no response arrives in time.
//	Requests that were written are never retried, the server might have executed them.
//	When a connection breaks all its waiting requests fail and the client reconnects
//	in the background.
//
// Thread Safety:
//
//	All public methods are thread-safe. The server creates a dedicated goroutine
//	for each connection and up to WorkersPerConn goroutines for its requests.
package base

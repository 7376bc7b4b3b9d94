// Package unix implements the dstruct RPC transport on Unix domain sockets.
// It provides low overhead communication for processes running on the same machine.
//
// This package extends the base transport layer with Unix socket-specific connectors
// while inheriting connection handling, session routing and error handling from the
// base package.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets
//
//   - serverConnector: Creates Unix socket listeners, an existing socket file is removed first
//
// The default server buffer size is 64 KB.
package unix

// Package tcp implements the TCP socket transport of the dstruct RPC system.
// It provides concrete implementations of the base package's connector
// interfaces for TCP connections.
//
// This package builds on the base package's transport functionality, inheriting its
// connection handling, buffer reuse and session routing. See the base package
// documentation for details on the underlying transport mechanisms.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector
//
// Both sides apply the TCPConf and SocketConf options (no delay, keep-alive,
// linger, socket buffers) to every connection. The default server buffer size
// is 512 KB.
package tcp

// Package common provides the data structures shared by the RPC client and
// server of dStruct.
//
// The package focuses on:
//   - Message protocol definition for client server communication
//   - Configuration structures for client and server components
//   - Custom logging implementation integrated with Dragonboat
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. A request names
//     a command of the lib/core command table together with its arguments, a
//     response carries either a core.Result or an error code and message.
//
//   - RemoteError: Error returned by the server. It unwraps to the sentinel
//     of its code, so errors.Is works across the wire.
//
//   - ServerConfig: Configuration for server nodes, including the backend,
//     execution mode, retry policy, RAFT parameters and transport settings.
//     Provides utilities for converting to Dragonboat-specific configurations.
//
//   - ClientConfig: Configuration for client components, controlling connection
//     parameters, timeouts, and retry behavior.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
package common

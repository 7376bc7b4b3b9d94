// Package cmd implements the command-line interface of dStruct. It provides a
// hierarchical command structure for running the server and talking to it as a client.
//
// The package is organized into several subpackages:
//
//   - kv: One subcommand per store command (get, hset, lpush, ...), an interactive
//     shell and a load generator
//   - serve: Starts and configures the dstruct server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Flags can also be set as environment variables with the prefix DSTRUCT_
// (e.g. DSTRUCT_ENDPOINT), .env and .env.local are loaded on startup.
//
// See dstruct -help for a list of all commands.
package cmd

// Package rpc exposes the dstruct command layer over the network.
//
// The package is organized into several subpackages:
//
//   - common: Message protocol, configuration structures, logging and the
//     mapping between error codes and core errors.
//
//   - transport: Framed request/response transport with pluggable
//     implementations (TCP, Unix sockets). Every frame carries the session id.
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB).
//
//   - client: Client with sessions and typed command wrappers.
//
//   - server: Server that decodes commands and dispatches them to the core store.
package rpc

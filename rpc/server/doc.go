// Package server implements the dstruct RPC server. It opens the configured
// backend, connects a core.Store to it and serves the store's commands over
// any IRPCServerTransport.
//
// Every request carries a session id in its transport frame. The server maps it
// one to one onto a txn.SessionID, so begin, commit and rollback of a client
// session apply to all commands that session sends. When a connection closes,
// the transport reports its sessions and the server rolls back their open
// transactions.
//
// Execution:
//
//   - sync: a command runs on the goroutine that read it from the connection.
//
//   - async: commands are handed round robin to a fixed number of worker
//     goroutines, bounding the work running against the backend.
//
// Backends:
//
//   - memory and badger run inside the server process.
//   - raft starts a dragonboat node host and joins the configured shard.
//   - tikv connects to the PD addresses given in the config.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Backend:       "memory",
//	  Exec:          common.ExecSync,
//	  TimeoutSecond: 5,
//	  Transport:     common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	}
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
//	go func() { <-stop; s.Close() }()
//	if err := s.Serve(); err != nil {
//	  log.Fatal(err)
//	}
package server

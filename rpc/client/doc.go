// Package client implements the RPC client of the dstruct server.
//
// A Client owns one transport (and with it the connection pool) and hands out
// Sessions. Every session has a random 64 bit id that travels with each
// request, the server keys its per-session state (connected backend, open
// transaction) by that id. Requests of one session are serialized, different
// sessions may be used concurrently from multiple goroutines.
//
// Usage Example:
//
//	config := common.ClientConfig{
//		TimeoutSecond: 5,
//		Transport: common.ClientTransportConfig{
//			Endpoints:              []string{"localhost:8080"},
//			RetryCount:             3,
//			ConnectionsPerEndpoint: 2,
//		},
//	}
//
//	c, _ := client.New(config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	defer c.Close()
//
//	s := c.Session()
//	defer s.Close(ctx)
//
//	_ = s.Put(ctx, "greeting", []byte("hello"))
//	value, found, _ := s.Get(ctx, "greeting")
//
//	_ = s.Begin(ctx)
//	_, _ = s.RPush(ctx, "queue", []byte("job-1"))
//	_ = s.Commit(ctx)
//
// Errors returned by the server are *common.RemoteError values. They unwrap
// to the matching core error, so errors.Is(err, core.ErrWrongType) works on
// the client as well. Transport failures are returned as is.
package client

package client

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/ValentinKolb/dStruct/lib/core"
	"github.com/ValentinKolb/dStruct/rpc/common"
	"github.com/ValentinKolb/dStruct/rpc/serializer"
	"github.com/ValentinKolb/dStruct/rpc/transport"
	"github.com/google/uuid"
)

// Client sends commands to a dstruct server. Commands run in sessions, each
// session has its own transaction state on the server.
type Client struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer

	defaultOnce    sync.Once
	defaultSession *Session
}

// New connects the transport and returns a client
// The function takes a util, a transport and a serializer as parameters
func New(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*Client, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}
	return &Client{
		config:     config,
		transport:  transport,
		serializer: serializer,
	}, nil
}

// Session creates a new session with a random id
func (c *Client) Session() *Session {
	u := uuid.New()
	return &Session{
		id:     binary.BigEndian.Uint64(u[:8]) ^ binary.BigEndian.Uint64(u[8:]),
		client: c,
	}
}

// Do runs a command in the default session of the client
func (c *Client) Do(ctx context.Context, cmd string, args ...[]byte) (core.Result, error) {
	c.defaultOnce.Do(func() { c.defaultSession = c.Session() })
	return c.defaultSession.Do(ctx, cmd, args...)
}

// Close closes the transport. Open transactions of all sessions are rolled back by the server.
func (c *Client) Close() error {
	return c.transport.Close()
}

// Session is a sequence of commands sharing one transaction state.
// A session is safe for concurrent use, its commands are sent one at a time.
type Session struct {
	id     uint64
	client *Client
	mu     sync.Mutex
}

// ID returns the id the server knows the session by
func (s *Session) ID() uint64 { return s.id }

// Do sends one command and returns its result. Errors reported by the server
// are *common.RemoteError values that unwrap to the sentinels of package core.
func (s *Session) Do(ctx context.Context, cmd string, args ...[]byte) (core.Result, error) {
	if err := ctx.Err(); err != nil {
		return core.Null(), err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return invokeRPCRequest(s.id, common.NewCommandRequest(cmd, args), s.client.transport, s.client.serializer)
}

// DoStrings is Do with string arguments
func (s *Session) DoStrings(ctx context.Context, cmd string, args ...string) (core.Result, error) {
	return s.Do(ctx, cmd, toBytes(args)...)
}

// Close rolls back the open transaction of the session, if any
func (s *Session) Close(ctx context.Context) error {
	_, err := s.Do(ctx, "rollback")
	if errors.Is(err, core.ErrNoActiveTxn) {
		return nil
	}
	return err
}

func toBytes(values []string) [][]byte {
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = []byte(v)
	}
	return out
}

package base

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dStruct/rpc/common"
	"github.com/ValentinKolb/dStruct/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sethvargo/go-retry"
)

var Logger = logger.GetLogger("transport/rpc")

var (
	// ErrTimeout is returned if no response arrived within the configured timeout
	ErrTimeout = errors.New("request timed out")
	// ErrClosed is returned for requests on a closed transport
	ErrClosed = errors.New("transport closed")
	// ErrConnectionLost is returned for requests whose connection broke before the response arrived
	ErrConnectionLost = errors.New("connection lost")
)

const (
	initialBackoff   = 50 * time.Millisecond
	maxReconnectWait = 2 * time.Second
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection based on the provided configuration
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// clientConnection represents a single net connection
type clientConnection struct {
	conn         net.Conn
	endpoint     string
	stopCh       chan struct{} // Close signal for the reader goroutine
	requestChans *xsync.MapOf[uint64, chan responseResult]
	connMu       sync.Mutex // Protects the connection itself
	parent       *clientTransport
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	connections   []*clientConnection
	connectionsMu sync.RWMutex
	nextRequestID atomic.Uint64 // Atomic counter for unique request IDs
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	// Close all existing connections
	t.closeConnections()
	t.config = config

	connectionsPerEP := max(config.Transport.ConnectionsPerEndpoint, 1)
	connections := make([]*clientConnection, 0, len(config.Transport.Endpoints)*connectionsPerEP)

	for _, endpoint := range config.Transport.Endpoints {
		// Create multiple connections per endpoint
		for i := 0; i < connectionsPerEP; i++ {
			clientConn := &clientConnection{
				endpoint:     endpoint,
				stopCh:       make(chan struct{}),
				requestChans: xsync.NewMapOf[uint64, chan responseResult](),
				parent:       t,
			}

			// Establish the initial connection using reconnect
			if err := clientConn.reconnect(); err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, connectionsPerEP, err)
				continue
			}
			connections = append(connections, clientConn)

			Logger.Debugf("Connected to %s (connection %d/%d)", endpoint, i+1, connectionsPerEP)

			go clientConn.readResponses()
		}
	}

	if len(connections) == 0 {
		return fmt.Errorf("failed to connect to any endpoint")
	}

	t.connectionsMu.Lock()
	t.connections = connections
	t.connectionsMu.Unlock()

	Logger.Infof("Connected to %d out of %d connections to %d endpoints using %s transport",
		len(connections), len(config.Transport.Endpoints)*connectionsPerEP, len(config.Transport.Endpoints), t.connector.GetName())

	return nil
}

func (t *clientTransport) Send(sessionID uint64, req []byte) ([]byte, error) {
	connection := t.getConnection(sessionID)
	if connection == nil {
		return nil, ErrClosed
	}

	requestID := t.nextRequestID.Add(1)
	timeout := t.config.Timeout()

	// Only failed writes are retried, the server never saw those requests.
	// A request that was written might have been executed already.
	attempts := max(t.config.Transport.RetryCount, 1)
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.WithJitterPercent(10, retry.NewExponential(initialBackoff)))

	var resp []byte
	attempt := 0
	err := retry.Do(context.Background(), backoff, func(_ context.Context) error {
		attempt++
		respCh, err := connection.write(sessionID, requestID, req, timeout)
		if err != nil {
			Logger.Debugf("Request attempt %d/%d failed: %v", attempt, attempts, err)
			if errors.Is(err, ErrClosed) {
				return err
			}
			return retry.RetryableError(err)
		}
		defer connection.requestChans.Delete(requestID)

		var timeoutCh <-chan time.Time
		if timeout > 0 {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			timeoutCh = timer.C
		}

		select {
		case result := <-respCh:
			resp = result.data
			return result.err
		case <-timeoutCh:
			return ErrTimeout
		}
	})
	if err != nil {
		if attempt > 1 {
			return nil, fmt.Errorf("failed to send request after %d attempts: %w", attempt, err)
		}
		return nil, err
	}
	return resp, nil
}

func (t *clientTransport) Close() error {
	t.closeConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// getConnection returns the connection a session is bound to
func (t *clientTransport) getConnection(sessionID uint64) *clientConnection {
	t.connectionsMu.RLock()
	defer t.connectionsMu.RUnlock()

	if len(t.connections) == 0 {
		return nil
	}
	return t.connections[sessionID%uint64(len(t.connections))]
}

// closeConnections closes all active connections
func (t *clientTransport) closeConnections() {
	t.connectionsMu.Lock()
	connections := t.connections
	t.connections = nil
	t.connectionsMu.Unlock()

	for _, c := range connections {
		// Signal reader goroutine to stop
		close(c.stopCh)

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.connMu.Unlock()
	}
}

// stopped reports whether the connection was closed by the transport
func (c *clientConnection) stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// write registers a response channel for requestID and writes the request frame
func (c *clientConnection) write(sessionID, requestID uint64, req []byte, timeout time.Duration) (chan responseResult, error) {
	if c.stopped() {
		return nil, ErrClosed
	}

	respCh := make(chan responseResult, 1)
	c.requestChans.Store(requestID, respCh)

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		c.requestChans.Delete(requestID)
		return nil, ErrConnectionLost
	}
	if timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			c.requestChans.Delete(requestID)
			return nil, err
		}
	}
	if err := writeFrame(c.conn, sessionID, requestID, req); err != nil {
		c.requestChans.Delete(requestID)
		return nil, err
	}
	return respCh, nil
}

// failPending fails all requests that wait for a response on this connection
func (c *clientConnection) failPending(err error) {
	c.requestChans.Range(func(requestID uint64, respCh chan responseResult) bool {
		c.requestChans.Delete(requestID)
		select {
		case respCh <- responseResult{nil, err}:
		default:
		}
		return true
	})
}

// readResponses reads responses in a loop and distributes them to waiting requests.
// Reads have no deadline, waiting requests time out on their own.
func (c *clientConnection) readResponses() {
	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		var err error
		if conn == nil {
			err = ErrConnectionLost
		} else {
			var (
				sessionID, requestID uint64
				data                 []byte
			)
			sessionID, requestID, data, err = readFrame(conn, nil)
			if err == nil {
				if respCh, found := c.requestChans.Load(requestID); found {
					respCh <- responseResult{data, nil}
				} else {
					Logger.Warningf("Received response for unknown request ID %d of session %d", requestID, sessionID)
				}
				continue
			}
		}

		if c.stopped() {
			c.failPending(ErrClosed)
			return
		}

		Logger.Warningf("Connection to %s broke: %v", c.endpoint, err)
		c.failPending(fmt.Errorf("%w: %v", ErrConnectionLost, err))

		// Try to restore the connection until it works or the transport is closed
		wait := initialBackoff
		for {
			if err := c.reconnect(); err == nil {
				Logger.Infof("Reconnected to %s", c.endpoint)
				break
			} else {
				Logger.Errorf("Failed to reconnect to %s: %v", c.endpoint, err)
			}
			select {
			case <-c.stopCh:
				c.failPending(ErrClosed)
				return
			case <-time.After(wait):
			}
			wait = min(wait*2, maxReconnectWait)
		}
	}
}

// reconnect establishes or restores a connection to the endpoint
func (c *clientConnection) reconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	// Close the old connection if it exists
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.stopped() {
		return ErrClosed
	}

	conn, err := c.parent.connector.Connect(c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %v", c.endpoint, err)
	}

	// Upgrade the connection with protocol-specific settings
	if err := c.parent.connector.UpgradeConnection(conn, c.parent.config); err != nil {
		conn.Close()
		return fmt.Errorf("failed to upgrade connection to %s: %v", c.endpoint, err)
	}

	c.conn = conn
	return nil
}

package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("pool")

// ErrClosed is returned by Get after Close was called.
var ErrClosed = errors.New("pool closed")

// Config configures a pool.
type Config struct {
	// MaxIdle bounds the free-list. Clients returned to a full free-list are closed.
	MaxIdle int
}

// DefaultConfig keeps up to 16 idle clients.
var DefaultConfig = Config{MaxIdle: 16}

// Stats is a point in time view of the pool counters.
type Stats struct {
	Idle    int   `json:"idle"`
	InUse   int64 `json:"inUse"`
	Created int64 `json:"created"`
	Dropped int64 `json:"dropped"`
}

// Pool hands out transactional clients and owns the shared raw client.
type Pool struct {
	driver kv.IDriver
	addrs  []string
	cfg    Config
	raw    kv.IRawClient

	mu     sync.Mutex // guards idle and closed only
	idle   []kv.ITxnClient
	closed bool

	inUse   atomic.Int64
	created atomic.Int64
	dropped atomic.Int64
}

// New creates a pool for the backend at addrs. The raw client is opened eagerly,
// so a pool that was created successfully is connected.
func New(ctx context.Context, driver kv.IDriver, addrs []string, cfg Config) (*Pool, error) {
	if cfg.MaxIdle < 0 {
		return nil, fmt.Errorf("invalid pool config: MaxIdle must not be negative, got %d", cfg.MaxIdle)
	}
	raw, err := driver.NewRawClient(ctx, addrs)
	if err != nil {
		return nil, fmt.Errorf("failed to open raw client: %w", err)
	}
	log.Infof("pool connected to %s backend at %v (max idle %d)", driver.Info().Impl, addrs, cfg.MaxIdle)
	return &Pool{
		driver: driver,
		addrs:  addrs,
		cfg:    cfg,
		raw:    raw,
	}, nil
}

// Raw returns the shared raw client.
func (p *Pool) Raw() kv.IRawClient {
	return p.raw
}

// Info describes the backend driver of the pool.
func (p *Pool) Info() kv.DriverInfo {
	return p.driver.Info()
}

// Get checks out an idle client, or opens a fresh one if the free-list is empty.
func (p *Pool) Get(ctx context.Context) (kv.ITxnClient, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	var c kv.ITxnClient
	if n := len(p.idle); n > 0 {
		c = p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
	}
	p.mu.Unlock()

	if c == nil {
		var err error
		if c, err = p.driver.NewTxnClient(ctx, p.addrs); err != nil {
			return nil, fmt.Errorf("failed to open txn client: %w", err)
		}
		p.created.Add(1)
		log.Debugf("opened txn client #%d", p.created.Load())
	}
	p.inUse.Add(1)
	return c, nil
}

// Put returns a checked out client. The client is closed instead if the pool
// is closed or the free-list is full.
func (p *Pool) Put(c kv.ITxnClient) {
	if c == nil {
		return
	}
	p.inUse.Add(-1)

	p.mu.Lock()
	if !p.closed && len(p.idle) < p.cfg.MaxIdle {
		p.idle = append(p.idle, c)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.dropped.Add(1)
	if err := c.Close(); err != nil {
		log.Warningf("failed to close dropped txn client: %v", err)
	}
}

// Stats returns the current pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	idle := len(p.idle)
	p.mu.Unlock()
	return Stats{
		Idle:    idle,
		InUse:   p.inUse.Load(),
		Created: p.created.Load(),
		Dropped: p.dropped.Load(),
	}
}

// Close closes every idle client and the raw client. Clients that are still
// checked out are closed when they are returned. Close is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var errs []error
	for _, c := range idle {
		p.dropped.Add(1)
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.raw.Close(); err != nil {
		errs = append(errs, err)
	}
	log.Infof("pool closed (%d idle clients dropped)", len(idle))
	return errors.Join(errs...)
}

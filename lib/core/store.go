package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ValentinKolb/dStruct/lib/codec"
	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/ValentinKolb/dStruct/lib/pool"
	"github.com/ValentinKolb/dStruct/lib/txn"
	"github.com/ValentinKolb/dStruct/lib/types"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("core")

// DefaultAddrs is used by Connect when no address is given.
var DefaultAddrs = []string{"127.0.0.1:2379"}

// Config configures a Store.
type Config struct {
	Driver     kv.IDriver      // backend driver, required
	InstanceID uint64          // namespace of all physical keys
	Mode       txn.Mode        // execution of commands outside an explicit transaction
	Retry      txn.RetryPolicy // zero fields fall back to txn.DefaultRetryPolicy
	Pool       pool.Config
}

// connection is the state that exists between Connect and Close.
type connection struct {
	addrs   []string
	pool    *pool.Pool
	txns    *txn.Manager
	metrics *metrics.Set
}

// Store executes commands against one backend.
type Store struct {
	cfg   Config
	codec *codec.Codec

	strings *types.Strings
	hashes  *types.Hashes
	sets    *types.Sets
	lists   *types.Lists

	// mu is held for reading while a command runs, Connect and Close take it exclusively.
	mu   sync.RWMutex
	conn *connection
}

// New creates a disconnected store.
func New(cfg Config) *Store {
	if cfg.Pool.MaxIdle == 0 {
		cfg.Pool = pool.DefaultConfig
	}
	c := codec.New(cfg.InstanceID)
	return &Store{
		cfg:     cfg,
		codec:   c,
		strings: types.NewStrings(c, cfg.Retry),
		hashes:  types.NewHashes(c, cfg.Retry),
		sets:    types.NewSets(c, cfg.Retry),
		lists:   types.NewLists(c, cfg.Retry),
	}
}

// Config returns the configuration of s.
func (s *Store) Config() Config { return s.cfg }

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// Connect opens the backend at addrs. Without addrs DefaultAddrs is used.
func (s *Store) Connect(ctx context.Context, addrs ...string) error {
	if s.cfg.Driver == nil {
		return fmt.Errorf("%w: no backend driver configured", ErrArgument)
	}
	if len(addrs) == 0 {
		addrs = DefaultAddrs
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return ErrAlreadyConnected
	}

	p, err := pool.New(ctx, s.cfg.Driver, addrs, s.cfg.Pool)
	if err != nil {
		return txn.Classify(err)
	}
	conn := &connection{
		addrs:   append([]string(nil), addrs...),
		pool:    p,
		txns:    txn.NewManager(p, s.cfg.Mode, s.cfg.Retry),
		metrics: metrics.NewSet(),
	}
	conn.metrics.NewGauge("dstruct_pool_idle_clients", func() float64 { return float64(p.Stats().Idle) })
	conn.metrics.NewGauge("dstruct_pool_clients_in_use", func() float64 { return float64(p.Stats().InUse) })
	conn.metrics.NewGauge("dstruct_pool_clients_created", func() float64 { return float64(p.Stats().Created) })
	conn.metrics.NewGauge("dstruct_open_transactions", func() float64 { return float64(conn.txns.Sessions()) })
	s.conn = conn

	log.Infof("connected to %s backend at %s (instance %d, mode %s)",
		s.cfg.Driver.Info().Impl, strings.Join(addrs, ","), s.cfg.InstanceID, s.cfg.Mode)
	return nil
}

// Close rolls back every open transaction and closes the backend connection.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	conn := s.conn
	s.conn = nil

	err := errors.Join(conn.txns.Close(ctx), conn.pool.Close())
	log.Infof("closed connection to %s", strings.Join(conn.addrs, ","))
	return err
}

// Connected reports whether Connect succeeded and Close was not called yet.
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil
}

// with runs fn on the current connection while holding the read lock.
func (s *Store) with(fn func(c *connection) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	return fn(s.conn)
}

// --------------------------------------------------------------------------
// Sessions
// --------------------------------------------------------------------------

// Begin starts an explicit transaction for sid.
func (s *Store) Begin(ctx context.Context, sid txn.SessionID) error {
	return s.with(func(c *connection) error { return c.txns.Begin(ctx, sid) })
}

// Commit commits the explicit transaction of sid.
func (s *Store) Commit(ctx context.Context, sid txn.SessionID) error {
	return s.with(func(c *connection) error { return c.txns.Commit(ctx, sid) })
}

// Rollback discards the explicit transaction of sid.
func (s *Store) Rollback(ctx context.Context, sid txn.SessionID) error {
	return s.with(func(c *connection) error { return c.txns.Rollback(ctx, sid) })
}

// Disconnect releases everything held for sid. Front ends call it when the
// client of a session goes away.
func (s *Store) Disconnect(ctx context.Context, sid txn.SessionID) {
	_ = s.with(func(c *connection) error {
		c.txns.Discard(ctx, sid)
		return nil
	})
}

// Run executes fn for sid, see txn.Manager.Run.
func (s *Store) Run(ctx context.Context, sid txn.SessionID, fn func(h kv.IReadWriter) error) error {
	return s.with(func(c *connection) error { return c.txns.Run(ctx, sid, fn) })
}

// --------------------------------------------------------------------------
// Engines
// --------------------------------------------------------------------------

func (s *Store) Strings() *types.Strings { return s.strings }
func (s *Store) Hashes() *types.Hashes   { return s.hashes }
func (s *Store) Sets() *types.Sets       { return s.sets }
func (s *Store) Lists() *types.Lists     { return s.lists }
func (s *Store) Codec() *codec.Codec     { return s.codec }

// --------------------------------------------------------------------------
// Status
// --------------------------------------------------------------------------

// StatusInfo is a snapshot of the store state.
type StatusInfo struct {
	InstanceID uint64        `json:"instanceId"`
	Backend    kv.DriverInfo `json:"backend"`
	Mode       string        `json:"mode"`
	Connected  bool          `json:"connected"`
	Addrs      []string      `json:"addrs,omitempty"`
	OpenTxns   int           `json:"openTxns"`
	Pool       pool.Stats    `json:"pool"`
	Requests   uint64        `json:"requests"`
	Errors     uint64        `json:"errors"`
}

// Status returns the current state of s.
func (s *Store) Status() StatusInfo {
	info := StatusInfo{
		InstanceID: s.cfg.InstanceID,
		Mode:       s.cfg.Mode.String(),
		Requests:   requestsTotal.Get(),
		Errors:     errorsTotal.Get(),
	}
	if s.cfg.Driver != nil {
		info.Backend = s.cfg.Driver.Info()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c := s.conn; c != nil {
		info.Connected = true
		info.Addrs = c.addrs
		info.OpenTxns = c.txns.Sessions()
		info.Pool = c.pool.Stats()
	}
	return info
}

// WriteMetrics writes all metrics in the Prometheus text format.
func (s *Store) WriteMetrics(w io.Writer) {
	metrics.WritePrometheus(w, false)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn != nil {
		s.conn.metrics.WritePrometheus(w)
	}
}

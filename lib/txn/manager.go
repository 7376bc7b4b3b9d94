package txn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/ValentinKolb/dStruct/lib/pool"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("txn")

// SessionID identifies a client session.
type SessionID uint64

func (s SessionID) String() string {
	return fmt.Sprintf("%016x", uint64(s))
}

// Mode selects how operations outside an explicit transaction are executed.
type Mode uint8

const (
	ModeTxn Mode = iota // every operation runs in its own transaction
	ModeRaw             // operations run on the raw client
)

func (m Mode) String() string {
	switch m {
	case ModeTxn:
		return "txn"
	case ModeRaw:
		return "raw"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// ParseMode parses "txn" or "raw".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "txn", "":
		return ModeTxn, nil
	case "raw":
		return ModeRaw, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (expected txn or raw)", s)
	}
}

// session is an explicit transaction together with the client it was started on.
type session struct {
	client kv.ITxnClient
	txn    kv.ITxn
}

// Manager owns the explicit transactions of all sessions.
type Manager struct {
	pool     *pool.Pool
	mode     Mode
	policy   RetryPolicy
	opts     kv.TxnOptions
	raw      kv.IReadWriter
	sessions *xsync.MapOf[SessionID, *session]
}

// NewManager creates a manager that takes its clients from p.
func NewManager(p *pool.Pool, mode Mode, policy RetryPolicy) *Manager {
	return &Manager{
		pool:     p,
		mode:     mode,
		policy:   policy,
		opts:     kv.DefaultTxnOptions,
		raw:      Retrying(p.Raw(), policy),
		sessions: xsync.NewMapOf[SessionID, *session](),
	}
}

// Mode returns the execution mode for implicit operations.
func (m *Manager) Mode() Mode { return m.mode }

// Policy returns the retry policy used for every backend call.
func (m *Manager) Policy() RetryPolicy { return m.policy }

// Raw returns the retrying raw client.
func (m *Manager) Raw() kv.IReadWriter { return m.raw }

// Sessions returns the number of open explicit transactions.
func (m *Manager) Sessions() int { return m.sessions.Size() }

// HasTxn reports whether sid has an explicit transaction.
func (m *Manager) HasTxn(sid SessionID) bool {
	_, ok := m.sessions.Load(sid)
	return ok
}

// begin checks out a client and starts a transaction on it.
func (m *Manager) begin(ctx context.Context) (*session, error) {
	c, err := m.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	txn, err := c.Begin(ctx, m.opts)
	if err != nil {
		m.pool.Put(c)
		return nil, err
	}
	return &session{client: c, txn: txn}, nil
}

// finish commits or rolls back s and returns its client to the pool.
func (m *Manager) finish(ctx context.Context, s *session, commit bool) error {
	defer m.pool.Put(s.client)
	if commit {
		return s.txn.Commit(ctx)
	}
	return s.txn.Rollback(ctx)
}

// Begin starts an explicit transaction for sid.
func (m *Manager) Begin(ctx context.Context, sid SessionID) error {
	if m.HasTxn(sid) {
		return ErrTxnAlreadyActive
	}
	var s *session
	err := m.policy.Do(ctx, func(ctx context.Context) (err error) {
		s, err = m.begin(ctx)
		return err
	})
	if err != nil {
		return Classify(err)
	}
	if _, loaded := m.sessions.LoadOrStore(sid, s); loaded {
		_ = m.finish(ctx, s, false)
		return ErrTxnAlreadyActive
	}
	log.Debugf("session %s: began txn %s", sid, s.txn.ID())
	return nil
}

// Commit commits the explicit transaction of sid.
func (m *Manager) Commit(ctx context.Context, sid SessionID) error {
	s, ok := m.sessions.LoadAndDelete(sid)
	if !ok {
		return ErrNoActiveTxn
	}
	if err := m.finish(ctx, s, true); err != nil {
		log.Debugf("session %s: commit of txn %s failed: %v", sid, s.txn.ID(), err)
		return Classify(err)
	}
	log.Debugf("session %s: committed txn %s", sid, s.txn.ID())
	return nil
}

// Rollback discards the explicit transaction of sid.
func (m *Manager) Rollback(ctx context.Context, sid SessionID) error {
	s, ok := m.sessions.LoadAndDelete(sid)
	if !ok {
		return ErrNoActiveTxn
	}
	if err := m.finish(ctx, s, false); err != nil {
		return Classify(err)
	}
	log.Debugf("session %s: rolled back txn %s", sid, s.txn.ID())
	return nil
}

// Discard rolls back the transaction of sid if there is one. Used when a connection goes away.
func (m *Manager) Discard(ctx context.Context, sid SessionID) {
	if err := m.Rollback(ctx, sid); err != nil && !errors.Is(err, ErrNoActiveTxn) {
		log.Warningf("session %s: rollback on disconnect failed: %v", sid, err)
	}
}

// Close rolls back every open transaction.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	m.sessions.Range(func(sid SessionID, _ *session) bool {
		if err := m.Rollback(ctx, sid); err != nil && !errors.Is(err, ErrNoActiveTxn) {
			errs = append(errs, fmt.Errorf("session %s: %w", sid, err))
		}
		return true
	})
	return errors.Join(errs...)
}

// Run executes fn for sid.
//
// Inside an explicit transaction fn runs on that transaction. Otherwise fn runs
// on the raw client in raw mode, or in a private transaction in txn mode. A
// private transaction is committed once fn returns and replayed from scratch
// if the commit fails with a transient error. fn must therefore not keep
// state between calls.
func (m *Manager) Run(ctx context.Context, sid SessionID, fn func(h kv.IReadWriter) error) error {
	if s, ok := m.sessions.Load(sid); ok {
		return fn(Retrying(s.txn, m.policy))
	}
	if m.mode == ModeRaw {
		return fn(m.raw)
	}
	return m.policy.Do(ctx, func(ctx context.Context) error {
		s, err := m.begin(ctx)
		if err != nil {
			return classifyFatal(err)
		}
		// errors of fn are already classified by the retrying handle
		if err := fn(Retrying(s.txn, m.policy)); err != nil {
			if rerr := m.finish(ctx, s, false); rerr != nil {
				log.Warningf("rollback of txn %s failed: %v", s.txn.ID(), rerr)
			}
			return err
		}
		if err := m.finish(ctx, s, true); err != nil {
			log.Debugf("implicit txn %s failed to commit: %v", s.txn.ID(), err)
			return classifyFatal(err)
		}
		return nil
	})
}

// classifyFatal classifies err unless it is transient and thus still retried.
func classifyFatal(err error) error {
	if kv.IsTransient(err) {
		return err
	}
	return Classify(err)
}

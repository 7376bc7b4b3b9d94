package raftkv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/ValentinKolb/dStruct/lib/kv/raftkv/internal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

var (
	retries = 5
	log     = logger.GetLogger("raftkv")
)

// INodeHost is the subset of *dragonboat.NodeHost used by the driver.
type INodeHost interface {
	SyncPropose(ctx context.Context, session *client.Session, cmd []byte) (sm.Result, error)
	SyncRead(ctx context.Context, shardID uint64, query interface{}) (interface{}, error)
	GetNoOPSession(shardID uint64) *client.Session
}

// Driver talks to one raft shard through a local node host.
// Backend addresses passed to the client constructors are ignored.
type Driver struct {
	nh      INodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// NewDriver creates a driver for shardID. timeout bounds every single proposal or read.
func NewDriver(nh INodeHost, shardID uint64, timeout time.Duration) *Driver {
	return &Driver{
		nh:      nh,
		shardID: shardID,
		cs:      nh.GetNoOPSession(shardID),
		timeout: timeout,
	}
}

func (d *Driver) Info() kv.DriverInfo {
	return kv.DriverInfo{Impl: kv.ImplRaft, Features: kv.FeatureReplicated | kv.FeaturePersistent}
}

func (d *Driver) NewRawClient(_ context.Context, _ []string) (kv.IRawClient, error) {
	return &rawClient{d: d}, nil
}

func (d *Driver) NewTxnClient(_ context.Context, _ []string) (kv.ITxnClient, error) {
	return &txnClient{d: d}, nil
}

// --------------------------------------------------------------------------
// Internal write and read operations
// --------------------------------------------------------------------------

// mapError classifies dragonboat errors. Errors that go away once the shard
// has a leader again are transient.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, dragonboat.ErrSystemBusy),
		errors.Is(err, dragonboat.ErrTimeout),
		errors.Is(err, dragonboat.ErrShardNotReady),
		errors.Is(err, dragonboat.ErrAborted):
		return kv.Transient(err)
	default:
		return kv.Fatal(err)
	}
}

// propose sends a command via SyncPropose and returns the result code of the state machine.
// System busy errors are retried up to 5 times.
func (d *Driver) propose(ctx context.Context, cmd internal.Command) (internal.RetCode, error) {
	data := cmd.Serialize()
	for i := 0; i < retries; i++ {
		pctx, cancel := context.WithTimeout(ctx, d.timeout)
		res, err := d.nh.SyncPropose(pctx, d.cs, data)
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: system busy, retrying (%d/%d)...", i+1, retries)
			if err := sleep(ctx, d.timeout/10); err != nil {
				return 0, err
			}
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			return 0, mapError(err)
		}

		switch code := internal.RetCode(res.Value); code {
		case internal.RetCSuccess, internal.RetCNotSwapped:
			return code, nil
		case internal.RetCConflict:
			return code, fmt.Errorf("%w: %s", kv.ErrWriteConflict, res.Data)
		default:
			return code, kv.Fatal(fmt.Errorf("%s %s: %s", cmd.Type, code, res.Data))
		}
	}
	return 0, kv.Transient(fmt.Errorf("SyncPropose: %w", dragonboat.ErrSystemBusy))
}

// write proposes a command whose only outcome is success or failure.
func (d *Driver) write(ctx context.Context, cmd internal.Command) error {
	_, err := d.propose(ctx, cmd)
	return err
}

// read queries the state machine with SyncRead and converts the response into R.
// System busy errors are retried up to 5 times.
func read[R any](ctx context.Context, d *Driver, q internal.Query) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {
		rctx, cancel := context.WithTimeout(ctx, d.timeout)
		res, err := d.nh.SyncRead(rctx, d.shardID, q)
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: system busy, retrying (%d/%d)...", i+1, retries)
			if err := sleep(ctx, d.timeout/10); err != nil {
				return zero, err
			}
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, ctxErr
			}
			return zero, mapError(err)
		}

		casted, ok := res.(R)
		if !ok {
			return zero, kv.Fatal(fmt.Errorf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, kv.Transient(fmt.Errorf("SyncRead: %w", dragonboat.ErrSystemBusy))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Driver) version(ctx context.Context) (uint64, error) {
	return read[uint64](ctx, d, internal.Query{Type: internal.QueryTVersion})
}

// --------------------------------------------------------------------------
// Raw Client
// --------------------------------------------------------------------------

type rawClient struct {
	d *Driver
}

func (c *rawClient) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	res, err := read[internal.QueryResult](ctx, c.d, internal.Query{Type: internal.QueryTGet, Key: key})
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Found, nil
}

func (c *rawClient) BatchGet(ctx context.Context, keys [][]byte) ([][]byte, error) {
	return read[[][]byte](ctx, c.d, internal.Query{Type: internal.QueryTBatchGet, Keys: keys})
}

func (c *rawClient) Put(ctx context.Context, key, value []byte) error {
	return c.d.write(ctx, internal.Command{Type: internal.CommandTPut, Key: key, Value: value})
}

func (c *rawClient) BatchPut(ctx context.Context, pairs []kv.KvPair) error {
	if len(pairs) == 0 {
		return ctx.Err()
	}
	muts := make([]kv.Mutation, len(pairs))
	for i, p := range pairs {
		muts[i] = kv.Mutation{Op: kv.OpPut, Key: p.Key, Value: p.Value}
	}
	return c.d.write(ctx, internal.Command{Type: internal.CommandTBatchPut, Mutations: muts})
}

func (c *rawClient) Delete(ctx context.Context, key []byte) error {
	return c.d.write(ctx, internal.Command{Type: internal.CommandTDelete, Key: key})
}

func (c *rawClient) BatchDelete(ctx context.Context, keys [][]byte) error {
	if len(keys) == 0 {
		return ctx.Err()
	}
	muts := make([]kv.Mutation, len(keys))
	for i, k := range keys {
		muts[i] = kv.Mutation{Op: kv.OpDelete, Key: k}
	}
	return c.d.write(ctx, internal.Command{Type: internal.CommandTBatchDelete, Mutations: muts})
}

func (c *rawClient) DeleteRange(ctx context.Context, start, end []byte) error {
	return c.d.write(ctx, internal.Command{Type: internal.CommandTDeleteRange, Key: start, End: end})
}

func (c *rawClient) Scan(ctx context.Context, start, end []byte, limit int) ([]kv.KvPair, error) {
	return read[internal.ScanResult](ctx, c.d, internal.Query{Type: internal.QueryTScan, Key: start, End: end, Limit: limit})
}

func (c *rawClient) CompareAndSwap(ctx context.Context, key, prev []byte, prevExists bool, next []byte) (bool, error) {
	code, err := c.d.propose(ctx, internal.Command{
		Type:       internal.CommandTCAS,
		Key:        key,
		Prev:       prev,
		PrevExists: prevExists,
		Value:      next,
	})
	if err != nil {
		return false, err
	}
	return code == internal.RetCSuccess, nil
}

func (c *rawClient) CompareAndDelete(ctx context.Context, key, prev []byte) (bool, error) {
	code, err := c.d.propose(ctx, internal.Command{Type: internal.CommandTCAD, Key: key, Prev: prev})
	if err != nil {
		return false, err
	}
	return code == internal.RetCSuccess, nil
}

func (c *rawClient) Close() error { return nil }

// --------------------------------------------------------------------------
// Transactional Client
// --------------------------------------------------------------------------

type txnClient struct {
	d *Driver
}

// Begin starts a buffered transaction at the current write index of the shard.
// Raft transactions are always optimistic, the options are ignored.
func (c *txnClient) Begin(ctx context.Context, _ kv.TxnOptions) (kv.ITxn, error) {
	startIdx, err := c.d.version(ctx)
	if err != nil {
		return nil, err
	}
	commit := func(ctx context.Context, startIdx uint64, muts []kv.Mutation) error {
		return c.d.write(ctx, internal.Command{Type: internal.CommandTCommitTxn, StartIdx: startIdx, Mutations: muts})
	}
	return kv.NewBufferedTxn(startIdx, &rawClient{d: c.d}, commit), nil
}

func (c *txnClient) Close() error { return nil }

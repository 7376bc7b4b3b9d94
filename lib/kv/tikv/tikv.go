package tikv

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/tikv/client-go/v2/config"
	tikverr "github.com/tikv/client-go/v2/error"
	"github.com/tikv/client-go/v2/rawkv"
	"github.com/tikv/client-go/v2/txnkv"
)

var log = logger.GetLogger("tikv")

// valueHeader prefixes every stored value.
const valueHeader byte = 'v'

// tombstoneHeader marks a raw value removed by CompareAndDelete. Raw CAS
// cannot delete, so the key keeps this one byte value until it is
// overwritten or removed by Delete or DeleteRange.
const tombstoneHeader byte = 'd'

var tombstone = []byte{tombstoneHeader}

// maxRawScan is the scan limit of a single rawkv request.
const maxRawScan = 10240

// Driver creates TiKV clients for a list of PD endpoints.
type Driver struct{}

// NewDriver creates a TiKV driver.
func NewDriver() kv.IDriver {
	return &Driver{}
}

func (d *Driver) Info() kv.DriverInfo {
	return kv.DriverInfo{
		Impl:     kv.ImplTiKV,
		Features: kv.FeaturePessimistic | kv.FeatureAsyncCommit | kv.FeatureOnePC | kv.FeaturePersistent | kv.FeatureReplicated,
	}
}

func (d *Driver) NewRawClient(ctx context.Context, addrs []string) (kv.IRawClient, error) {
	c, err := rawkv.NewClient(ctx, addrs, config.Security{})
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to connect raw client to %v: %w", addrs, err))
	}
	c.SetAtomicForCAS(true)
	log.Infof("raw client connected to %v", addrs)
	return &rawClient{c: c}, nil
}

func (d *Driver) NewTxnClient(ctx context.Context, addrs []string) (kv.ITxnClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := txnkv.NewClient(addrs)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to connect txn client to %v: %w", addrs, err))
	}
	log.Infof("txn client connected to %v", addrs)
	return &txnClient{c: c}, nil
}

// --------------------------------------------------------------------------
// Value envelope
// --------------------------------------------------------------------------

func wrap(v []byte) []byte {
	out := make([]byte, 1+len(v))
	out[0] = valueHeader
	copy(out[1:], v)
	return out
}

// unwrap strips the header. Values written by other programs are returned as they are.
func unwrap(v []byte) []byte {
	if len(v) > 0 && v[0] == valueHeader {
		return v[1:]
	}
	return kv.NonNil(v)
}

func isTombstone(v []byte) bool {
	return len(v) == 1 && v[0] == tombstoneHeader
}
// --------------------------------------------------------------------------
// Error mapping
// --------------------------------------------------------------------------

var transientErrors = []error{
	tikverr.ErrRegionUnavailable,
	tikverr.ErrRegionDataNotReady,
	tikverr.ErrRegionNotInitialized,
	tikverr.ErrTiKVServerBusy,
	tikverr.ErrTiKVServerTimeout,
	tikverr.ErrTiKVStaleCommand,
	tikverr.ErrPDServerTimeout,
	tikverr.ErrLockWaitTimeout,
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case tikverr.IsErrWriteConflict(err):
		return fmt.Errorf("%w: %v", kv.ErrWriteConflict, err)
	}
	for _, t := range transientErrors {
		if errors.Is(err, t) {
			return kv.Transient(err)
		}
	}
	var retryable *tikverr.ErrRetryable
	if errors.As(err, &retryable) {
		return kv.Transient(err)
	}
	return kv.Fatal(err)
}

// --------------------------------------------------------------------------
// Raw Client
// --------------------------------------------------------------------------

type rawClient struct {
	c *rawkv.Client
}

func (r *rawClient) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	v, err := r.c.Get(ctx, key)
	if err != nil {
		return nil, false, mapError(err)
	}
	if v == nil || isTombstone(v) {
		return nil, false, nil
	}
	return unwrap(v), true, nil
}

func (r *rawClient) BatchGet(ctx context.Context, keys [][]byte) ([][]byte, error) {
	values, err := r.c.BatchGet(ctx, keys)
	if err != nil {
		return nil, mapError(err)
	}
	for i, v := range values {
		switch {
		case v == nil:
		case isTombstone(v):
			values[i] = nil
		default:
			values[i] = unwrap(v)
		}
	}
	return values, nil
}

func (r *rawClient) Put(ctx context.Context, key, value []byte) error {
	return mapError(r.c.Put(ctx, key, wrap(value)))
}

func (r *rawClient) BatchPut(ctx context.Context, pairs []kv.KvPair) error {
	if len(pairs) == 0 {
		return nil
	}
	keys := make([][]byte, len(pairs))
	values := make([][]byte, len(pairs))
	for i, p := range pairs {
		keys[i], values[i] = p.Key, wrap(p.Value)
	}
	return mapError(r.c.BatchPut(ctx, keys, values))
}

func (r *rawClient) Delete(ctx context.Context, key []byte) error {
	return mapError(r.c.Delete(ctx, key))
}

func (r *rawClient) BatchDelete(ctx context.Context, keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	return mapError(r.c.BatchDelete(ctx, keys))
}

func (r *rawClient) DeleteRange(ctx context.Context, start, end []byte) error {
	return mapError(r.c.DeleteRange(ctx, start, end))
}

// Scan skips tombstones and keeps requesting pages until limit live pairs
// are found or the range is exhausted.
func (r *rawClient) Scan(ctx context.Context, start, end []byte, limit int) ([]kv.KvPair, error) {
	var pairs []kv.KvPair
	for {
		page := maxRawScan
		if limit > 0 {
			page = min(limit-len(pairs), maxRawScan)
		}
		keys, values, err := r.c.Scan(ctx, start, end, page)
		if err != nil {
			return nil, mapError(err)
		}
		for i := range keys {
			if isTombstone(values[i]) {
				continue
			}
			pairs = append(pairs, kv.KvPair{Key: keys[i], Value: unwrap(values[i])})
		}
		if len(keys) < page || (limit > 0 && len(pairs) >= limit) {
			return pairs, nil
		}
		start = kv.NextKey(keys[len(keys)-1])
	}
}

// CompareAndSwap treats a tombstone like a missing key.
func (r *rawClient) CompareAndSwap(ctx context.Context, key, prev []byte, prevExists bool, next []byte) (bool, error) {
	var expected []byte
	if prevExists {
		expected = wrap(prev)
	}
	cur, swapped, err := r.c.CompareAndSwap(ctx, key, expected, wrap(next))
	if err != nil {
		return false, mapError(err)
	}
	if !swapped && !prevExists && isTombstone(cur) {
		_, swapped, err = r.c.CompareAndSwap(ctx, key, tombstone, wrap(next))
		if err != nil {
			return false, mapError(err)
		}
	}
	return swapped, nil
}

func (r *rawClient) CompareAndDelete(ctx context.Context, key, prev []byte) (bool, error) {
	_, deleted, err := r.c.CompareAndSwap(ctx, key, wrap(prev), tombstone)
	if err != nil {
		return false, mapError(err)
	}
	return deleted, nil
}

func (r *rawClient) Close() error {
	return r.c.Close()
}

// --------------------------------------------------------------------------
// Transactional Client
// --------------------------------------------------------------------------

type txnClient struct {
	c *txnkv.Client
}

func (t *txnClient) Begin(ctx context.Context, opts kv.TxnOptions) (kv.ITxn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx, err := t.c.Begin()
	if err != nil {
		return nil, mapError(err)
	}
	tx.SetPessimistic(opts.Pessimistic)
	tx.SetEnableAsyncCommit(opts.AsyncCommit)
	tx.SetEnable1PC(opts.OnePC)
	return &txn{id: uuid.NewString(), tx: tx, pessimistic: opts.Pessimistic}, nil
}

func (t *txnClient) Close() error {
	return t.c.Close()
}

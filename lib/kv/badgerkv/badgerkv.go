// Package badgerkv implements an embedded, persistent backend on top of
// badger. Raw operations run in short badger transactions, transactions map
// one to one onto badger's optimistic read-write transactions. Badger reports
// conflicts at commit time, those are surfaced as transient errors.
package badgerkv

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/dgraph-io/badger/v4"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("badger")

// batchSize bounds the number of writes per badger transaction for batch operations.
const batchSize = 1000

// Options configures the badger backend.
type Options struct {
	Dir      string // Data directory, ignored if InMemory is set
	InMemory bool   // Keep all data in memory
}

// Driver is a kv.IDriver backed by one badger database.
// All clients created by the driver share the database.
type Driver struct {
	db       *badger.DB
	inMemory bool
}

// Open opens (or creates) the badger database described by opts.
func Open(opts Options) (*Driver, error) {
	var (
		bOpts    badger.Options
		inMemory = opts.InMemory || opts.Dir == ""
	)
	if inMemory {
		bOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bOpts = badger.DefaultOptions(opts.Dir)
	}
	bOpts = bOpts.WithLogger(log)

	db, err := badger.Open(bOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &Driver{db: db, inMemory: inMemory}, nil
}

func (d *Driver) Info() kv.DriverInfo {
	info := kv.DriverInfo{Impl: kv.ImplBadger}
	if !d.inMemory {
		info.Features |= kv.FeaturePersistent
	}
	return info
}

func (d *Driver) NewRawClient(_ context.Context, _ []string) (kv.IRawClient, error) {
	return &rawClient{db: d.db}, nil
}

func (d *Driver) NewTxnClient(_ context.Context, _ []string) (kv.ITxnClient, error) {
	return &txnClient{db: d.db}, nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.db.Close()
}

// --------------------------------------------------------------------------
// Error mapping
// --------------------------------------------------------------------------

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%w: %v", kv.ErrWriteConflict, err)
	case errors.Is(err, badger.ErrBlockedWrites):
		return kv.Transient(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return kv.Fatal(err)
	}
}

// --------------------------------------------------------------------------
// Shared read helpers (used by raw client and transactions)
// --------------------------------------------------------------------------

func get(txn *badger.Txn, key []byte) ([]byte, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return kv.NonNil(v), true, nil
}

func scan(txn *badger.Txn, start, end []byte, limit int) ([]kv.KvPair, error) {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var out []kv.KvPair
	for it.Seek(start); it.Valid(); it.Next() {
		item := it.Item()
		if end != nil && bytes.Compare(item.Key(), end) >= 0 {
			break
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		out = append(out, kv.KvPair{Key: item.KeyCopy(nil), Value: kv.NonNil(v)})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func scanKeys(txn *badger.Txn, start, end []byte, limit int) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(start); it.Valid() && len(keys) < limit; it.Next() {
		k := it.Item().KeyCopy(nil)
		if end != nil && bytes.Compare(k, end) >= 0 {
			break
		}
		keys = append(keys, k)
	}
	return keys
}

func compareAndSwap(txn *badger.Txn, key, prev []byte, prevExists bool, next []byte) (bool, error) {
	cur, found, err := get(txn, key)
	if err != nil {
		return false, err
	}
	if found != prevExists || (found && !bytes.Equal(cur, prev)) {
		return false, nil
	}
	return true, txn.Set(key, kv.NonNil(next))
}

func compareAndDelete(txn *badger.Txn, key, prev []byte) (bool, error) {
	cur, found, err := get(txn, key)
	if err != nil || !found || !bytes.Equal(cur, prev) {
		return false, err
	}
	return true, txn.Delete(key)
}

// --------------------------------------------------------------------------
// Raw Client
// --------------------------------------------------------------------------

type rawClient struct {
	db *badger.DB
}

func (c *rawClient) Get(ctx context.Context, key []byte) (value []byte, found bool, err error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	err = c.db.View(func(txn *badger.Txn) error {
		value, found, err = get(txn, key)
		return err
	})
	return value, found, mapError(err)
}

func (c *rawClient) BatchGet(ctx context.Context, keys [][]byte) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	values := make([][]byte, len(keys))
	err := c.db.View(func(txn *badger.Txn) error {
		for i, k := range keys {
			v, found, err := get(txn, k)
			if err != nil {
				return err
			}
			if found {
				values[i] = v
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return values, nil
}

func (c *rawClient) Put(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, kv.NonNil(value))
	}))
}

func (c *rawClient) BatchPut(ctx context.Context, pairs []kv.KvPair) error {
	for start := 0; start < len(pairs); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := pairs[start:min(start+batchSize, len(pairs))]
		err := c.db.Update(func(txn *badger.Txn) error {
			for _, p := range chunk {
				if err := txn.Set(p.Key, kv.NonNil(p.Value)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (c *rawClient) Delete(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	}))
}

func (c *rawClient) BatchDelete(ctx context.Context, keys [][]byte) error {
	for start := 0; start < len(keys); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := keys[start:min(start+batchSize, len(keys))]
		err := c.db.Update(func(txn *badger.Txn) error {
			for _, k := range chunk {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (c *rawClient) DeleteRange(ctx context.Context, start, end []byte) error {
	for {
		var keys [][]byte
		if err := c.db.View(func(txn *badger.Txn) error {
			keys = scanKeys(txn, start, end, batchSize)
			return nil
		}); err != nil {
			return mapError(err)
		}
		if len(keys) == 0 {
			return nil
		}
		if err := c.BatchDelete(ctx, keys); err != nil {
			return err
		}
		if len(keys) < batchSize {
			return nil
		}
		start = kv.NextKey(keys[len(keys)-1])
	}
}

func (c *rawClient) Scan(ctx context.Context, start, end []byte, limit int) (pairs []kv.KvPair, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err = c.db.View(func(txn *badger.Txn) error {
		pairs, err = scan(txn, start, end, limit)
		return err
	})
	return pairs, mapError(err)
}

func (c *rawClient) CompareAndSwap(ctx context.Context, key, prev []byte, prevExists bool, next []byte) (swapped bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		swapped, err = compareAndSwap(txn, key, prev, prevExists, next)
		return err
	})
	if err != nil {
		return false, mapError(err)
	}
	return swapped, nil
}

func (c *rawClient) CompareAndDelete(ctx context.Context, key, prev []byte) (deleted bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		deleted, err = compareAndDelete(txn, key, prev)
		return err
	})
	if err != nil {
		return false, mapError(err)
	}
	return deleted, nil
}

func (c *rawClient) Close() error { return nil }

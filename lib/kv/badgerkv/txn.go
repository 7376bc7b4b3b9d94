package badgerkv

import (
	"context"
	"sync"

	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type txnClient struct {
	db *badger.DB
}

// Begin starts a read-write badger transaction. Badger transactions are
// always optimistic, so the options are ignored.
func (c *txnClient) Begin(ctx context.Context, _ kv.TxnOptions) (kv.ITxn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &txn{
		id:       uuid.NewString(),
		badgerTx: c.db.NewTransaction(true),
	}, nil
}

func (c *txnClient) Close() error { return nil }

// txn wraps a badger transaction. Badger transactions are not safe for
// concurrent use, every access is guarded by mu.
type txn struct {
	id string

	mu       sync.Mutex
	badgerTx *badger.Txn
	done     bool
}

func (t *txn) ID() string { return t.id }

// with runs fn on the badger transaction unless the transaction is finished.
func (t *txn) with(ctx context.Context, fn func(tx *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return kv.ErrTxnClosed
	}
	return mapError(fn(t.badgerTx))
}

func (t *txn) Get(ctx context.Context, key []byte) (value []byte, found bool, err error) {
	err = t.with(ctx, func(tx *badger.Txn) error {
		value, found, err = get(tx, key)
		return err
	})
	return value, found, err
}

func (t *txn) BatchGet(ctx context.Context, keys [][]byte) ([][]byte, error) {
	values := make([][]byte, len(keys))
	err := t.with(ctx, func(tx *badger.Txn) error {
		for i, k := range keys {
			v, found, err := get(tx, k)
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
		return nil, err
	}
	return values, nil
}

func (t *txn) Put(ctx context.Context, key, value []byte) error {
	return t.with(ctx, func(tx *badger.Txn) error {
		return tx.Set(key, kv.NonNil(value))
	})
}

func (t *txn) BatchPut(ctx context.Context, pairs []kv.KvPair) error {
	return t.with(ctx, func(tx *badger.Txn) error {
		for _, p := range pairs {
			if err := tx.Set(p.Key, kv.NonNil(p.Value)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (t *txn) Delete(ctx context.Context, key []byte) error {
	return t.with(ctx, func(tx *badger.Txn) error {
		return tx.Delete(key)
	})
}

func (t *txn) BatchDelete(ctx context.Context, keys [][]byte) error {
	return t.with(ctx, func(tx *badger.Txn) error {
		for _, k := range keys {
			if err := tx.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (t *txn) DeleteRange(ctx context.Context, start, end []byte) error {
	return t.with(ctx, func(tx *badger.Txn) error {
		for {
			// the iterator must be closed before the keys are deleted
			keys := scanKeys(tx, start, end, batchSize)
			for _, k := range keys {
				if err := tx.Delete(k); err != nil {
					return err
				}
			}
			if len(keys) < batchSize {
				return nil
			}
			start = kv.NextKey(keys[len(keys)-1])
		}
	})
}

func (t *txn) Scan(ctx context.Context, start, end []byte, limit int) (pairs []kv.KvPair, err error) {
	err = t.with(ctx, func(tx *badger.Txn) error {
		pairs, err = scan(tx, start, end, limit)
		return err
	})
	return pairs, err
}

func (t *txn) CompareAndSwap(ctx context.Context, key, prev []byte, prevExists bool, next []byte) (swapped bool, err error) {
	err = t.with(ctx, func(tx *badger.Txn) error {
		swapped, err = compareAndSwap(tx, key, prev, prevExists, next)
		return err
	})
	return swapped, err
}

func (t *txn) CompareAndDelete(ctx context.Context, key, prev []byte) (deleted bool, err error) {
	err = t.with(ctx, func(tx *badger.Txn) error {
		deleted, err = compareAndDelete(tx, key, prev)
		return err
	})
	return deleted, err
}

func (t *txn) Commit(ctx context.Context) error {
	return t.finish(ctx, func(tx *badger.Txn) error {
		return tx.Commit()
	})
}

func (t *txn) Rollback(ctx context.Context) error {
	return t.finish(ctx, func(tx *badger.Txn) error {
		tx.Discard()
		return nil
	})
}

func (t *txn) finish(ctx context.Context, fn func(tx *badger.Txn) error) error {
	err := t.with(ctx, func(tx *badger.Txn) error {
		err := fn(tx)
		// a failed commit leaves the transaction unusable as well
		t.done = true
		tx.Discard()
		return err
	})
	return err
}

package tikv

import (
	"bytes"
	"context"
	"sync"

	"github.com/ValentinKolb/dStruct/lib/kv"
	tikverr "github.com/tikv/client-go/v2/error"
	tikvkv "github.com/tikv/client-go/v2/kv"
	"github.com/tikv/client-go/v2/txnkv/transaction"
)

// txn wraps a KVTxn. KVTxn is not safe for concurrent use, every access is guarded by mu.
type txn struct {
	id          string
	pessimistic bool

	mu   sync.Mutex
	tx   *transaction.KVTxn
	done bool
}

func (t *txn) ID() string { return t.id }

func (t *txn) with(ctx context.Context, fn func(tx *transaction.KVTxn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return kv.ErrTxnClosed
	}
	return mapError(fn(t.tx))
}

// lock takes pessimistic locks on keys. It is a no-op for optimistic transactions.
func (t *txn) lock(ctx context.Context, tx *transaction.KVTxn, keys ...[]byte) error {
	if !t.pessimistic || len(keys) == 0 {
		return nil
	}
	return tx.LockKeysWithWaitTime(ctx, tikvkv.LockAlwaysWait, keys...)
}

func get(ctx context.Context, tx *transaction.KVTxn, key []byte) ([]byte, bool, error) {
	v, err := tx.Get(ctx, key)
	if tikverr.IsErrNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return unwrap(v), true, nil
}

func (t *txn) Get(ctx context.Context, key []byte) (value []byte, found bool, err error) {
	err = t.with(ctx, func(tx *transaction.KVTxn) error {
		value, found, err = get(ctx, tx, key)
		return err
	})
	return value, found, err
}

func (t *txn) BatchGet(ctx context.Context, keys [][]byte) ([][]byte, error) {
	values := make([][]byte, len(keys))
	err := t.with(ctx, func(tx *transaction.KVTxn) error {
		found, err := tx.BatchGet(ctx, keys)
		if err != nil {
			return err
		}
		for i, k := range keys {
			if v, ok := found[string(k)]; ok {
				values[i] = unwrap(v)
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
	return t.with(ctx, func(tx *transaction.KVTxn) error {
		if err := t.lock(ctx, tx, key); err != nil {
			return err
		}
		return tx.Set(key, wrap(value))
	})
}

func (t *txn) BatchPut(ctx context.Context, pairs []kv.KvPair) error {
	return t.with(ctx, func(tx *transaction.KVTxn) error {
		keys := make([][]byte, len(pairs))
		for i, p := range pairs {
			keys[i] = p.Key
		}
		if err := t.lock(ctx, tx, keys...); err != nil {
			return err
		}
		for _, p := range pairs {
			if err := tx.Set(p.Key, wrap(p.Value)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (t *txn) Delete(ctx context.Context, key []byte) error {
	return t.with(ctx, func(tx *transaction.KVTxn) error {
		if err := t.lock(ctx, tx, key); err != nil {
			return err
		}
		return tx.Delete(key)
	})
}

func (t *txn) BatchDelete(ctx context.Context, keys [][]byte) error {
	return t.with(ctx, func(tx *transaction.KVTxn) error {
		if err := t.lock(ctx, tx, keys...); err != nil {
			return err
		}
		for _, k := range keys {
			if err := tx.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func scan(tx *transaction.KVTxn, start, end []byte, limit int) ([]kv.KvPair, error) {
	it, err := tx.Iter(start, end)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []kv.KvPair
	for it.Valid() {
		if end != nil && bytes.Compare(it.Key(), end) >= 0 {
			break
		}
		out = append(out, kv.KvPair{Key: bytes.Clone(it.Key()), Value: bytes.Clone(unwrap(it.Value()))})
		if limit > 0 && len(out) >= limit {
			break
		}
		if err := it.Next(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t *txn) DeleteRange(ctx context.Context, start, end []byte) error {
	return t.with(ctx, func(tx *transaction.KVTxn) error {
		for {
			pairs, err := scan(tx, start, end, kv.MaxScanLimit)
			if err != nil {
				return err
			}
			if len(pairs) == 0 {
				return nil
			}
			keys := make([][]byte, len(pairs))
			for i, p := range pairs {
				keys[i] = p.Key
			}
			if err := t.lock(ctx, tx, keys...); err != nil {
				return err
			}
			for _, k := range keys {
				if err := tx.Delete(k); err != nil {
					return err
				}
			}
			if len(pairs) < kv.MaxScanLimit {
				return nil
			}
			start = kv.NextKey(keys[len(keys)-1])
		}
	})
}

func (t *txn) Scan(ctx context.Context, start, end []byte, limit int) (pairs []kv.KvPair, err error) {
	err = t.with(ctx, func(tx *transaction.KVTxn) error {
		pairs, err = scan(tx, start, end, limit)
		return err
	})
	return pairs, err
}

func (t *txn) CompareAndSwap(ctx context.Context, key, prev []byte, prevExists bool, next []byte) (swapped bool, err error) {
	err = t.with(ctx, func(tx *transaction.KVTxn) error {
		if err := t.lock(ctx, tx, key); err != nil {
			return err
		}
		cur, found, err := get(ctx, tx, key)
		if err != nil {
			return err
		}
		if found != prevExists || (found && !bytes.Equal(cur, prev)) {
			return nil
		}
		swapped = true
		return tx.Set(key, wrap(next))
	})
	return swapped, err
}

func (t *txn) CompareAndDelete(ctx context.Context, key, prev []byte) (deleted bool, err error) {
	err = t.with(ctx, func(tx *transaction.KVTxn) error {
		if err := t.lock(ctx, tx, key); err != nil {
			return err
		}
		cur, found, err := get(ctx, tx, key)
		if err != nil {
			return err
		}
		if !found || !bytes.Equal(cur, prev) {
			return nil
		}
		deleted = true
		return tx.Delete(key)
	})
	return deleted, err
}

func (t *txn) Commit(ctx context.Context) error {
	return t.finish(ctx, func(tx *transaction.KVTxn) error {
		return tx.Commit(ctx)
	})
}

func (t *txn) Rollback(ctx context.Context) error {
	return t.finish(ctx, func(tx *transaction.KVTxn) error {
		return tx.Rollback()
	})
}

func (t *txn) finish(ctx context.Context, fn func(tx *transaction.KVTxn) error) error {
	return t.with(ctx, func(tx *transaction.KVTxn) error {
		t.done = true
		return fn(tx)
	})
}

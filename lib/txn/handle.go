package txn

import (
	"context"

	"github.com/ValentinKolb/dStruct/lib/kv"
)

// retrying wraps every primitive of a handle in the retry policy.
// Errors that survive the policy are classified.
type retrying struct {
	h      kv.IReadWriter
	policy RetryPolicy
}

// Retrying returns h with every call retried under policy.
func Retrying(h kv.IReadWriter, policy RetryPolicy) kv.IReadWriter {
	if r, ok := h.(*retrying); ok {
		h = r.h
	}
	return &retrying{h: h, policy: policy}
}

func (r *retrying) do(ctx context.Context, fn func(ctx context.Context) error) error {
	return Classify(r.policy.Do(ctx, fn))
}

func (r *retrying) Get(ctx context.Context, key []byte) (value []byte, found bool, err error) {
	err = r.do(ctx, func(ctx context.Context) error {
		value, found, err = r.h.Get(ctx, key)
		return err
	})
	return value, found, err
}

func (r *retrying) BatchGet(ctx context.Context, keys [][]byte) (values [][]byte, err error) {
	err = r.do(ctx, func(ctx context.Context) error {
		values, err = r.h.BatchGet(ctx, keys)
		return err
	})
	return values, err
}

func (r *retrying) Put(ctx context.Context, key, value []byte) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.h.Put(ctx, key, value)
	})
}

func (r *retrying) BatchPut(ctx context.Context, pairs []kv.KvPair) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.h.BatchPut(ctx, pairs)
	})
}

func (r *retrying) Delete(ctx context.Context, key []byte) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.h.Delete(ctx, key)
	})
}

func (r *retrying) BatchDelete(ctx context.Context, keys [][]byte) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.h.BatchDelete(ctx, keys)
	})
}

func (r *retrying) DeleteRange(ctx context.Context, start, end []byte) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.h.DeleteRange(ctx, start, end)
	})
}

func (r *retrying) Scan(ctx context.Context, start, end []byte, limit int) (pairs []kv.KvPair, err error) {
	err = r.do(ctx, func(ctx context.Context) error {
		pairs, err = r.h.Scan(ctx, start, end, limit)
		return err
	})
	return pairs, err
}

func (r *retrying) CompareAndSwap(ctx context.Context, key, prev []byte, prevExists bool, next []byte) (swapped bool, err error) {
	err = r.do(ctx, func(ctx context.Context) error {
		swapped, err = r.h.CompareAndSwap(ctx, key, prev, prevExists, next)
		return err
	})
	return swapped, err
}

func (r *retrying) CompareAndDelete(ctx context.Context, key, prev []byte) (deleted bool, err error) {
	err = r.do(ctx, func(ctx context.Context) error {
		deleted, err = r.h.CompareAndDelete(ctx, key, prev)
		return err
	})
	return deleted, err
}

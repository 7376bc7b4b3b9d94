package types

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/ValentinKolb/dStruct/lib/codec"
	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/ValentinKolb/dStruct/lib/txn"
)

// Strings implements plain key value operations and atomic counters.
type Strings struct {
	engine
}

// NewStrings creates the string engine.
func NewStrings(c *codec.Codec, policy txn.RetryPolicy) *Strings {
	return &Strings{engine{codec: c, policy: policy}}
}

func (s *Strings) keys(keys []string) [][]byte {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = s.codec.Encode(codec.String, k)
	}
	return out
}

// Get returns the value of key.
func (s *Strings) Get(ctx context.Context, h kv.IReadWriter, key string) ([]byte, bool, error) {
	return h.Get(ctx, s.codec.Encode(codec.String, key))
}

// Put sets key to value.
func (s *Strings) Put(ctx context.Context, h kv.IReadWriter, key string, value []byte) error {
	return h.Put(ctx, s.codec.Encode(codec.String, key), value)
}

// SetNX sets key to value only if key does not exist. It reports whether the value was set.
func (s *Strings) SetNX(ctx context.Context, h kv.IReadWriter, key string, value []byte) (bool, error) {
	return h.CompareAndSwap(ctx, s.codec.Encode(codec.String, key), nil, false, value)
}

// Del deletes keys and returns how many of them existed.
func (s *Strings) Del(ctx context.Context, h kv.IReadWriter, keys ...string) (int64, error) {
	return deleteExisting(ctx, h, s.keys(keys))
}

// Exists returns how many of keys exist. Keys given twice are counted twice.
func (s *Strings) Exists(ctx context.Context, h kv.IReadWriter, keys ...string) (int64, error) {
	values, err := h.BatchGet(ctx, s.keys(keys))
	if err != nil {
		return 0, err
	}
	var n int64
	for _, v := range values {
		if v != nil {
			n++
		}
	}
	return n, nil
}

// BatchGet returns the values of keys in input order, nil for missing keys.
func (s *Strings) BatchGet(ctx context.Context, h kv.IReadWriter, keys ...string) ([][]byte, error) {
	return h.BatchGet(ctx, s.keys(keys))
}

// BatchPut writes all pairs. Outside a transaction this is not atomic.
func (s *Strings) BatchPut(ctx context.Context, h kv.IReadWriter, pairs []Pair) error {
	kvs := make([]kv.KvPair, len(pairs))
	for i, p := range pairs {
		kvs[i] = kv.KvPair{Key: s.codec.Encode(codec.String, p.Key), Value: p.Value}
	}
	return h.BatchPut(ctx, kvs)
}

// Scan returns up to limit keys in [start, end) with their values.
// A nil end scans to the end of the string key space.
func (s *Strings) Scan(ctx context.Context, h kv.IReadWriter, start string, end *string, limit int) ([]Pair, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: scan limit must be positive, got %d", ErrArgument, limit)
	}
	upper := s.codec.EncodeEnd(codec.String)
	if end != nil {
		upper = s.codec.Encode(codec.String, *end)
	}

	var (
		out     []Pair
		decErr  error
		startAt = s.codec.Encode(codec.String, start)
	)
	err := scanAll(ctx, h, startAt, upper, limit, func(p kv.KvPair) bool {
		k, err := s.codec.Decode(codec.String, p.Key)
		if err != nil {
			decErr = err
			return false
		}
		out = append(out, Pair{Key: k, Value: p.Value})
		return true
	})
	if err != nil {
		return nil, err
	}
	if decErr != nil {
		return nil, decErr
	}
	return out, nil
}

// IncrBy adds step to the integer stored at key and returns the new value.
// A missing key counts as 0. A value that is not a base 10 int64 fails with
// ErrKeyDecode, an overflow with ErrArgument. Neither is retried.
func (s *Strings) IncrBy(ctx context.Context, h kv.IReadWriter, key string, step int64) (int64, error) {
	ekey := s.codec.Encode(codec.String, key)
	var next int64
	err := s.policy.DoCAS(ctx, func(ctx context.Context) (bool, error) {
		prev, found, err := h.Get(ctx, ekey)
		if err != nil {
			return false, err
		}
		var cur int64
		if found {
			if cur, err = strconv.ParseInt(string(prev), 10, 64); err != nil {
				return false, fmt.Errorf("%w: value of %q is not an integer", ErrKeyDecode, key)
			}
		}
		if (step > 0 && cur > math.MaxInt64-step) || (step < 0 && cur < math.MinInt64-step) {
			return false, fmt.Errorf("%w: increment of %q by %d overflows", ErrArgument, key, step)
		}
		next = cur + step
		return h.CompareAndSwap(ctx, ekey, prev, found, []byte(strconv.FormatInt(next, 10)))
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// DecrBy subtracts step from the integer stored at key.
func (s *Strings) DecrBy(ctx context.Context, h kv.IReadWriter, key string, step int64) (int64, error) {
	if step == math.MinInt64 {
		return 0, fmt.Errorf("%w: decrement %d overflows", ErrArgument, step)
	}
	return s.IncrBy(ctx, h, key, -step)
}

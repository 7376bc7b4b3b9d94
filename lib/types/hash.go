package types

import (
	"context"

	"github.com/ValentinKolb/dStruct/lib/codec"
	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/ValentinKolb/dStruct/lib/txn"
)

// Hashes stores every field of a hash under its own sub key.
type Hashes struct {
	engine
}

// NewHashes creates the hash engine.
func NewHashes(c *codec.Codec, policy txn.RetryPolicy) *Hashes {
	return &Hashes{engine{codec: c, policy: policy}}
}

func (e *Hashes) field(key, field string) []byte {
	return e.codec.EncodeSub(codec.Hash, key, []byte(field))
}

func (e *Hashes) fields(key string, fields []string) [][]byte {
	out := make([][]byte, len(fields))
	for i, f := range fields {
		out[i] = e.field(key, f)
	}
	return out
}

// HSet sets one field. It always reports 1.
func (e *Hashes) HSet(ctx context.Context, h kv.IReadWriter, key, field string, value []byte) (int64, error) {
	if err := h.Put(ctx, e.field(key, field), value); err != nil {
		return 0, err
	}
	return 1, nil
}

// HMSet sets several fields at once.
func (e *Hashes) HMSet(ctx context.Context, h kv.IReadWriter, key string, pairs []Pair) error {
	kvs := make([]kv.KvPair, len(pairs))
	for i, p := range pairs {
		kvs[i] = kv.KvPair{Key: e.field(key, p.Key), Value: p.Value}
	}
	return h.BatchPut(ctx, kvs)
}

// HGet returns the value of a field.
func (e *Hashes) HGet(ctx context.Context, h kv.IReadWriter, key, field string) ([]byte, bool, error) {
	return h.Get(ctx, e.field(key, field))
}

// HMGet returns the values of fields in input order, nil for missing fields.
func (e *Hashes) HMGet(ctx context.Context, h kv.IReadWriter, key string, fields ...string) ([][]byte, error) {
	return h.BatchGet(ctx, e.fields(key, fields))
}

// HExists reports whether a field exists.
func (e *Hashes) HExists(ctx context.Context, h kv.IReadWriter, key, field string) (bool, error) {
	_, found, err := h.Get(ctx, e.field(key, field))
	return found, err
}

// HDel deletes fields and returns how many of them existed.
func (e *Hashes) HDel(ctx context.Context, h kv.IReadWriter, key string, fields ...string) (int64, error) {
	return deleteExisting(ctx, h, e.fields(key, fields))
}

// scan calls fn with every decoded field of the hash in key order.
func (e *Hashes) scan(ctx context.Context, h kv.IReadWriter, key string, fn func(field []byte, value []byte)) error {
	var decErr error
	err := scanAll(ctx, h, e.codec.EncodeRangeStart(codec.Hash, key), e.codec.EncodeRangeEnd(codec.Hash, key), 0, func(p kv.KvPair) bool {
		f, err := e.codec.DecodeSub(codec.Hash, key, p.Key)
		if err != nil {
			decErr = err
			return false
		}
		fn(f, p.Value)
		return true
	})
	if err != nil {
		return err
	}
	return decErr
}

// HGetAll returns every field with its value.
func (e *Hashes) HGetAll(ctx context.Context, h kv.IReadWriter, key string) ([]Pair, error) {
	var out []Pair
	err := e.scan(ctx, h, key, func(f, v []byte) {
		out = append(out, Pair{Key: string(f), Value: v})
	})
	return out, err
}

// HKeys returns every field name.
func (e *Hashes) HKeys(ctx context.Context, h kv.IReadWriter, key string) ([][]byte, error) {
	var out [][]byte
	err := e.scan(ctx, h, key, func(f, _ []byte) {
		out = append(out, f)
	})
	return out, err
}

// HVals returns every field value.
func (e *Hashes) HVals(ctx context.Context, h kv.IReadWriter, key string) ([][]byte, error) {
	var out [][]byte
	err := e.scan(ctx, h, key, func(_, v []byte) {
		out = append(out, v)
	})
	return out, err
}

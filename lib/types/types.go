package types

import (
	"context"
	"errors"

	"github.com/ValentinKolb/dStruct/lib/codec"
	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/ValentinKolb/dStruct/lib/txn"
)

var (
	// ErrKeyDecode is returned when a stored value or key cannot be decoded.
	ErrKeyDecode = codec.ErrDecode
	// ErrArgument is returned for invalid arguments, e.g. an overflowing increment.
	ErrArgument = errors.New("invalid argument")
)

// Pair is a decoded key (or field) with its value.
type Pair struct {
	Key   string
	Value []byte
}

// engine holds what every data type engine needs.
type engine struct {
	codec  *codec.Codec
	policy txn.RetryPolicy
}

// scanAll pages through [start, end) and calls fn for every pair until limit
// pairs were seen. A limit of 0 scans the whole range. fn returns false to stop early.
func scanAll(ctx context.Context, h kv.IReadWriter, start, end []byte, limit int, fn func(p kv.KvPair) bool) error {
	seen := 0
	for {
		page := kv.MaxScanLimit
		if limit > 0 && limit-seen < page {
			page = limit - seen
		}
		pairs, err := h.Scan(ctx, start, end, page)
		if err != nil {
			return err
		}
		for _, p := range pairs {
			seen++
			if !fn(p) {
				return nil
			}
		}
		if len(pairs) < page || (limit > 0 && seen >= limit) {
			return nil
		}
		start = kv.NextKey(pairs[len(pairs)-1].Key)
	}
}

// countExisting returns which of keys exist.
func countExisting(ctx context.Context, h kv.IReadWriter, keys [][]byte) ([][]byte, error) {
	values, err := h.BatchGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	var existing [][]byte
	for i, v := range values {
		if v != nil {
			existing = append(existing, keys[i])
		}
	}
	return existing, nil
}

// deleteExisting deletes the keys that exist and returns how many did.
func deleteExisting(ctx context.Context, h kv.IReadWriter, keys [][]byte) (int64, error) {
	existing, err := countExisting(ctx, h, keys)
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		return 0, nil
	}
	if err := h.BatchDelete(ctx, existing); err != nil {
		return 0, err
	}
	return int64(len(existing)), nil
}

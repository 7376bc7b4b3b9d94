package types

import (
	"context"

	"github.com/ValentinKolb/dStruct/lib/codec"
	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/ValentinKolb/dStruct/lib/txn"
)

// Sets stores every member of a set as a sub key with an empty value.
type Sets struct {
	engine
}

// NewSets creates the set engine.
func NewSets(c *codec.Codec, policy txn.RetryPolicy) *Sets {
	return &Sets{engine{codec: c, policy: policy}}
}

var emptyValue = []byte{}

// SAdd adds members and returns how many of them were new.
func (e *Sets) SAdd(ctx context.Context, h kv.IReadWriter, key string, members ...string) (int64, error) {
	var added int64
	for _, m := range members {
		swapped, err := h.CompareAndSwap(ctx, e.codec.EncodeSub(codec.Set, key, []byte(m)), nil, false, emptyValue)
		if err != nil {
			return added, err
		}
		if swapped {
			added++
		}
	}
	return added, nil
}

// SCard returns the number of members.
func (e *Sets) SCard(ctx context.Context, h kv.IReadWriter, key string) (int64, error) {
	var n int64
	err := scanAll(ctx, h, e.codec.EncodeRangeStart(codec.Set, key), e.codec.EncodeRangeEnd(codec.Set, key), 0, func(kv.KvPair) bool {
		n++
		return true
	})
	return n, err
}

// SMembers returns every member in key order.
func (e *Sets) SMembers(ctx context.Context, h kv.IReadWriter, key string) ([][]byte, error) {
	var (
		out    [][]byte
		decErr error
	)
	err := scanAll(ctx, h, e.codec.EncodeRangeStart(codec.Set, key), e.codec.EncodeRangeEnd(codec.Set, key), 0, func(p kv.KvPair) bool {
		m, err := e.codec.DecodeSub(codec.Set, key, p.Key)
		if err != nil {
			decErr = err
			return false
		}
		out = append(out, m)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decErr
}

package types

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/dStruct/lib/codec"
	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/ValentinKolb/dStruct/lib/kv/memkv"
	"github.com/ValentinKolb/dStruct/lib/pool"
	"github.com/ValentinKolb/dStruct/lib/txn"
	"github.com/stretchr/testify/require"
)

var testPolicy = txn.RetryPolicy{
	BaseDelay: time.Microsecond,
	MaxDelay:  2 * time.Millisecond,
	Deadline:  10 * time.Second,
}

// fixture bundles every engine on top of one in-memory backend.
type fixture struct {
	t       *testing.T
	m       *txn.Manager
	codec   *codec.Codec
	strings *Strings
	hashes  *Hashes
	sets    *Sets
	lists   *Lists
}

func newFixture(t *testing.T, mode txn.Mode) *fixture {
	p, err := pool.New(context.Background(), memkv.NewDriver(), nil, pool.DefaultConfig)
	require.NoError(t, err)
	m := txn.NewManager(p, mode, testPolicy)
	t.Cleanup(func() {
		_ = m.Close(context.Background())
		_ = p.Close()
	})

	c := codec.New(1)
	return &fixture{
		t:       t,
		m:       m,
		codec:   c,
		strings: NewStrings(c, testPolicy),
		hashes:  NewHashes(c, testPolicy),
		sets:    NewSets(c, testPolicy),
		lists:   NewLists(c, testPolicy),
	}
}

// forModes runs fn once per execution mode.
func forModes(t *testing.T, fn func(t *testing.T, f *fixture)) {
	for _, mode := range []txn.Mode{txn.ModeTxn, txn.ModeRaw} {
		t.Run(mode.String(), func(t *testing.T) {
			fn(t, newFixture(t, mode))
		})
	}
}

// run executes fn in an implicit transaction (or on the raw client) of session 0.
func (f *fixture) run(fn func(ctx context.Context, h kv.IReadWriter) error) error {
	ctx := context.Background()
	return f.m.Run(ctx, 0, func(h kv.IReadWriter) error {
		return fn(ctx, h)
	})
}

func (f *fixture) must(fn func(ctx context.Context, h kv.IReadWriter) error) {
	f.t.Helper()
	require.NoError(f.t, f.run(fn))
}

func bs(values ...string) [][]byte {
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = []byte(v)
	}
	return out
}

func TestScanAllPages(t *testing.T) {
	f := newFixture(t, txn.ModeRaw)
	n := kv.MaxScanLimit + 10
	pairs := make([]Pair, n)
	for i := range pairs {
		pairs[i] = Pair{Key: string(codec.EncodeIndex(int64(i))), Value: []byte("v")}
	}
	f.must(func(ctx context.Context, h kv.IReadWriter) error {
		return f.strings.BatchPut(ctx, h, pairs)
	})

	start, end := f.codec.Encode(codec.String, ""), f.codec.EncodeEnd(codec.String)
	count := func(limit int) int {
		seen := 0
		f.must(func(ctx context.Context, h kv.IReadWriter) error {
			seen = 0
			return scanAll(ctx, h, start, end, limit, func(kv.KvPair) bool {
				seen++
				return true
			})
		})
		return seen
	}
	require.Equal(t, n, count(0))
	require.Equal(t, kv.MaxScanLimit+1, count(kv.MaxScanLimit+1))
	require.Equal(t, 5, count(5))
}

func TestNamespacesAreDisjoint(t *testing.T) {
	forModes(t, func(t *testing.T, f *fixture) {
		f.must(func(ctx context.Context, h kv.IReadWriter) error {
			if err := f.strings.Put(ctx, h, "k", []byte("string")); err != nil {
				return err
			}
			if _, err := f.hashes.HSet(ctx, h, "k", "field", []byte("hash")); err != nil {
				return err
			}
			if _, err := f.sets.SAdd(ctx, h, "k", "member"); err != nil {
				return err
			}
			_, err := f.lists.Push(ctx, h, "k", bs("list"), Right)
			return err
		})

		f.must(func(ctx context.Context, h kv.IReadWriter) error {
			n, err := f.strings.Del(ctx, h, "k")
			require.NoError(t, err)
			require.Equal(t, int64(1), n)

			v, found, err := f.hashes.HGet(ctx, h, "k", "field")
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, []byte("hash"), v)

			card, err := f.sets.SCard(ctx, h, "k")
			require.NoError(t, err)
			require.Equal(t, int64(1), card)

			items, err := f.lists.Range(ctx, h, "k", 0, -1)
			require.NoError(t, err)
			require.Equal(t, bs("list"), items)
			return nil
		})
	})
}

func TestInstancesAreDisjoint(t *testing.T) {
	f := newFixture(t, txn.ModeRaw)
	other := NewStrings(codec.New(2), testPolicy)

	f.must(func(ctx context.Context, h kv.IReadWriter) error {
		if err := f.strings.Put(ctx, h, "k", []byte("one")); err != nil {
			return err
		}
		_, found, err := other.Get(ctx, h, "k")
		require.False(t, found)
		return err
	})
}

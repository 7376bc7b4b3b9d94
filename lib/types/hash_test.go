package types

import (
	"context"
	"testing"

	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/ValentinKolb/dStruct/lib/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashes(t *testing.T) {
	forModes(t, func(t *testing.T, f *fixture) {
		f.must(func(ctx context.Context, h kv.IReadWriter) error {
			n, err := f.hashes.HSet(ctx, h, "user", "name", []byte("ada"))
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
			require.NoError(t, f.hashes.HMSet(ctx, h, "user", []Pair{{"age", []byte("36")}, {"city", []byte("london")}}))

			v, found, err := f.hashes.HGet(ctx, h, "user", "name")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, []byte("ada"), v)

			values, err := f.hashes.HMGet(ctx, h, "user", "age", "missing", "city")
			require.NoError(t, err)
			assert.Equal(t, [][]byte{[]byte("36"), nil, []byte("london")}, values)

			ok, err := f.hashes.HExists(ctx, h, "user", "age")
			require.NoError(t, err)
			assert.True(t, ok)

			all, err := f.hashes.HGetAll(ctx, h, "user")
			require.NoError(t, err)
			assert.Equal(t, []Pair{{"age", []byte("36")}, {"city", []byte("london")}, {"name", []byte("ada")}}, all)

			keys, err := f.hashes.HKeys(ctx, h, "user")
			require.NoError(t, err)
			assert.Equal(t, bs("age", "city", "name"), keys)

			vals, err := f.hashes.HVals(ctx, h, "user")
			require.NoError(t, err)
			assert.Equal(t, bs("36", "london", "ada"), vals)

			n, err = f.hashes.HDel(ctx, h, "user", "age", "missing")
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			ok, err = f.hashes.HExists(ctx, h, "user", "age")
			require.NoError(t, err)
			assert.False(t, ok)
			return nil
		})
	})
}

func TestHashFieldsOfPrefixedKeysStaySeparate(t *testing.T) {
	f := newFixture(t, txn.ModeRaw)
	f.must(func(ctx context.Context, h kv.IReadWriter) error {
		_, err := f.hashes.HSet(ctx, h, "a", "x", []byte("1"))
		require.NoError(t, err)
		_, err = f.hashes.HSet(ctx, h, "ab", "y", []byte("2"))
		require.NoError(t, err)

		keys, err := f.hashes.HKeys(ctx, h, "a")
		require.NoError(t, err)
		assert.Equal(t, bs("x"), keys)
		return nil
	})
}

func TestSets(t *testing.T) {
	forModes(t, func(t *testing.T, f *fixture) {
		f.must(func(ctx context.Context, h kv.IReadWriter) error {
			n, err := f.sets.SAdd(ctx, h, "tags", "go", "kv", "go")
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			// adding existing members is a no-op
			n, err = f.sets.SAdd(ctx, h, "tags", "kv")
			require.NoError(t, err)
			assert.Equal(t, int64(0), n)

			card, err := f.sets.SCard(ctx, h, "tags")
			require.NoError(t, err)
			assert.Equal(t, int64(2), card)

			members, err := f.sets.SMembers(ctx, h, "tags")
			require.NoError(t, err)
			assert.Equal(t, bs("go", "kv"), members)

			card, err = f.sets.SCard(ctx, h, "empty")
			require.NoError(t, err)
			assert.Zero(t, card)
			return nil
		})
	})
}

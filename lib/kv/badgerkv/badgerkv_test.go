package badgerkv

import (
	"context"
	"testing"

	"github.com/ValentinKolb/dStruct/lib/kv"
	kvtesting "github.com/ValentinKolb/dStruct/lib/kv/testing"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inMemoryFactory(t testing.TB) kvtesting.DriverFactory {
	return func() kv.IDriver {
		d, err := Open(Options{InMemory: true})
		if err != nil {
			t.Fatalf("failed to open badger: %v", err)
		}
		return d
	}
}

func TestBadgerBackend(t *testing.T) {
	kvtesting.RunBackendTests(t, "badger", inMemoryFactory(t))
}

func BenchmarkBadgerBackend(b *testing.B) {
	kvtesting.RunBackendBenchmarks(b, "badger", inMemoryFactory(b))
}

func TestBadgerPersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	d, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	assert.True(t, d.Info().Supports(kv.FeaturePersistent))

	raw, err := d.NewRawClient(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, raw.Put(ctx, []byte("k"), []byte("v")))
	require.NoError(t, d.Close())

	d, err = Open(Options{Dir: dir})
	require.NoError(t, err)
	defer d.Close()

	raw, err = d.NewRawClient(ctx, nil)
	require.NoError(t, err)
	v, found, err := raw.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), v)
}

func TestBadgerConflictIsTransient(t *testing.T) {
	err := mapError(badger.ErrConflict)
	assert.True(t, kv.IsTransient(err))
	assert.ErrorIs(t, err, kv.ErrWriteConflict)
	assert.False(t, kv.IsTransient(mapError(badger.ErrTxnTooBig)))
	assert.False(t, kv.IsTransient(mapError(context.Canceled)))
}

package tikv

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/ValentinKolb/dStruct/lib/kv"
	kvtesting "github.com/ValentinKolb/dStruct/lib/kv/testing"
	tikverr "github.com/tikv/client-go/v2/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueEnvelope(t *testing.T) {
	for _, v := range [][]byte{nil, {}, []byte("x"), []byte("vvv")} {
		w := wrap(v)
		assert.Len(t, w, len(v)+1)
		assert.Equal(t, kv.NonNil(v), unwrap(w))
	}
	// foreign values pass through
	assert.Equal(t, []byte("foreign"), unwrap([]byte("foreign")))
}

func TestTombstone(t *testing.T) {
	assert.True(t, isTombstone(tombstone))
	// a stored empty value or a value starting with the tombstone byte is live
	assert.False(t, isTombstone(wrap(nil)))
	assert.False(t, isTombstone(wrap([]byte("d"))))
	assert.False(t, isTombstone([]byte("dd")))
	assert.False(t, isTombstone(nil))
}

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil))
	assert.True(t, kv.IsTransient(mapError(tikverr.ErrRegionUnavailable)))
	assert.True(t, kv.IsTransient(mapError(tikverr.ErrTiKVServerBusy)))
	assert.True(t, kv.IsTransient(mapError(&tikverr.ErrRetryable{Retryable: "stale epoch"})))
	assert.ErrorIs(t, mapError(context.Canceled), context.Canceled)
	assert.False(t, kv.IsTransient(mapError(tikverr.ErrCannotSetNilValue)))
}

func TestDriverInfo(t *testing.T) {
	info := NewDriver().Info()
	assert.Equal(t, kv.ImplTiKV, info.Impl)
	assert.True(t, info.Supports(kv.FeaturePessimistic|kv.FeatureAsyncCommit|kv.FeatureOnePC))
}

// pdAddrs returns the PD endpoints of a live test cluster from
// DSTRUCT_TEST_TIKV_PD (comma separated) and skips the test if it is unset.
// The cluster should be empty.
func pdAddrs(t *testing.T) []string {
	pd := os.Getenv("DSTRUCT_TEST_TIKV_PD")
	if pd == "" {
		t.Skip("DSTRUCT_TEST_TIKV_PD not set")
	}
	return strings.Split(pd, ",")
}

// Raw and transactional data live apart in TiKV, so only the raw part of the
// shared suite applies.
func TestTiKVRawBackend(t *testing.T) {
	addrs := pdAddrs(t)
	kvtesting.RunRawBackendTests(t, "tikv", func() kv.IDriver {
		return &addrDriver{IDriver: NewDriver(), addrs: addrs}
	})
}

func TestTiKVTxnRoundTrip(t *testing.T) {
	addrs := pdAddrs(t)
	ctx := context.Background()

	for _, opts := range []kv.TxnOptions{kv.DefaultTxnOptions, {}} {
		txns, err := NewDriver().NewTxnClient(ctx, addrs)
		require.NoError(t, err)

		tx, err := txns.Begin(ctx, opts)
		require.NoError(t, err)
		require.NoError(t, tx.Put(ctx, []byte("dstruct-test"), nil))
		swapped, err := tx.CompareAndSwap(ctx, []byte("dstruct-test"), []byte{}, true, []byte("1"))
		require.NoError(t, err)
		assert.True(t, swapped)
		require.NoError(t, tx.Commit(ctx))

		tx, err = txns.Begin(ctx, opts)
		require.NoError(t, err)
		v, found, err := tx.Get(ctx, []byte("dstruct-test"))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("1"), v)
		require.NoError(t, tx.Delete(ctx, []byte("dstruct-test")))
		require.NoError(t, tx.Commit(ctx))
		require.NoError(t, txns.Close())
	}
}

// addrDriver pins the PD endpoints so the shared suite can pass nil addresses.
type addrDriver struct {
	kv.IDriver
	addrs []string
}

func (d *addrDriver) NewRawClient(ctx context.Context, _ []string) (kv.IRawClient, error) {
	return d.IDriver.NewRawClient(ctx, d.addrs)
}

func (d *addrDriver) NewTxnClient(ctx context.Context, _ []string) (kv.ITxnClient, error) {
	return d.IDriver.NewTxnClient(ctx, d.addrs)
}

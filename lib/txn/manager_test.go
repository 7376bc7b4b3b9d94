package txn

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/ValentinKolb/dStruct/lib/kv/memkv"
	"github.com/ValentinKolb/dStruct/lib/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, mode Mode) *Manager {
	p, err := pool.New(context.Background(), memkv.NewDriver(), nil, pool.DefaultConfig)
	require.NoError(t, err)
	m := NewManager(p, mode, fastPolicy)
	t.Cleanup(func() {
		_ = m.Close(context.Background())
		_ = p.Close()
	})
	return m
}

func get(t *testing.T, m *Manager, sid SessionID, key string) (string, bool) {
	t.Helper()
	var (
		v     []byte
		found bool
	)
	require.NoError(t, m.Run(context.Background(), sid, func(h kv.IReadWriter) (err error) {
		v, found, err = h.Get(context.Background(), []byte(key))
		return err
	}))
	return string(v), found
}

func put(t *testing.T, m *Manager, sid SessionID, key, value string) {
	t.Helper()
	require.NoError(t, m.Run(context.Background(), sid, func(h kv.IReadWriter) error {
		return h.Put(context.Background(), []byte(key), []byte(value))
	}))
}

func TestSessionLifecycle(t *testing.T) {
	m := newManager(t, ModeTxn)
	ctx := context.Background()
	const sid SessionID = 1

	assert.False(t, m.HasTxn(sid))
	assert.ErrorIs(t, m.Commit(ctx, sid), ErrNoActiveTxn)
	assert.ErrorIs(t, m.Rollback(ctx, sid), ErrNoActiveTxn)

	require.NoError(t, m.Begin(ctx, sid))
	assert.True(t, m.HasTxn(sid))
	assert.Equal(t, 1, m.Sessions())
	assert.ErrorIs(t, m.Begin(ctx, sid), ErrTxnAlreadyActive)

	require.NoError(t, m.Commit(ctx, sid))
	assert.False(t, m.HasTxn(sid))
	assert.Equal(t, 0, m.Sessions())
	assert.ErrorIs(t, m.Commit(ctx, sid), ErrNoActiveTxn)
}

func TestTransactionIsolation(t *testing.T) {
	m := newManager(t, ModeTxn)
	ctx := context.Background()
	const writer, reader SessionID = 1, 2

	require.NoError(t, m.Begin(ctx, writer))
	put(t, m, writer, "k", "v")

	v, found := get(t, m, writer, "k")
	assert.True(t, found)
	assert.Equal(t, "v", v)

	_, found = get(t, m, reader, "k")
	assert.False(t, found, "uncommitted write visible to another session")

	require.NoError(t, m.Commit(ctx, writer))
	v, found = get(t, m, reader, "k")
	assert.True(t, found)
	assert.Equal(t, "v", v)
}

func TestRollbackLeavesKeyUnchanged(t *testing.T) {
	m := newManager(t, ModeTxn)
	ctx := context.Background()
	const sid SessionID = 7

	put(t, m, sid, "k", "before")
	require.NoError(t, m.Begin(ctx, sid))
	put(t, m, sid, "k", "after")
	require.NoError(t, m.Rollback(ctx, sid))

	v, _ := get(t, m, sid, "k")
	assert.Equal(t, "before", v)
}

func TestImplicitTxnIsReplayedOnConflict(t *testing.T) {
	m := newManager(t, ModeTxn)
	ctx := context.Background()
	put(t, m, 1, "counter", "0")

	attempts := 0
	err := m.Run(ctx, 1, func(h kv.IReadWriter) error {
		attempts++
		if _, _, err := h.Get(ctx, []byte("counter")); err != nil {
			return err
		}
		if attempts == 1 {
			// a concurrent writer commits first
			if err := m.Raw().Put(ctx, []byte("counter"), []byte("other")); err != nil {
				return err
			}
		}
		return h.Put(ctx, []byte("counter"), []byte("mine"))
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	v, _ := get(t, m, 1, "counter")
	assert.Equal(t, "mine", v)
}

func TestImplicitTxnRollsBackOnError(t *testing.T) {
	m := newManager(t, ModeTxn)
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.Run(ctx, 1, func(h kv.IReadWriter) error {
		if err := h.Put(ctx, []byte("k"), []byte("v")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	// errors raised by fn itself are not backend errors
	assert.NotErrorIs(t, err, ErrBackendFatal)

	_, found := get(t, m, 1, "k")
	assert.False(t, found)
}

func TestRawModeWritesThrough(t *testing.T) {
	m := newManager(t, ModeRaw)
	put(t, m, 1, "k", "v")

	v, found, err := m.Raw().Get(context.Background(), []byte("k"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), v)

	// explicit transactions still work in raw mode
	require.NoError(t, m.Begin(context.Background(), 1))
	put(t, m, 1, "k", "txn")
	v, _, _ = m.Raw().Get(context.Background(), []byte("k"))
	assert.Equal(t, []byte("v"), v)
	require.NoError(t, m.Commit(context.Background(), 1))
}

func TestDiscardAndClose(t *testing.T) {
	m := newManager(t, ModeTxn)
	ctx := context.Background()

	m.Discard(ctx, 1) // no transaction, no-op

	for sid := SessionID(1); sid <= 3; sid++ {
		require.NoError(t, m.Begin(ctx, sid))
		put(t, m, sid, "k", sid.String())
	}
	m.Discard(ctx, 1)
	assert.False(t, m.HasTxn(1))
	assert.Equal(t, 2, m.Sessions())

	require.NoError(t, m.Close(ctx))
	assert.Equal(t, 0, m.Sessions())
	_, found := get(t, m, 9, "k")
	assert.False(t, found)
}

func TestConcurrentSessions(t *testing.T) {
	m := newManager(t, ModeTxn)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(sid SessionID) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if err := m.Begin(ctx, sid); err != nil {
					t.Errorf("Begin failed: %v", err)
					return
				}
				if err := m.Run(ctx, sid, func(h kv.IReadWriter) error {
					return h.Put(ctx, []byte(sid.String()), []byte("v"))
				}); err != nil {
					t.Errorf("Put failed: %v", err)
				}
				if err := m.Commit(ctx, sid); err != nil {
					t.Errorf("Commit failed: %v", err)
				}
			}
		}(SessionID(i))
	}
	wg.Wait()
	assert.Equal(t, 0, m.Sessions())
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("RAW")
	require.NoError(t, err)
	assert.Equal(t, ModeRaw, mode)
	mode, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeTxn, mode)
	_, err = ParseMode("sql")
	assert.Error(t, err)
	assert.Equal(t, "txn", ModeTxn.String())
}

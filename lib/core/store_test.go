package core

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/dStruct/lib/kv/memkv"
	"github.com/ValentinKolb/dStruct/lib/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRetry = txn.RetryPolicy{
	BaseDelay: time.Microsecond,
	MaxDelay:  2 * time.Millisecond,
	Deadline:  10 * time.Second,
}

func newStore(t *testing.T, mode txn.Mode) *Store {
	s := New(Config{Driver: memkv.NewDriver(), InstanceID: 7, Mode: mode, Retry: testRetry})
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() {
		if s.Connected() {
			_ = s.Close(context.Background())
		}
	})
	return s
}

// do dispatches a command given as strings for session sid.
func do(t *testing.T, s *Store, sid txn.SessionID, name string, args ...string) (Result, error) {
	t.Helper()
	raw := make([][]byte, len(args))
	for i, a := range args {
		raw[i] = []byte(a)
	}
	return s.Dispatch(context.Background(), sid, name, raw)
}

func mustDo(t *testing.T, s *Store, sid txn.SessionID, name string, args ...string) Result {
	t.Helper()
	res, err := do(t, s, sid, name, args...)
	require.NoError(t, err)
	return res
}

func TestConnectAndClose(t *testing.T) {
	ctx := context.Background()
	s := New(Config{Driver: memkv.NewDriver(), Retry: testRetry})
	assert.False(t, s.Connected())

	_, err := do(t, s, 1, "get", "k")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, s.Close(ctx), ErrNotConnected)

	res := mustDo(t, s, 1, "connect")
	assert.Equal(t, OK(), res)
	assert.True(t, s.Connected())
	assert.Equal(t, DefaultAddrs, s.Status().Addrs)

	_, err = do(t, s, 1, "connect", "10.0.0.1:2379")
	assert.ErrorIs(t, err, ErrAlreadyConnected)

	res = mustDo(t, s, 1, "close")
	assert.Equal(t, Status("Closed"), res)
	assert.False(t, s.Connected())

	_, err = do(t, s, 1, "close")
	assert.ErrorIs(t, err, ErrNotConnected)

	// the store can be connected again
	mustDo(t, s, 1, "connect", "10.0.0.1:2379", "10.0.0.2:2379")
	assert.Equal(t, []string{"10.0.0.1:2379", "10.0.0.2:2379"}, s.Status().Addrs)
}

func TestConnectWithoutDriver(t *testing.T) {
	err := New(Config{}).Connect(context.Background())
	assert.ErrorIs(t, err, ErrArgument)
}

func TestCloseRollsBackOpenTransactions(t *testing.T) {
	s := newStore(t, txn.ModeTxn)
	mustDo(t, s, 1, "begin")
	mustDo(t, s, 1, "put", "k", "v")
	assert.Equal(t, 1, s.Status().OpenTxns)

	mustDo(t, s, 1, "close")
	mustDo(t, s, 1, "connect")
	assert.Equal(t, 0, s.Status().OpenTxns)

	// the memory backend keeps its data, the uncommitted write is gone
	assert.True(t, mustDo(t, s, 2, "get", "k").IsNull())
}

func TestTransactionIsolation(t *testing.T) {
	s := newStore(t, txn.ModeTxn)

	mustDo(t, s, 1, "begin")
	mustDo(t, s, 1, "set", "k", "v")
	mustDo(t, s, 1, "rpush", "l", "a", "b")

	// uncommitted writes are invisible to other sessions
	assert.True(t, mustDo(t, s, 2, "get", "k").IsNull())
	assert.Equal(t, Integer(0), mustDo(t, s, 2, "llen", "l"))
	// but visible to the session itself
	assert.Equal(t, Bulk([]byte("v")), mustDo(t, s, 1, "get", "k"))

	mustDo(t, s, 1, "commit")
	assert.Equal(t, Bulk([]byte("v")), mustDo(t, s, 2, "get", "k"))
	assert.Equal(t, []string{"a", "b"}, mustDo(t, s, 2, "lrange", "l", "0", "-1").Strings())
}

func TestRollback(t *testing.T) {
	s := newStore(t, txn.ModeTxn)
	mustDo(t, s, 1, "begin")
	mustDo(t, s, 1, "set", "k", "v")
	mustDo(t, s, 1, "rollback")
	assert.True(t, mustDo(t, s, 1, "get", "k").IsNull())

	_, err := do(t, s, 1, "commit")
	assert.ErrorIs(t, err, ErrNoActiveTxn)
	_, err = do(t, s, 1, "rollback")
	assert.ErrorIs(t, err, ErrNoActiveTxn)

	mustDo(t, s, 1, "begin")
	_, err = do(t, s, 1, "begin")
	assert.ErrorIs(t, err, ErrTxnAlreadyActive)
}

func TestDisconnectDiscardsSession(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, txn.ModeTxn)
	mustDo(t, s, 1, "begin")
	mustDo(t, s, 1, "set", "k", "v")

	s.Disconnect(ctx, 1)
	assert.Equal(t, 0, s.Status().OpenTxns)
	assert.True(t, mustDo(t, s, 1, "get", "k").IsNull())

	// disconnecting an unknown session or a closed store is a no-op
	s.Disconnect(ctx, 99)
	require.NoError(t, s.Close(ctx))
	s.Disconnect(ctx, 1)
}

func TestStatus(t *testing.T) {
	s := newStore(t, txn.ModeRaw)
	mustDo(t, s, 1, "set", "k", "v")

	st := s.Status()
	assert.Equal(t, uint64(7), st.InstanceID)
	assert.Equal(t, "raw", st.Mode)
	assert.True(t, st.Connected)
	assert.NotZero(t, st.Requests)

	res := mustDo(t, s, 1, "status")
	assert.Contains(t, string(res.Bulk), "instance_id:7\n")
	assert.Contains(t, string(res.Bulk), "backend:memory\n")
	assert.Contains(t, string(res.Bulk), "connected:true\n")

	res = mustDo(t, s, 1, "status", "metrics")
	assert.Contains(t, string(res.Bulk), `dstruct_command_requests_total{cmd="put"}`)
	assert.Contains(t, string(res.Bulk), "dstruct_pool_clients_created")

	_, err := do(t, s, 1, "status", "nonsense")
	assert.ErrorIs(t, err, ErrArgument)
}

func TestStatusWhileDisconnected(t *testing.T) {
	s := New(Config{Driver: memkv.NewDriver()})
	res := mustDo(t, s, 1, "status")
	assert.Contains(t, string(res.Bulk), "connected:false\n")
	assert.NotContains(t, string(res.Bulk), "pool_idle")

	var buf bytes.Buffer
	s.WriteMetrics(&buf)
	assert.NotContains(t, buf.String(), "dstruct_pool_idle_clients")
}

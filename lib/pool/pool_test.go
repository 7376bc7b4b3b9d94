package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/ValentinKolb/dStruct/lib/kv/memkv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingDriver counts opened and closed txn clients of a memory backend.
type countingDriver struct {
	kv.IDriver
	opened atomic.Int64
	closed atomic.Int64
}

type countingTxnClient struct {
	kv.ITxnClient
	d *countingDriver
}

func (c *countingTxnClient) Close() error {
	c.d.closed.Add(1)
	return c.ITxnClient.Close()
}

func (d *countingDriver) NewTxnClient(ctx context.Context, addrs []string) (kv.ITxnClient, error) {
	c, err := d.IDriver.NewTxnClient(ctx, addrs)
	if err != nil {
		return nil, err
	}
	d.opened.Add(1)
	return &countingTxnClient{ITxnClient: c, d: d}, nil
}

func newPool(t *testing.T, maxIdle int) (*Pool, *countingDriver) {
	d := &countingDriver{IDriver: memkv.NewDriver()}
	p, err := New(context.Background(), d, nil, Config{MaxIdle: maxIdle})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, d
}

func TestGetReusesIdleClients(t *testing.T) {
	p, d := newPool(t, 2)
	ctx := context.Background()

	c1, err := p.Get(ctx)
	require.NoError(t, err)
	p.Put(c1)

	c2, err := p.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, c1, c2)
	assert.Equal(t, int64(1), d.opened.Load())

	// the free-list is empty while c2 is checked out
	c3, err := p.Get(ctx)
	require.NoError(t, err)
	assert.NotSame(t, c2, c3)
	assert.Equal(t, int64(2), d.opened.Load())

	s := p.Stats()
	assert.Equal(t, 0, s.Idle)
	assert.Equal(t, int64(2), s.InUse)
	assert.Equal(t, int64(2), s.Created)
}

func TestPutDropsBeyondMaxIdle(t *testing.T) {
	p, d := newPool(t, 1)
	ctx := context.Background()

	c1, _ := p.Get(ctx)
	c2, _ := p.Get(ctx)
	p.Put(c1)
	p.Put(c2)

	assert.Equal(t, int64(1), d.closed.Load())
	s := p.Stats()
	assert.Equal(t, 1, s.Idle)
	assert.Equal(t, int64(1), s.Dropped)
	assert.Equal(t, int64(0), s.InUse)
}

func TestCloseDropsIdleAndLateReturns(t *testing.T) {
	p, d := newPool(t, 4)
	ctx := context.Background()

	idle, _ := p.Get(ctx)
	busy, _ := p.Get(ctx)
	p.Put(idle)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, int64(1), d.closed.Load())

	_, err := p.Get(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	// a client checked out before Close is dropped on return
	p.Put(busy)
	assert.Equal(t, int64(2), d.closed.Load())
	assert.Equal(t, 0, p.Stats().Idle)
}

func TestConcurrentGetPut(t *testing.T) {
	p, d := newPool(t, 8)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c, err := p.Get(ctx)
				if err != nil {
					t.Errorf("Get failed: %v", err)
					return
				}
				txn, err := c.Begin(ctx, kv.DefaultTxnOptions)
				if err == nil {
					_ = txn.Rollback(ctx)
				}
				p.Put(c)
			}
		}()
	}
	wg.Wait()

	s := p.Stats()
	assert.Equal(t, int64(0), s.InUse)
	assert.LessOrEqual(t, s.Idle, 8)
	assert.Equal(t, d.opened.Load()-d.closed.Load(), int64(s.Idle))
}

func TestRawIsShared(t *testing.T) {
	p, _ := newPool(t, 1)
	assert.Same(t, p.Raw(), p.Raw())
	assert.Equal(t, kv.ImplMemory, p.Info().Impl)
}

func TestNegativeMaxIdle(t *testing.T) {
	_, err := New(context.Background(), memkv.NewDriver(), nil, Config{MaxIdle: -1})
	assert.Error(t, err)
}

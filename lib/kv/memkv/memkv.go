package memkv

import (
	"context"

	"github.com/ValentinKolb/dStruct/lib/kv"
)

// --------------------------------------------------------------------------
// Driver
// --------------------------------------------------------------------------

// driver serves every client from one shared engine. Backend addresses are ignored.
type driver struct {
	engine *Engine
}

// NewDriver creates a driver over a fresh engine.
func NewDriver() kv.IDriver {
	return NewDriverWithEngine(NewEngine())
}

// NewDriverWithEngine creates a driver over an existing engine.
func NewDriverWithEngine(engine *Engine) kv.IDriver {
	return &driver{engine: engine}
}

func (d *driver) Info() kv.DriverInfo {
	return kv.DriverInfo{Impl: kv.ImplMemory}
}

func (d *driver) NewRawClient(_ context.Context, _ []string) (kv.IRawClient, error) {
	return &rawClient{engine: d.engine}, nil
}

func (d *driver) NewTxnClient(_ context.Context, _ []string) (kv.ITxnClient, error) {
	return &txnClient{engine: d.engine}, nil
}

// --------------------------------------------------------------------------
// Raw Client
// --------------------------------------------------------------------------

type rawClient struct {
	engine *Engine
}

func (c *rawClient) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	v, ok := c.engine.Get(key)
	return v, ok, nil
}

func (c *rawClient) BatchGet(ctx context.Context, keys [][]byte) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i], _ = c.engine.Get(k)
	}
	return values, nil
}

func (c *rawClient) Put(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.engine.Put(key, value, 0)
	return nil
}

func (c *rawClient) BatchPut(ctx context.Context, pairs []kv.KvPair) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.engine.BatchPut(pairs, 0)
	return nil
}

func (c *rawClient) Delete(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.engine.Delete(key, 0)
	return nil
}

func (c *rawClient) BatchDelete(ctx context.Context, keys [][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.engine.BatchDelete(keys, 0)
	return nil
}

func (c *rawClient) DeleteRange(ctx context.Context, start, end []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.engine.DeleteRange(start, end, 0)
	return nil
}

func (c *rawClient) Scan(ctx context.Context, start, end []byte, limit int) ([]kv.KvPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.engine.Scan(start, end, limit), nil
}

func (c *rawClient) CompareAndSwap(ctx context.Context, key, prev []byte, prevExists bool, next []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.engine.CompareAndSwap(key, prev, prevExists, next, 0), nil
}

func (c *rawClient) CompareAndDelete(ctx context.Context, key, prev []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.engine.CompareAndDelete(key, prev, 0), nil
}

func (c *rawClient) Close() error { return nil }

// --------------------------------------------------------------------------
// Transactional Client
// --------------------------------------------------------------------------

type txnClient struct {
	engine *Engine
}

func (c *txnClient) Begin(ctx context.Context, _ kv.TxnOptions) (kv.ITxn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reader := &rawClient{engine: c.engine}
	commit := func(ctx context.Context, startIdx uint64, muts []kv.Mutation) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return c.engine.Apply(startIdx, muts, 0)
	}
	return kv.NewBufferedTxn(c.engine.WriteIdx(), reader, commit), nil
}

func (c *txnClient) Close() error { return nil }

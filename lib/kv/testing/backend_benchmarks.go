package testing

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dStruct/lib/kv"
)

// RunBackendBenchmarks runs all benchmarks for a backend driver
func RunBackendBenchmarks(b *testing.B, name string, factory DriverFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Put", func(b *testing.B) {
			benchmarkPut(b, rawClient(b, factory))
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, rawClient(b, factory))
		})

		b.Run("CompareAndSwap", func(b *testing.B) {
			benchmarkCompareAndSwap(b, rawClient(b, factory))
		})

		b.Run("Scan", func(b *testing.B) {
			benchmarkScan(b, rawClient(b, factory))
		})

		b.Run("TxnCommit", func(b *testing.B) {
			_, txns := clients(b, factory)
			benchmarkTxnCommit(b, txns)
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkPut(b *testing.B, c kv.IRawClient) {
	ctx := context.Background()
	value := []byte("benchmark-value")
	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			key := []byte(fmt.Sprintf("key-%d", counter.Add(1)))
			if err := c.Put(ctx, key, value); err != nil {
				b.Fatalf("Put failed: %v", err)
			}
		}
	})
}

func benchmarkGet(b *testing.B, c kv.IRawClient) {
	const numKeys = 1000
	ctx := context.Background()
	for i := 0; i < numKeys; i++ {
		if err := c.Put(ctx, []byte(fmt.Sprintf("key-%d", i)), []byte("value")); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			if _, _, err := c.Get(ctx, []byte(fmt.Sprintf("key-%d", r.Intn(numKeys)))); err != nil {
				b.Fatalf("Get failed: %v", err)
			}
		}
	})
}

func benchmarkCompareAndSwap(b *testing.B, c kv.IRawClient) {
	ctx := context.Background()
	key := []byte("cas-key")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		prev, found, err := c.Get(ctx, key)
		if err != nil {
			b.Fatalf("Get failed: %v", err)
		}
		if _, err := c.CompareAndSwap(ctx, key, prev, found, []byte(fmt.Sprintf("%d", i))); err != nil {
			b.Fatalf("CompareAndSwap failed: %v", err)
		}
	}
}

func benchmarkScan(b *testing.B, c kv.IRawClient) {
	const numKeys = 1000
	ctx := context.Background()
	pairs := make([]kv.KvPair, numKeys)
	for i := range pairs {
		pairs[i] = kv.KvPair{Key: []byte(fmt.Sprintf("scan-%04d", i)), Value: []byte("value")}
	}
	if err := c.BatchPut(ctx, pairs); err != nil {
		b.Fatalf("BatchPut failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Scan(ctx, []byte("scan-"), []byte("scan."), 100); err != nil {
			b.Fatalf("Scan failed: %v", err)
		}
	}
}

func benchmarkTxnCommit(b *testing.B, txns kv.ITxnClient) {
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		txn, err := txns.Begin(ctx, kv.DefaultTxnOptions)
		if err != nil {
			b.Fatalf("Begin failed: %v", err)
		}
		if err := txn.Put(ctx, []byte(fmt.Sprintf("txn-%d", i)), []byte("value")); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
		if err := txn.Commit(ctx); err != nil {
			b.Fatalf("Commit failed: %v", err)
		}
	}
}

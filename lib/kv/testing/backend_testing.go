package testing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dStruct/lib/kv"
)

// DriverFactory is a function that creates a new, empty backend driver
type DriverFactory func() kv.IDriver

// RunBackendTests runs the conformance suite for a backend driver.
// The transaction tests read committed data back through the raw client.
func RunBackendTests(t *testing.T, name string, factory DriverFactory) {
	t.Run(name, func(t *testing.T) {
		runRawTests(t, factory)
		runTxnTests(t, factory)
	})
}

// RunRawBackendTests runs only the raw client part of the conformance suite.
// It is meant for backends that keep raw and transactional data apart.
func RunRawBackendTests(t *testing.T, name string, factory DriverFactory) {
	t.Run(name, func(t *testing.T) {
		runRawTests(t, factory)
	})
}

func runRawTests(t *testing.T, factory DriverFactory) {
	t.Run("Put&Get", func(t *testing.T) {
		testPutGet(t, rawClient(t, factory))
	})

	t.Run("EmptyValue", func(t *testing.T) {
		testEmptyValue(t, rawClient(t, factory))
	})

	t.Run("Delete", func(t *testing.T) {
		testDelete(t, rawClient(t, factory))
	})

	t.Run("Batch", func(t *testing.T) {
		testBatch(t, rawClient(t, factory))
	})

	t.Run("Scan", func(t *testing.T) {
		testScan(t, rawClient(t, factory))
	})

	t.Run("DeleteRange", func(t *testing.T) {
		testDeleteRange(t, rawClient(t, factory))
	})

	t.Run("CompareAndSwap", func(t *testing.T) {
		testCompareAndSwap(t, rawClient(t, factory))
	})

	t.Run("ConcurrentCompareAndSwap", func(t *testing.T) {
		testConcurrentCompareAndSwap(t, rawClient(t, factory))
	})

	t.Run("CompareAndDelete", func(t *testing.T) {
		testCompareAndDelete(t, rawClient(t, factory))
	})
}

func runTxnTests(t *testing.T, factory DriverFactory) {
	t.Run("TxnIsolation", func(t *testing.T) {
		raw, txns := clients(t, factory)
		testTxnIsolation(t, raw, txns)
	})

	t.Run("TxnReadYourWrites", func(t *testing.T) {
		raw, txns := clients(t, factory)
		testTxnReadYourWrites(t, raw, txns)
	})

	t.Run("TxnRollback", func(t *testing.T) {
		raw, txns := clients(t, factory)
		testTxnRollback(t, raw, txns)
	})

	t.Run("TxnWriteConflict", func(t *testing.T) {
		raw, txns := clients(t, factory)
		testTxnWriteConflict(t, raw, txns)
	})

	t.Run("TxnFinished", func(t *testing.T) {
		_, txns := clients(t, factory)
		testTxnFinished(t, txns)
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func closeDriver(t testing.TB, d kv.IDriver) {
	if c, ok := d.(io.Closer); ok {
		t.Cleanup(func() {
			_ = c.Close()
		})
	}
}

func rawClient(t testing.TB, factory DriverFactory) kv.IRawClient {
	d := factory()
	closeDriver(t, d)
	c, err := d.NewRawClient(context.Background(), nil)
	if err != nil {
		t.Fatalf("Failed to create raw client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func clients(t testing.TB, factory DriverFactory) (kv.IRawClient, kv.ITxnClient) {
	d := factory()
	closeDriver(t, d)
	ctx := context.Background()
	raw, err := d.NewRawClient(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to create raw client: %v", err)
	}
	txns, err := d.NewTxnClient(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to create txn client: %v", err)
	}
	t.Cleanup(func() {
		_ = txns.Close()
		_ = raw.Close()
	})
	return raw, txns
}

func mustGet(t *testing.T, rw kv.IReadWriter, key string) ([]byte, bool) {
	t.Helper()
	v, found, err := rw.Get(context.Background(), []byte(key))
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", key, err)
	}
	return v, found
}

func mustPut(t *testing.T, rw kv.IReadWriter, key, value string) {
	t.Helper()
	if err := rw.Put(context.Background(), []byte(key), []byte(value)); err != nil {
		t.Fatalf("Put(%s) failed: %v", key, err)
	}
}

func begin(t *testing.T, txns kv.ITxnClient) kv.ITxn {
	t.Helper()
	txn, err := txns.Begin(context.Background(), kv.DefaultTxnOptions)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	return txn
}

// --------------------------------------------------------------------------
// Raw client tests
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, c kv.IRawClient) {
	if _, found := mustGet(t, c, "missing"); found {
		t.Errorf("Expected missing key to be absent")
	}

	mustPut(t, c, "test-key", "value1")
	if v, found := mustGet(t, c, "test-key"); !found || string(v) != "value1" {
		t.Errorf("Expected value1, got %q (found=%v)", v, found)
	}

	mustPut(t, c, "test-key", "value2")
	if v, found := mustGet(t, c, "test-key"); !found || string(v) != "value2" {
		t.Errorf("Expected value2, got %q (found=%v)", v, found)
	}
}

func testEmptyValue(t *testing.T, c kv.IRawClient) {
	mustPut(t, c, "empty", "")
	v, found := mustGet(t, c, "empty")
	if !found {
		t.Fatalf("Expected key with empty value to exist")
	}
	if len(v) != 0 {
		t.Errorf("Expected empty value, got %q", v)
	}

	values, err := c.BatchGet(context.Background(), [][]byte{[]byte("empty")})
	if err != nil {
		t.Fatalf("BatchGet failed: %v", err)
	}
	if values[0] == nil {
		t.Errorf("Expected BatchGet to report empty value as present")
	}
}

func testDelete(t *testing.T, c kv.IRawClient) {
	ctx := context.Background()
	if err := c.Delete(ctx, []byte("missing")); err != nil {
		t.Errorf("Deleting a missing key should not fail: %v", err)
	}

	mustPut(t, c, "k", "v")
	if err := c.Delete(ctx, []byte("k")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, found := mustGet(t, c, "k"); found {
		t.Errorf("Expected key to be deleted")
	}

	mustPut(t, c, "k", "again")
	if v, found := mustGet(t, c, "k"); !found || string(v) != "again" {
		t.Errorf("Expected key to be writable after delete, got %q", v)
	}
}

func testBatch(t *testing.T, c kv.IRawClient) {
	ctx := context.Background()
	pairs := []kv.KvPair{
		{Key: []byte("b1"), Value: []byte("v1")},
		{Key: []byte("b2"), Value: []byte("v2")},
		{Key: []byte("b3"), Value: []byte("v3")},
	}
	if err := c.BatchPut(ctx, pairs); err != nil {
		t.Fatalf("BatchPut failed: %v", err)
	}

	keys := [][]byte{[]byte("b3"), []byte("nope"), []byte("b1")}
	values, err := c.BatchGet(ctx, keys)
	if err != nil {
		t.Fatalf("BatchGet failed: %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("Expected 3 values, got %d", len(values))
	}
	if string(values[0]) != "v3" || values[1] != nil || string(values[2]) != "v1" {
		t.Errorf("Unexpected BatchGet result: %q", values)
	}

	if err := c.BatchDelete(ctx, [][]byte{[]byte("b1"), []byte("b2")}); err != nil {
		t.Fatalf("BatchDelete failed: %v", err)
	}
	values, err = c.BatchGet(ctx, [][]byte{[]byte("b1"), []byte("b2"), []byte("b3")})
	if err != nil {
		t.Fatalf("BatchGet failed: %v", err)
	}
	if values[0] != nil || values[1] != nil || string(values[2]) != "v3" {
		t.Errorf("Unexpected BatchGet result after delete: %q", values)
	}
}

func testScan(t *testing.T, c kv.IRawClient) {
	ctx := context.Background()
	for i := 9; i >= 0; i-- {
		mustPut(t, c, fmt.Sprintf("s%d", i), fmt.Sprintf("v%d", i))
	}
	mustPut(t, c, "t0", "other")

	pairs, err := c.Scan(ctx, []byte("s"), []byte("t"), 100)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(pairs) != 10 {
		t.Fatalf("Expected 10 pairs, got %d", len(pairs))
	}
	for i, p := range pairs {
		if string(p.Key) != fmt.Sprintf("s%d", i) || string(p.Value) != fmt.Sprintf("v%d", i) {
			t.Errorf("Unexpected pair %d: %s=%s", i, p.Key, p.Value)
		}
	}

	pairs, err = c.Scan(ctx, []byte("s5"), []byte("t"), 3)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(pairs) != 3 || string(pairs[0].Key) != "s5" || string(pairs[2].Key) != "s7" {
		t.Errorf("Unexpected limited scan: %v", pairs)
	}

	pairs, err = c.Scan(ctx, []byte("s9"), nil, 100)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(pairs) != 2 || string(pairs[1].Key) != "t0" {
		t.Errorf("Expected unbounded scan to reach t0, got %v", pairs)
	}

	for _, limit := range []int{0, -1} {
		pairs, err = c.Scan(ctx, []byte("s"), []byte("t"), limit)
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if len(pairs) != 10 {
			t.Errorf("Expected limit %d to return all 10 pairs, got %d", limit, len(pairs))
		}
	}
}

func testDeleteRange(t *testing.T, c kv.IRawClient) {
	ctx := context.Background()
	for _, k := range []string{"a", "r1", "r2", "r3", "z"} {
		mustPut(t, c, k, k)
	}
	if err := c.DeleteRange(ctx, []byte("r"), []byte("s")); err != nil {
		t.Fatalf("DeleteRange failed: %v", err)
	}
	pairs, err := c.Scan(ctx, []byte("a"), nil, 100)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(pairs) != 2 || string(pairs[0].Key) != "a" || string(pairs[1].Key) != "z" {
		t.Errorf("Expected only a and z to remain, got %v", pairs)
	}
}

func testCompareAndSwap(t *testing.T, c kv.IRawClient) {
	ctx := context.Background()
	key := []byte("cas")

	ok, err := c.CompareAndSwap(ctx, key, nil, false, []byte("v1"))
	if err != nil || !ok {
		t.Fatalf("Expected swap from absent to succeed: ok=%v err=%v", ok, err)
	}

	ok, err = c.CompareAndSwap(ctx, key, nil, false, []byte("v2"))
	if err != nil || ok {
		t.Errorf("Expected swap from absent to fail on existing key: ok=%v err=%v", ok, err)
	}

	ok, err = c.CompareAndSwap(ctx, key, []byte("wrong"), true, []byte("v2"))
	if err != nil || ok {
		t.Errorf("Expected swap with wrong previous value to fail: ok=%v err=%v", ok, err)
	}

	ok, err = c.CompareAndSwap(ctx, key, []byte("v1"), true, []byte("v2"))
	if err != nil || !ok {
		t.Errorf("Expected swap with matching previous value to succeed: ok=%v err=%v", ok, err)
	}
	if v, _ := mustGet(t, c, "cas"); string(v) != "v2" {
		t.Errorf("Expected v2 after swap, got %q", v)
	}

	// an empty value is not the same as an absent key
	ok, err = c.CompareAndSwap(ctx, []byte("member"), nil, false, []byte{})
	if err != nil || !ok {
		t.Fatalf("Expected swap to empty value to succeed: ok=%v err=%v", ok, err)
	}
	ok, err = c.CompareAndSwap(ctx, []byte("member"), nil, false, []byte{})
	if err != nil || ok {
		t.Errorf("Expected second swap from absent to fail: ok=%v err=%v", ok, err)
	}
}

func testCompareAndDelete(t *testing.T, c kv.IRawClient) {
	ctx := context.Background()
	key := []byte("cad")

	ok, err := c.CompareAndDelete(ctx, key, nil)
	if err != nil || ok {
		t.Errorf("Expected delete of absent key to fail: ok=%v err=%v", ok, err)
	}

	mustPut(t, c, "cad", "v1")
	ok, err = c.CompareAndDelete(ctx, key, []byte("v2"))
	if err != nil || ok {
		t.Errorf("Expected delete with wrong value to fail: ok=%v err=%v", ok, err)
	}
	if _, found := mustGet(t, c, "cad"); !found {
		t.Errorf("Expected key to survive a failed delete")
	}

	ok, err = c.CompareAndDelete(ctx, key, []byte("v1"))
	if err != nil || !ok {
		t.Fatalf("Expected delete with matching value to succeed: ok=%v err=%v", ok, err)
	}
	if _, found := mustGet(t, c, "cad"); found {
		t.Errorf("Expected key to be gone after delete")
	}
	values, err := c.BatchGet(ctx, [][]byte{key})
	if err != nil || values[0] != nil {
		t.Errorf("Expected BatchGet to miss the deleted key: %q err=%v", values, err)
	}
	pairs, err := c.Scan(ctx, []byte("cad"), []byte("cae"), 10)
	if err != nil || len(pairs) != 0 {
		t.Errorf("Expected Scan to skip the deleted key: %v err=%v", pairs, err)
	}

	ok, err = c.CompareAndDelete(ctx, key, []byte("v1"))
	if err != nil || ok {
		t.Errorf("Expected second delete to fail: ok=%v err=%v", ok, err)
	}
	ok, err = c.CompareAndSwap(ctx, key, nil, false, []byte("v3"))
	if err != nil || !ok {
		t.Errorf("Expected swap from absent to succeed after delete: ok=%v err=%v", ok, err)
	}

	mustPut(t, c, "cad-empty", "")
	ok, err = c.CompareAndDelete(ctx, []byte("cad-empty"), []byte{})
	if err != nil || !ok {
		t.Errorf("Expected delete of empty value to succeed: ok=%v err=%v", ok, err)
	}
}

func testConcurrentCompareAndSwap(t *testing.T, c kv.IRawClient) {
	const (
		numGoroutines = 8
		increments    = 50
	)
	ctx := context.Background()
	key := []byte("counter")

	var (
		wg    sync.WaitGroup
		fails atomic.Int64
	)
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < increments; {
				prev, found, err := c.Get(ctx, key)
				if err != nil {
					fails.Add(1)
					return
				}
				cur := 0
				if found {
					fmt.Sscanf(string(prev), "%d", &cur)
				}
				ok, err := c.CompareAndSwap(ctx, key, prev, found, []byte(fmt.Sprintf("%d", cur+1)))
				if err != nil {
					if kv.IsTransient(err) {
						continue
					}
					fails.Add(1)
					return
				}
				if ok {
					n++
				}
			}
		}()
	}
	wg.Wait()

	if fails.Load() != 0 {
		t.Fatalf("%d goroutines failed", fails.Load())
	}
	v, _ := mustGet(t, c, "counter")
	if string(v) != fmt.Sprintf("%d", numGoroutines*increments) {
		t.Errorf("Expected counter %d, got %s", numGoroutines*increments, v)
	}
}

// --------------------------------------------------------------------------
// Transaction tests
// --------------------------------------------------------------------------

func testTxnIsolation(t *testing.T, raw kv.IRawClient, txns kv.ITxnClient) {
	ctx := context.Background()
	txn := begin(t, txns)
	mustPut(t, txn, "iso", "uncommitted")

	if _, found := mustGet(t, raw, "iso"); found {
		t.Errorf("Uncommitted write must not be visible outside the transaction")
	}

	if err := txn.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if v, found := mustGet(t, raw, "iso"); !found || string(v) != "uncommitted" {
		t.Errorf("Committed write must be visible, got %q", v)
	}
}

func testTxnReadYourWrites(t *testing.T, raw kv.IRawClient, txns kv.ITxnClient) {
	ctx := context.Background()
	mustPut(t, raw, "p1", "old")
	mustPut(t, raw, "p3", "old")
	mustPut(t, raw, "p5", "old")

	txn := begin(t, txns)
	defer txn.Rollback(ctx)

	mustPut(t, txn, "p2", "new")
	mustPut(t, txn, "p3", "new")
	if err := txn.Delete(ctx, []byte("p5")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if v, found := mustGet(t, txn, "p3"); !found || string(v) != "new" {
		t.Errorf("Expected own write, got %q", v)
	}
	if _, found := mustGet(t, txn, "p5"); found {
		t.Errorf("Expected own delete to hide the key")
	}

	pairs, err := txn.Scan(ctx, []byte("p"), []byte("q"), 10)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	want := []string{"p1=old", "p2=new", "p3=new"}
	if len(pairs) != len(want) {
		t.Fatalf("Expected %v, got %v", want, pairs)
	}
	for i, p := range pairs {
		if got := string(p.Key) + "=" + string(p.Value); got != want[i] {
			t.Errorf("Pair %d: expected %s, got %s", i, want[i], got)
		}
	}

	pairs, err = txn.Scan(ctx, []byte("p"), []byte("q"), 2)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(pairs) != 2 || string(pairs[1].Key) != "p2" {
		t.Errorf("Expected limited merged scan to end at p2, got %v", pairs)
	}

	pairs, err = txn.Scan(ctx, []byte("p"), []byte("q"), 0)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(pairs) != len(want) {
		t.Errorf("Expected unlimited merged scan to return %v, got %v", want, pairs)
	}

	ok, err := txn.CompareAndDelete(ctx, []byte("p1"), []byte("stale"))
	if err != nil || ok {
		t.Errorf("Expected CompareAndDelete with wrong value to fail: ok=%v err=%v", ok, err)
	}
	ok, err = txn.CompareAndDelete(ctx, []byte("p1"), []byte("old"))
	if err != nil || !ok {
		t.Errorf("Expected CompareAndDelete to succeed: ok=%v err=%v", ok, err)
	}
	if _, found := mustGet(t, txn, "p1"); found {
		t.Errorf("Expected own CompareAndDelete to hide the key")
	}

	ok, err = txn.CompareAndSwap(ctx, []byte("p2"), []byte("new"), true, []byte("newer"))
	if err != nil || !ok {
		t.Errorf("Expected CAS on own write to succeed: ok=%v err=%v", ok, err)
	}
}

func testTxnRollback(t *testing.T, raw kv.IRawClient, txns kv.ITxnClient) {
	ctx := context.Background()
	mustPut(t, raw, "rb", "original")

	txn := begin(t, txns)
	mustPut(t, txn, "rb", "changed")
	if err := txn.Rollback(ctx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if v, _ := mustGet(t, raw, "rb"); !bytes.Equal(v, []byte("original")) {
		t.Errorf("Rollback must leave the key unchanged, got %q", v)
	}
}

func testTxnWriteConflict(t *testing.T, raw kv.IRawClient, txns kv.ITxnClient) {
	ctx := context.Background()
	mustPut(t, raw, "wc", "0")

	first := begin(t, txns)
	second, err := txns.Begin(ctx, kv.TxnOptions{})
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	mustGet(t, first, "wc")
	mustGet(t, second, "wc")
	mustPut(t, first, "wc", "1")
	mustPut(t, second, "wc", "2")

	if err := first.Commit(ctx); err != nil {
		t.Fatalf("First commit failed: %v", err)
	}
	err = second.Commit(ctx)
	if err == nil {
		t.Fatalf("Expected second commit to conflict")
	}
	if !kv.IsTransient(err) {
		t.Errorf("Expected conflict to be transient, got %v", err)
	}
	if v, _ := mustGet(t, raw, "wc"); string(v) != "1" {
		t.Errorf("Expected first writer to win, got %q", v)
	}
}

func testTxnFinished(t *testing.T, txns kv.ITxnClient) {
	ctx := context.Background()
	txn := begin(t, txns)
	mustPut(t, txn, "f", "v")
	if err := txn.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := txn.Put(ctx, []byte("f"), []byte("again")); err == nil {
		t.Errorf("Expected write on a committed transaction to fail")
	}
	if txn.ID() == "" {
		t.Errorf("Expected transaction to have an id")
	}
}

// Package testing provides standardised tests and benchmarks for
// backend drivers that satisfy the kv.IDriver interface.
//
// The package contains:
//   - testing: A conformance suite for raw clients and transactions
//   - benchmark: Performance tests for the primitive operations used by the engines
//
// Example usage:
//
//	factory := func() kv.IDriver {
//		return memkv.NewDriver()
//	}
//
//	kvtesting.RunBackendTests(t, "memory", factory)
//	kvtesting.RunBackendBenchmarks(b, "memory", factory)
//
// Drivers that also implement io.Closer are closed when a test finishes.
package testing

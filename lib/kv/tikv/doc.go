// Package tikv connects the backend interfaces to a TiKV cluster.
//
// Raw operations use the rawkv client with atomic CAS mode enabled, so that
// CompareAndSwap is linearizable with every other raw write. Transactions use
// txnkv. The pessimistic, async-commit and 1PC options are applied to each
// transaction as it starts. In pessimistic mode every written key is locked
// before it is read or changed.
//
// TiKV rejects empty values, so every value is stored behind a one byte
// header. The header is added and removed by this package and never visible
// to callers. Raw CompareAndDelete swaps the value for a one byte tombstone,
// which raw reads and scans treat as a missing key.
package tikv

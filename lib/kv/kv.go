package kv

import "context"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMemory Implementation = "memory"
	ImplBadger Implementation = "badger"
	ImplRaft   Implementation = "raft"
	ImplTiKV   Implementation = "tikv"
)

// Feature represents backend capabilities as bit flags
type Feature uint64

const (
	FeaturePessimistic Feature = 1 << iota // Transactions can take pessimistic locks
	FeatureAsyncCommit                     // Transactions can use async commit
	FeatureOnePC                           // Transactions can commit in a single phase
	FeaturePersistent                      // Data survives a process restart
	FeatureReplicated                      // Data is replicated across nodes
)

func (f Feature) String() string {
	switch f {
	case FeaturePessimistic:
		return "Pessimistic"
	case FeatureAsyncCommit:
		return "AsyncCommit"
	case FeatureOnePC:
		return "OnePC"
	case FeaturePersistent:
		return "Persistent"
	case FeatureReplicated:
		return "Replicated"
	default:
		return "Unknown"
	}
}

// DriverInfo describes a backend driver.
type DriverInfo struct {
	Impl     Implementation `json:"impl"`
	Features Feature        `json:"features"`
}

// Supports reports whether all given features are supported.
func (i DriverInfo) Supports(f Feature) bool {
	return i.Features&f == f
}

// KvPair is a physical key together with its value.
type KvPair struct {
	Key   []byte
	Value []byte
}

// TxnOptions are the optimizations requested when a transaction is started.
// Backends that do not support an option ignore it.
type TxnOptions struct {
	Pessimistic bool
	AsyncCommit bool
	OnePC       bool
}

// DefaultTxnOptions enables every optimization.
var DefaultTxnOptions = TxnOptions{Pessimistic: true, AsyncCommit: true, OnePC: true}

// MaxScanLimit is the largest page requested by a single scan.
const MaxScanLimit = 10200

// --------------------------------------------------------------------------
// Interface Definitions
// --------------------------------------------------------------------------

// IReadWriter is the set of primitive operations shared by raw clients and transactions.
// Missing keys are never an error: Get reports found=false and BatchGet returns nil entries.
type IReadWriter interface {
	// Get returns the value for a key. The boolean return value indicates whether the key exists.
	Get(ctx context.Context, key []byte) (value []byte, found bool, err error)
	// BatchGet returns the values for the given keys in input order. Missing keys yield nil.
	BatchGet(ctx context.Context, keys [][]byte) (values [][]byte, err error)
	// Put inserts or overwrites a key.
	Put(ctx context.Context, key, value []byte) error
	// BatchPut writes all pairs. Outside a transaction the batch is not atomic on every backend.
	BatchPut(ctx context.Context, pairs []KvPair) error
	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key []byte) error
	// BatchDelete removes all given keys.
	BatchDelete(ctx context.Context, keys [][]byte) error
	// DeleteRange removes all keys in [start, end).
	DeleteRange(ctx context.Context, start, end []byte) error
	// Scan returns up to limit pairs in [start, end) in ascending key order.
	// A nil end means the scan is unbounded. A limit <= 0 returns every pair.
	Scan(ctx context.Context, start, end []byte, limit int) ([]KvPair, error)
	// CompareAndSwap sets key to next if its current value equals prev.
	// If prevExists is false the swap only succeeds when the key is absent.
	CompareAndSwap(ctx context.Context, key, prev []byte, prevExists bool, next []byte) (swapped bool, err error)
	// CompareAndDelete removes key if its current value equals prev.
	// A missing key is never deleted.
	CompareAndDelete(ctx context.Context, key, prev []byte) (deleted bool, err error)
}

// IRawClient is a long-lived, non transactional client.
type IRawClient interface {
	IReadWriter
	Close() error
}

// ITxn is an open transaction. Writes become visible to others on Commit.
type ITxn interface {
	IReadWriter
	// ID is a unique id of the transaction, used for logging.
	ID() string
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ITxnClient is a transactional client handle able to start transactions.
type ITxnClient interface {
	Begin(ctx context.Context, opts TxnOptions) (ITxn, error)
	Close() error
}

// IDriver creates backend clients for a list of backend addresses.
type IDriver interface {
	Info() DriverInfo
	NewRawClient(ctx context.Context, addrs []string) (IRawClient, error)
	NewTxnClient(ctx context.Context, addrs []string) (ITxnClient, error)
}

// Package raftkv implements a replicated backend on top of dragonboat.
//
// Every replica runs a StateMachine over a memkv.Engine. Writes are serialized
// into the raft log with SyncPropose, reads are answered by the local replica
// with SyncRead which guarantees linearizability.
//
// Transactions are buffered on the client side (kv.BufferedTxn). Begin reads
// the current write index of the shard, Commit proposes all buffered writes as
// a single CommitTxn entry. The state machine rejects the entry if any key was
// written after the start index, which surfaces as kv.ErrWriteConflict.
//
// Since the write index is the raft log index, all replicas take the same
// decision for every commit.
package raftkv

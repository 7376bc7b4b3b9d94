// Package types implements the logical data types on top of the flat key
// space of a backend.
//
// The engines (Strings, Hashes, Sets, Lists) are stateless. Every operation
// receives the kv.IReadWriter to run on, which is either a transaction or a
// raw client handed out by the txn.Manager. Keys are laid out by the codec
// package.
//
// Lists are the only type with shared mutable state: a bounds record (l, r)
// per list. Push and pop change it with compare and swap and afterwards only
// touch element indices that the winning swap reserved for them, so concurrent
// pushers and poppers never need a lock. Atomic counters (IncrBy) use the same
// compare and swap loop on the string value itself.
package types

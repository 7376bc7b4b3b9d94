// Package pool keeps the backend clients of one store.
//
// A pool owns a single long-lived raw client that is shared by every caller,
// and a free-list of transactional clients. A transactional client is either
// idle in the free-list or checked out to exactly one transaction:
//
//	c, err := p.Get(ctx)  // idle client or a fresh one
//	txn, err := c.Begin(ctx, kv.DefaultTxnOptions)
//	...
//	p.Put(c)              // back to the free-list, or closed
//
// Only taking a client from and returning it to the free-list is guarded by
// the pool mutex. Using a checked out client needs no locking.
package pool

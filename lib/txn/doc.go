// Package txn maps sessions to backend transactions and retries transient
// backend errors.
//
// # Sessions
//
// A session (SessionID) owns at most one explicit transaction at a time.
// Begin checks a client out of the pool and starts a transaction, Commit and
// Rollback finish it and return the client. Between the two every operation
// of the session runs inside that transaction and is never committed
// implicitly.
//
// Operations of a session without an explicit transaction are implicit. In
// txn mode they run in a private transaction that is committed right away and
// replayed if the commit loses a write conflict. In raw mode they run on the
// shared raw client and are not atomic.
//
// A session is used by one goroutine at a time. The session map is the only
// shared state and is a concurrent map.
//
// # Retries
//
// RetryPolicy implements capped exponential backoff with jitter bounded by a
// wall-clock deadline. Every primitive backend call made through a Manager is
// retried while the backend reports a transient error. Once the deadline is
// reached the last error is returned wrapped in ErrBackendTransient.
package txn

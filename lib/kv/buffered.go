package kv

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"
	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Mutations
// --------------------------------------------------------------------------

type MutationOp uint8

const (
	OpPut MutationOp = iota
	OpDelete
)

// Mutation is a single buffered write of a transaction.
type Mutation struct {
	Op    MutationOp
	Key   []byte
	Value []byte
}

func lessMutation(a, b Mutation) bool {
	return bytes.Compare(a.Key, b.Key) < 0
}

// ICommittedReader reads the latest committed state of a backend.
type ICommittedReader interface {
	Get(ctx context.Context, key []byte) (value []byte, found bool, err error)
	Scan(ctx context.Context, start, end []byte, limit int) ([]KvPair, error)
}

// CommitFunc applies all mutations atomically. It must fail with ErrWriteConflict
// if any mutated key was committed by someone else after startVersion.
type CommitFunc func(ctx context.Context, startVersion uint64, mutations []Mutation) error

// --------------------------------------------------------------------------
// Buffered Transaction
// --------------------------------------------------------------------------

// BufferedTxn is a client side optimistic transaction for backends without
// native transactions. Writes are buffered in an ordered tree and merged
// into every read. On commit the buffer is handed to the CommitFunc together
// with the version observed when the transaction started.
type BufferedTxn struct {
	id           string
	startVersion uint64
	reader       ICommittedReader
	commit       CommitFunc

	mu     sync.Mutex
	writes *btree.BTreeG[Mutation]
	done   bool
}

// NewBufferedTxn creates a transaction reading from reader that started at startVersion.
func NewBufferedTxn(startVersion uint64, reader ICommittedReader, commit CommitFunc) *BufferedTxn {
	return &BufferedTxn{
		id:           uuid.NewString(),
		startVersion: startVersion,
		reader:       reader,
		commit:       commit,
		writes:       btree.NewG[Mutation](16, lessMutation),
	}
}

func (t *BufferedTxn) ID() string { return t.id }

// StartVersion returns the committed version the transaction started at.
func (t *BufferedTxn) StartVersion() uint64 { return t.startVersion }

// lookup returns the buffered mutation for key. The caller must hold t.mu.
func (t *BufferedTxn) lookup(key []byte) (Mutation, bool) {
	return t.writes.Get(Mutation{Key: key})
}

func (t *BufferedTxn) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil, false, ErrTxnClosed
	}
	m, ok := t.lookup(key)
	t.mu.Unlock()
	if ok {
		if m.Op == OpDelete {
			return nil, false, nil
		}
		return m.Value, true, nil
	}
	return t.reader.Get(ctx, key)
}

func (t *BufferedTxn) BatchGet(ctx context.Context, keys [][]byte) ([][]byte, error) {
	values := make([][]byte, len(keys))
	for i, k := range keys {
		v, found, err := t.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if found {
			values[i] = NonNil(v)
		}
	}
	return values, nil
}

func (t *BufferedTxn) buffer(m Mutation) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxnClosed
	}
	m.Key = bytes.Clone(m.Key)
	m.Value = bytes.Clone(m.Value)
	t.writes.ReplaceOrInsert(m)
	return nil
}

func (t *BufferedTxn) Put(_ context.Context, key, value []byte) error {
	return t.buffer(Mutation{Op: OpPut, Key: key, Value: NonNil(value)})
}

func (t *BufferedTxn) BatchPut(ctx context.Context, pairs []KvPair) error {
	for _, p := range pairs {
		if err := t.Put(ctx, p.Key, p.Value); err != nil {
			return err
		}
	}
	return nil
}

func (t *BufferedTxn) Delete(_ context.Context, key []byte) error {
	return t.buffer(Mutation{Op: OpDelete, Key: key})
}

func (t *BufferedTxn) BatchDelete(ctx context.Context, keys [][]byte) error {
	for _, k := range keys {
		if err := t.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// DeleteRange buffers a delete for every key visible in [start, end).
func (t *BufferedTxn) DeleteRange(ctx context.Context, start, end []byte) error {
	for {
		pairs, err := t.Scan(ctx, start, end, MaxScanLimit)
		if err != nil {
			return err
		}
		for _, p := range pairs {
			if err := t.Delete(ctx, p.Key); err != nil {
				return err
			}
		}
		if len(pairs) < MaxScanLimit {
			return nil
		}
		start = NextKey(pairs[len(pairs)-1].Key)
	}
}

// Scan merges the buffered writes in [start, end) into the committed state.
func (t *BufferedTxn) Scan(ctx context.Context, start, end []byte, limit int) ([]KvPair, error) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil, ErrTxnClosed
	}
	var local []Mutation
	t.writes.AscendGreaterOrEqual(Mutation{Key: start}, func(m Mutation) bool {
		if end != nil && bytes.Compare(m.Key, end) >= 0 {
			return false
		}
		local = append(local, m)
		return true
	})
	t.mu.Unlock()

	// every buffered delete hides at most one committed key
	readLimit := 0
	if limit > 0 {
		readLimit = limit + len(local)
	}
	committed, err := t.reader.Scan(ctx, start, end, readLimit)
	if err != nil {
		return nil, err
	}

	total := len(committed) + len(local)
	if limit <= 0 || limit > total {
		limit = total
	}
	out := make([]KvPair, 0, limit)
	i, j := 0, 0
	for len(out) < limit && (i < len(committed) || j < len(local)) {
		var cmp int
		switch {
		case j >= len(local):
			cmp = -1
		case i >= len(committed):
			cmp = 1
		default:
			cmp = bytes.Compare(committed[i].Key, local[j].Key)
		}
		switch {
		case cmp < 0:
			out = append(out, committed[i])
			i++
		case cmp > 0:
			if local[j].Op == OpPut {
				out = append(out, KvPair{Key: local[j].Key, Value: local[j].Value})
			}
			j++
		default:
			if local[j].Op == OpPut {
				out = append(out, KvPair{Key: local[j].Key, Value: local[j].Value})
			}
			i++
			j++
		}
	}
	return out, nil
}

// CompareAndSwap compares against the transaction view. Concurrent writers
// are detected when the transaction commits.
func (t *BufferedTxn) CompareAndSwap(ctx context.Context, key, prev []byte, prevExists bool, next []byte) (bool, error) {
	cur, found, err := t.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if found != prevExists || (found && !bytes.Equal(cur, prev)) {
		return false, nil
	}
	return true, t.Put(ctx, key, next)
}

// CompareAndDelete compares against the transaction view like CompareAndSwap.
func (t *BufferedTxn) CompareAndDelete(ctx context.Context, key, prev []byte) (bool, error) {
	cur, found, err := t.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found || !bytes.Equal(cur, prev) {
		return false, nil
	}
	return true, t.Delete(ctx, key)
}

// Mutations returns the buffered writes in key order.
func (t *BufferedTxn) Mutations() []Mutation {
	t.mu.Lock()
	defer t.mu.Unlock()
	muts := make([]Mutation, 0, t.writes.Len())
	t.writes.Ascend(func(m Mutation) bool {
		muts = append(muts, m)
		return true
	})
	return muts
}

func (t *BufferedTxn) Commit(ctx context.Context) error {
	muts := t.Mutations()
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return ErrTxnClosed
	}
	t.done = true
	t.mu.Unlock()

	if len(muts) == 0 {
		return nil
	}
	return t.commit(ctx, t.startVersion, muts)
}

func (t *BufferedTxn) Rollback(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxnClosed
	}
	t.done = true
	t.writes.Clear(false)
	return nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// NextKey returns the smallest key sorting after k.
func NextKey(k []byte) []byte {
	next := make([]byte, len(k)+1)
	copy(next, k)
	return next
}

// NonNil turns a nil value of an existing key into an empty slice.
func NonNil(v []byte) []byte {
	if v == nil {
		return []byte{}
	}
	return v
}

package types

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/ValentinKolb/dStruct/lib/codec"
	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/ValentinKolb/dStruct/lib/txn"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("types")

// Direction selects the end of a list.
type Direction uint8

const (
	Left  Direction = iota // head
	Right                  // tail
)

func (d Direction) String() string {
	if d == Left {
		return "left"
	}
	return "right"
}

// Lists implements double ended lists on a bounds record plus one key per element.
//
// Every successful bounds update bumps the generation of the record, and
// every element value carries the generation of the push that reserved its
// index. An index is only freed once its value is written, so inside the
// bounds a key is either missing (its push is still writing) or holds the
// current element. Values left outside the bounds are stale and are removed
// with CompareAndDelete, which the stamp keeps from hitting a newer push to
// the same index.
type Lists struct {
	engine
}

// NewLists creates the list engine.
func NewLists(c *codec.Codec, policy txn.RetryPolicy) *Lists {
	return &Lists{engine{codec: c, policy: policy}}
}

// bounds reads the bounds record of key. prev and found are the raw state for a following CAS.
func (e *Lists) bounds(ctx context.Context, h kv.IReadWriter, key string) (prev []byte, found bool, b codec.Bounds, err error) {
	prev, found, err = h.Get(ctx, e.codec.EncodeListMeta(key))
	if err != nil {
		return nil, false, b, err
	}
	if !found {
		prev = nil
	}
	b, err = codec.DecodeBounds(prev)
	if err != nil {
		return nil, false, b, fmt.Errorf("list %q: %w", key, err)
	}
	return prev, found, b, nil
}

// unchanged reports whether the bounds record still holds prev.
func (e *Lists) unchanged(ctx context.Context, h kv.IReadWriter, key string, prev []byte, found bool) (bool, error) {
	cur, ok, err := h.Get(ctx, e.codec.EncodeListMeta(key))
	if err != nil {
		return false, err
	}
	return ok == found && bytes.Equal(cur, prev), nil
}

func (e *Lists) elementRange(key string, from, to int64) ([]byte, []byte) {
	return e.codec.EncodeListElement(key, from), e.codec.EncodeListElement(key, to)
}

// payload strips the stamp of a stored element value.
func payload(key string, v []byte) ([]byte, error) {
	_, p, err := codec.DecodeListValue(v)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", key, err)
	}
	return p, nil
}

// readRange returns the payloads of the elements in [from, to) in index order.
func (e *Lists) readRange(ctx context.Context, h kv.IReadWriter, key string, from, to int64) ([][]byte, error) {
	if from >= to {
		return nil, nil
	}
	start, end := e.elementRange(key, from, to)
	out := make([][]byte, 0, to-from)
	var decErr error
	err := scanAll(ctx, h, start, end, int(to-from), func(p kv.KvPair) bool {
		v, err := payload(key, p.Value)
		if err != nil {
			decErr = err
			return false
		}
		out = append(out, v)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decErr
}

// readWritten returns the stored pairs in [from, to). ok is false while any
// of them is not written yet.
func (e *Lists) readWritten(ctx context.Context, h kv.IReadWriter, key string, from, to int64) (pairs []kv.KvPair, ok bool, err error) {
	if from >= to {
		return nil, true, nil
	}
	start, end := e.elementRange(key, from, to)
	err = scanAll(ctx, h, start, end, int(to-from), func(p kv.KvPair) bool {
		pairs = append(pairs, p)
		return true
	})
	if err != nil {
		return nil, false, err
	}
	if int64(len(pairs)) != to-from {
		log.Debugf("list %q: %d of %d elements in [%d, %d) not written yet", key, to-from-int64(len(pairs)), to-from, from, to)
		return nil, false, nil
	}
	return pairs, true, nil
}

// release removes freed element keys unless their value was replaced in the meantime.
func (e *Lists) release(ctx context.Context, h kv.IReadWriter, pairs []kv.KvPair) error {
	for _, p := range pairs {
		if _, err := h.CompareAndDelete(ctx, p.Key, p.Value); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Push & Pop
// --------------------------------------------------------------------------

// Push adds elems to one end of the list and returns the new length.
//
// Pushing a, b, c to the left yields c, b, a at the head. Pushing them to
// the right appends a, b, c in order.
func (e *Lists) Push(ctx context.Context, h kv.IReadWriter, key string, elems [][]byte, dir Direction) (int64, error) {
	n := int64(len(elems))
	if n == 0 {
		return 0, fmt.Errorf("%w: push needs at least one element", ErrArgument)
	}
	meta := e.codec.EncodeListMeta(key)

	var indices []int64
	var next codec.Bounds
	err := e.policy.DoCAS(ctx, func(ctx context.Context) (bool, error) {
		prev, found, b, err := e.bounds(ctx, h, key)
		if err != nil {
			return false, err
		}
		indices = indices[:0]
		switch dir {
		case Left:
			if b.L < math.MinInt64+n {
				return false, fmt.Errorf("%w: list %q cannot grow further to the left", ErrArgument, key)
			}
			for i := int64(0); i < n; i++ {
				indices = append(indices, b.L-1-i)
			}
			next = b.Next(b.L-n, b.R)
		default:
			if b.R > math.MaxInt64-n {
				return false, fmt.Errorf("%w: list %q cannot grow further to the right", ErrArgument, key)
			}
			for i := int64(0); i < n; i++ {
				indices = append(indices, b.R+i)
			}
			next = b.Next(b.L, b.R+n)
		}
		if err := e.clearStale(ctx, h, key, indices, prev, found); err != nil {
			return false, err
		}
		return h.CompareAndSwap(ctx, meta, prev, found, codec.EncodeBounds(next))
	})
	if err != nil {
		return 0, err
	}

	// the reserved indices belong to this call alone
	pairs := make([]kv.KvPair, n)
	for i, idx := range indices {
		pairs[i] = kv.KvPair{Key: e.codec.EncodeListElement(key, idx), Value: codec.EncodeListValue(next.Gen, elems[i])}
	}
	if err := h.BatchPut(ctx, pairs); err != nil {
		return 0, err
	}
	return next.Len(), nil
}

// clearStale removes values left at indices outside the bounds prev, before
// a push reserves them. A value is only known to be stale if the bounds did
// not move while it was read.
func (e *Lists) clearStale(ctx context.Context, h kv.IReadWriter, key string, indices []int64, prev []byte, found bool) error {
	keys := make([][]byte, len(indices))
	for i, idx := range indices {
		keys[i] = e.codec.EncodeListElement(key, idx)
	}
	values, err := h.BatchGet(ctx, keys)
	if err != nil {
		return err
	}
	var stale []kv.KvPair
	for i, v := range values {
		if v != nil {
			stale = append(stale, kv.KvPair{Key: keys[i], Value: v})
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if ok, err := e.unchanged(ctx, h, key, prev, found); err != nil || !ok {
		return err
	}
	log.Debugf("list %q: removing %d stale elements", key, len(stale))
	return e.release(ctx, h, stale)
}

// Pop removes up to count elements from one end and returns them in index
// order. An empty list yields nil.
func (e *Lists) Pop(ctx context.Context, h kv.IReadWriter, key string, count int64, dir Direction) ([][]byte, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: pop count must not be negative, got %d", ErrArgument, count)
	}
	if count == 0 {
		return nil, nil
	}
	meta := e.codec.EncodeListMeta(key)

	var popped []kv.KvPair
	empty := false
	err := e.policy.DoCAS(ctx, func(ctx context.Context) (bool, error) {
		prev, found, b, err := e.bounds(ctx, h, key)
		if err != nil {
			return false, err
		}
		n := min(count, b.Len())
		if n == 0 {
			empty = true
			return true, nil
		}
		var from, to int64
		var next codec.Bounds
		switch dir {
		case Left:
			from, to = b.L, b.L+n
			next = b.Next(b.L+n, b.R)
		default:
			from, to = b.R-n, b.R
			next = b.Next(b.L, b.R-n)
		}

		// the values are read before the bounds move, a pusher that reserved
		// these indices may still be writing them
		var ok bool
		popped, ok, err = e.readWritten(ctx, h, key, from, to)
		if err != nil || !ok {
			return false, err
		}
		return h.CompareAndSwap(ctx, meta, prev, found, codec.EncodeBounds(next))
	})
	if err != nil || empty {
		return nil, err
	}

	if err := e.release(ctx, h, popped); err != nil {
		return nil, err
	}
	values := make([][]byte, len(popped))
	for i, p := range popped {
		if values[i], err = payload(key, p.Value); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// Len returns the number of elements.
func (e *Lists) Len(ctx context.Context, h kv.IReadWriter, key string) (int64, error) {
	_, _, b, err := e.bounds(ctx, h, key)
	if err != nil {
		return 0, err
	}
	return b.Len(), nil
}

// Range returns the elements between start and stop.
//
// A negative start counts from the tail. stop is inclusive and a negative
// stop counts from the tail as well. A stop of 0 selects nothing.
func (e *Lists) Range(ctx context.Context, h kv.IReadWriter, key string, start, stop int64) ([][]byte, error) {
	_, _, b, err := e.bounds(ctx, h, key)
	if err != nil {
		return nil, err
	}
	l, r := b.L, b.R
	if start < 0 {
		start = max(r-l+start, 0)
	}

	var num int64
	switch {
	case stop > 0:
		num = min(stop-start, r-l) + 1
	case stop < 0:
		num = r + stop - l + 1
	}
	if num <= 0 {
		return nil, nil
	}
	from := max(l+start, l)
	to := min(l+start+num, r)
	return e.readRange(ctx, h, key, from, to)
}

// Index returns the element at i. A negative i counts from the tail.
func (e *Lists) Index(ctx context.Context, h kv.IReadWriter, key string, i int64) ([]byte, bool, error) {
	_, _, b, err := e.bounds(ctx, h, key)
	if err != nil {
		return nil, false, err
	}
	pos := b.L + i
	if i < 0 {
		pos = b.R + i
	}
	if pos < b.L || pos >= b.R {
		return nil, false, nil
	}
	v, found, err := h.Get(ctx, e.codec.EncodeListElement(key, pos))
	if err != nil || !found {
		return nil, false, err
	}
	v, err = payload(key, v)
	return v, err == nil, err
}

// Pos returns the position of the first element equal to elem.
func (e *Lists) Pos(ctx context.Context, h kv.IReadWriter, key string, elem []byte) (int64, bool, error) {
	_, _, b, err := e.bounds(ctx, h, key)
	if err != nil || b.Len() == 0 {
		return 0, false, err
	}
	start, end := e.elementRange(key, b.L, b.R)
	var (
		pos    int64
		hit    bool
		decErr error
	)
	err = scanAll(ctx, h, start, end, 0, func(p kv.KvPair) bool {
		v, err := payload(key, p.Value)
		if err != nil {
			decErr = err
			return false
		}
		if !bytes.Equal(v, elem) {
			return true
		}
		idx, err := e.codec.DecodeListElement(key, p.Key)
		if err != nil {
			decErr = err
			return false
		}
		pos, hit = idx-b.L, true
		return false
	})
	if err != nil {
		return 0, false, err
	}
	if decErr != nil {
		return 0, false, decErr
	}
	return pos, hit, nil
}

// --------------------------------------------------------------------------
// Delete & Trim
// --------------------------------------------------------------------------

// Delete removes all elements of the list. It returns 1 if the list had any.
//
// The bounds record stays behind at the sentinel so its generation keeps
// counting.
func (e *Lists) Delete(ctx context.Context, h kv.IReadWriter, key string) (int64, error) {
	meta := e.codec.EncodeListMeta(key)

	var freed []kv.KvPair
	empty := false
	err := e.policy.DoCAS(ctx, func(ctx context.Context) (bool, error) {
		prev, found, b, err := e.bounds(ctx, h, key)
		if err != nil {
			return false, err
		}
		if b.Len() == 0 {
			empty = true
			return true, nil
		}
		var ok bool
		freed, ok, err = e.readWritten(ctx, h, key, b.L, b.R)
		if err != nil || !ok {
			return false, err
		}
		return h.CompareAndSwap(ctx, meta, prev, found, codec.EncodeBounds(b.Next(b.R, b.R)))
	})
	if err != nil || empty {
		return 0, err
	}
	if err := e.release(ctx, h, freed); err != nil {
		return 0, err
	}
	return 1, nil
}

// Trim keeps only the elements between start and stop, both inclusive.
// Negative offsets count from the tail. An empty window empties the list.
func (e *Lists) Trim(ctx context.Context, h kv.IReadWriter, key string, start, stop int64) error {
	meta := e.codec.EncodeListMeta(key)

	var freed []kv.KvPair
	unchanged := false
	err := e.policy.DoCAS(ctx, func(ctx context.Context) (bool, error) {
		prev, found, b, err := e.bounds(ctx, h, key)
		if err != nil {
			return false, err
		}
		nl, nr := trimWindow(b.L, b.R, start, stop)
		if nl == b.L && nr == b.R {
			unchanged = true
			return true, nil
		}
		head, ok, err := e.readWritten(ctx, h, key, b.L, nl)
		if err != nil || !ok {
			return false, err
		}
		tail, ok, err := e.readWritten(ctx, h, key, nr, b.R)
		if err != nil || !ok {
			return false, err
		}
		freed = append(head, tail...)
		return h.CompareAndSwap(ctx, meta, prev, found, codec.EncodeBounds(b.Next(nl, nr)))
	})
	if err != nil || unchanged {
		return err
	}
	return e.release(ctx, h, freed)
}

// trimWindow resolves inclusive start and stop offsets against [l, r).
// An empty window collapses to (r, r).
func trimWindow(l, r, start, stop int64) (int64, int64) {
	n := r - l
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	start = max(start, 0)
	if start > stop || start >= n {
		return r, r
	}
	stop = min(stop, n-1)
	return l + start, l + stop + 1
}

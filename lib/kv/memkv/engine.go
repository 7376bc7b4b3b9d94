package memkv

import (
	"bufio"
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/google/btree"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum      = "DSTRUCTM" // File format identifier
	engineVersion = 1          // Snapshot format version

	btreeDegree = 32

	// DefaultTombstoneRetention is the number of write indices a tombstone is kept for.
	DefaultTombstoneRetention = 1 << 14
)

// entry is a single versioned key. Deleted keys stay in the tree as
// tombstones so that write conflicts on deleted keys can be detected.
type entry struct {
	key       []byte
	value     []byte
	index     uint64 // write index of the last modification
	tombstone bool
}

func lessEntry(a, b entry) bool {
	return bytes.Compare(a.key, b.key) < 0
}

type tombstoneRef struct {
	key   []byte
	index uint64
}

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

// Engine is an ordered, versioned in-memory key-value engine.
//
// Every write carries a write index used as logical timestamp. A write index
// of 0 means "next index", which is what standalone callers use. Replicated
// callers pass the raft log index so that all replicas end up with the same
// versions.
//
// Thread-safety: all methods are safe for concurrent use.
type Engine struct {
	mu        sync.RWMutex
	tree      *btree.BTreeG[entry]
	live      int
	writeIdx  uint64
	purgedIdx uint64 // tombstones with index <= purgedIdx were dropped

	tombstones []tombstoneRef // ordered by index
	retention  uint64
}

// NewEngine creates an empty engine.
func NewEngine() *Engine {
	return &Engine{
		tree:      btree.NewG[entry](btreeDegree, lessEntry),
		retention: DefaultTombstoneRetention,
	}
}

// SetTombstoneRetention changes how many write indices a tombstone is kept for.
func (e *Engine) SetTombstoneRetention(n uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retention = max(n, 1)
}

// advance moves the write index forward and returns the index of the current write.
// The caller must hold e.mu.
func (e *Engine) advance(writeIdx uint64) uint64 {
	if writeIdx == 0 {
		writeIdx = e.writeIdx + 1
	}
	if writeIdx > e.writeIdx {
		e.writeIdx = writeIdx
	}
	e.compact()
	return writeIdx
}

// compact drops tombstones that are older than the retention window.
// The caller must hold e.mu.
func (e *Engine) compact() {
	if e.writeIdx <= e.retention {
		return
	}
	threshold := e.writeIdx - e.retention
	n := 0
	for n < len(e.tombstones) && e.tombstones[n].index <= threshold {
		ref := e.tombstones[n]
		if cur, ok := e.tree.Get(entry{key: ref.key}); ok && cur.tombstone && cur.index == ref.index {
			e.tree.Delete(cur)
		}
		n++
	}
	if n > 0 {
		e.tombstones = e.tombstones[n:]
		e.purgedIdx = threshold
	}
}

// WriteIdx returns the index of the last write.
func (e *Engine) WriteIdx() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.writeIdx
}

// Len returns the number of live keys.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.live
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns a copy of the value of key.
func (e *Engine) Get(key []byte) ([]byte, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cur, ok := e.tree.Get(entry{key: key})
	if !ok || cur.tombstone {
		return nil, false
	}
	return bytes.Clone(kv.NonNil(cur.value)), true
}

// Scan returns up to limit live pairs in [start, end). A nil end is unbounded.
func (e *Engine) Scan(start, end []byte, limit int) []kv.KvPair {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []kv.KvPair
	e.tree.AscendGreaterOrEqual(entry{key: start}, func(cur entry) bool {
		if end != nil && bytes.Compare(cur.key, end) >= 0 {
			return false
		}
		if cur.tombstone {
			return true
		}
		out = append(out, kv.KvPair{Key: bytes.Clone(cur.key), Value: bytes.Clone(kv.NonNil(cur.value))})
		return limit <= 0 || len(out) < limit
	})
	return out
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// set stores a live value. The caller must hold e.mu.
func (e *Engine) set(key, value []byte, idx uint64) {
	old, replaced := e.tree.ReplaceOrInsert(entry{key: bytes.Clone(key), value: bytes.Clone(kv.NonNil(value)), index: idx})
	if !replaced || old.tombstone {
		e.live++
	}
}

// remove replaces a live key with a tombstone. The caller must hold e.mu.
func (e *Engine) remove(key []byte, idx uint64) {
	cur, ok := e.tree.Get(entry{key: key})
	if !ok || cur.tombstone {
		return
	}
	k := bytes.Clone(key)
	e.tree.ReplaceOrInsert(entry{key: k, index: idx, tombstone: true})
	e.tombstones = append(e.tombstones, tombstoneRef{key: k, index: idx})
	e.live--
}

// Put inserts or overwrites key.
func (e *Engine) Put(key, value []byte, writeIdx uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.set(key, value, e.advance(writeIdx))
}

// BatchPut writes all pairs with the same write index.
func (e *Engine) BatchPut(pairs []kv.KvPair, writeIdx uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.advance(writeIdx)
	for _, p := range pairs {
		e.set(p.Key, p.Value, idx)
	}
}

// Delete removes key.
func (e *Engine) Delete(key []byte, writeIdx uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remove(key, e.advance(writeIdx))
}

// BatchDelete removes all keys with the same write index.
func (e *Engine) BatchDelete(keys [][]byte, writeIdx uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.advance(writeIdx)
	for _, k := range keys {
		e.remove(k, idx)
	}
}

// DeleteRange removes all live keys in [start, end) and returns how many were removed.
func (e *Engine) DeleteRange(start, end []byte, writeIdx uint64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.advance(writeIdx)
	var keys [][]byte
	e.tree.AscendGreaterOrEqual(entry{key: start}, func(cur entry) bool {
		if end != nil && bytes.Compare(cur.key, end) >= 0 {
			return false
		}
		if !cur.tombstone {
			keys = append(keys, cur.key)
		}
		return true
	})
	for _, k := range keys {
		e.remove(k, idx)
	}
	return len(keys)
}

// CompareAndSwap sets key to next if its value equals prev (or, if prevExists
// is false, if the key is absent).
func (e *Engine) CompareAndSwap(key, prev []byte, prevExists bool, next []byte, writeIdx uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, ok := e.tree.Get(entry{key: key})
	found := ok && !cur.tombstone
	if found != prevExists || (found && !bytes.Equal(cur.value, prev)) {
		e.advance(writeIdx)
		return false
	}
	e.set(key, next, e.advance(writeIdx))
	return true
}

// CompareAndDelete removes key if its live value equals prev.
func (e *Engine) CompareAndDelete(key, prev []byte, writeIdx uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, ok := e.tree.Get(entry{key: key})
	if !ok || cur.tombstone || !bytes.Equal(cur.value, prev) {
		e.advance(writeIdx)
		return false
	}
	e.remove(key, e.advance(writeIdx))
	return true
}

// Apply commits the mutations of a transaction that started at startIdx.
// It fails with kv.ErrWriteConflict if any key was modified after startIdx
// or if that can no longer be decided because its tombstone was dropped.
func (e *Engine) Apply(startIdx uint64, muts []kv.Mutation, writeIdx uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range muts {
		cur, ok := e.tree.Get(entry{key: m.Key})
		if ok && cur.index > startIdx {
			e.advance(writeIdx)
			return fmt.Errorf("%w: key %q modified at %d after %d", kv.ErrWriteConflict, m.Key, cur.index, startIdx)
		}
		if !ok && startIdx < e.purgedIdx {
			e.advance(writeIdx)
			return fmt.Errorf("%w: transaction started at %d is older than the tombstone horizon %d", kv.ErrWriteConflict, startIdx, e.purgedIdx)
		}
	}
	idx := e.advance(writeIdx)
	for _, m := range muts {
		switch m.Op {
		case kv.OpPut:
			e.set(m.Key, m.Value, idx)
		case kv.OpDelete:
			e.remove(m.Key, idx)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Persistence
// --------------------------------------------------------------------------

// Save writes a snapshot of the engine to w.
//
// Thread-safety: writes may continue while the snapshot is written, the
// snapshot reflects the state at the time Save was called.
func (e *Engine) Save(w io.Writer) error {
	e.mu.Lock()
	snapshot := e.tree.Clone()
	writeIdx, purgedIdx := e.writeIdx, e.purgedIdx
	e.mu.Unlock()

	bw := bufio.NewWriterSize(w, 1024*1024)

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	for _, v := range []any{uint8(engineVersion), writeIdx, purgedIdx, uint64(snapshot.Len())} {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	var err error
	snapshot.Ascend(func(cur entry) bool {
		var flags uint8
		if cur.tombstone {
			flags = 1
		}
		for _, v := range []any{flags, cur.index, uint32(len(cur.key))} {
			if err = binary.Write(bw, binary.LittleEndian, v); err != nil {
				return false
			}
		}
		if _, err = bw.Write(cur.key); err != nil {
			return false
		}
		if err = binary.Write(bw, binary.LittleEndian, uint32(len(cur.value))); err != nil {
			return false
		}
		_, err = bw.Write(cur.value)
		return err == nil
	})
	if err != nil {
		return err
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// Load replaces the engine state with a snapshot written by Save.
func (e *Engine) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024)

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != engineVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, engineVersion)
	}

	var writeIdx, purgedIdx, count uint64
	for _, v := range []any{&writeIdx, &purgedIdx, &count} {
		if err := binary.Read(br, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	tree := btree.NewG[entry](btreeDegree, lessEntry)
	var (
		tombstones []tombstoneRef
		live       int
	)
	for i := uint64(0); i < count; i++ {
		var (
			flags  uint8
			index  uint64
			keyLen uint32
			valLen uint32
		)
		for _, v := range []any{&flags, &index, &keyLen} {
			if err := binary.Read(br, binary.LittleEndian, v); err != nil {
				return err
			}
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(br, key); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &valLen); err != nil {
			return err
		}
		value := make([]byte, valLen)
		if _, err := io.ReadFull(br, value); err != nil {
			return err
		}
		cur := entry{key: key, value: value, index: index, tombstone: flags&1 == 1}
		if cur.tombstone {
			cur.value = nil
			tombstones = append(tombstones, tombstoneRef{key: key, index: index})
		} else {
			live++
		}
		tree.ReplaceOrInsert(cur)
	}
	slices.SortFunc(tombstones, func(a, b tombstoneRef) int { return cmp.Compare(a.index, b.index) })

	e.mu.Lock()
	defer e.mu.Unlock()
	e.tree = tree
	e.writeIdx = writeIdx
	e.purgedIdx = purgedIdx
	e.tombstones = tombstones
	e.live = live
	return nil
}

package raftkv

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/ValentinKolb/dStruct/lib/kv/memkv"
	"github.com/ValentinKolb/dStruct/lib/kv/raftkv/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// StateMachine applies the replicated log to an in-memory engine. Raft entry
// indices are used as engine write indices, so every replica assigns the same
// versions and decides transaction conflicts the same way.
type StateMachine struct {
	replicaID uint64
	shardID   uint64
	engine    *memkv.Engine
}

// CreateStateMachineFactory returns a function that can be used by dragonboat
// to create the state machine of a replica.
func CreateStateMachineFactory(engineFactory func() *memkv.Engine) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &StateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			engine:    engineFactory(),
		}
	}
}

// Lookup answers read-only queries from the local engine.
func (fsm *StateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, fmt.Errorf("invalid query type: %T", itf)
	}

	switch q.Type {
	case internal.QueryTGet:
		val, found := fsm.engine.Get(q.Key)
		return internal.QueryResult{Value: val, Found: found}, nil
	case internal.QueryTBatchGet:
		values := make([][]byte, len(q.Keys))
		for i, k := range q.Keys {
			values[i], _ = fsm.engine.Get(k)
		}
		return values, nil
	case internal.QueryTScan:
		return fsm.engine.Scan(q.Key, q.End, q.Limit), nil
	case internal.QueryTVersion:
		return fsm.engine.WriteIdx(), nil
	default:
		return nil, fmt.Errorf("unknown query operation: %s", q.Type)
	}
}

// Update applies a batch of committed log entries in order.
func (fsm *StateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()
	var cmd internal.Command

	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = result(internal.RetCInvalidOperation, "empty command ignored")
			continue
		}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = result(internal.RetCInternalError, fmt.Sprintf("failed to deserialize command: %v", err))
			continue
		}
		entries[idx].Result = fsm.apply(&cmd, e.Index)
	}

	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("state machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

func (fsm *StateMachine) apply(cmd *internal.Command, index uint64) sm.Result {
	switch cmd.Type {
	case internal.CommandTPut:
		fsm.engine.Put(cmd.Key, cmd.Value, index)
	case internal.CommandTDelete:
		fsm.engine.Delete(cmd.Key, index)
	case internal.CommandTBatchPut:
		pairs := make([]kv.KvPair, len(cmd.Mutations))
		for i, m := range cmd.Mutations {
			pairs[i] = kv.KvPair{Key: m.Key, Value: m.Value}
		}
		fsm.engine.BatchPut(pairs, index)
	case internal.CommandTBatchDelete:
		keys := make([][]byte, len(cmd.Mutations))
		for i, m := range cmd.Mutations {
			keys[i] = m.Key
		}
		fsm.engine.BatchDelete(keys, index)
	case internal.CommandTDeleteRange:
		n := fsm.engine.DeleteRange(cmd.Key, cmd.End, index)
		return result(internal.RetCSuccess, fmt.Sprintf("deleted %d keys", n))
	case internal.CommandTCAS:
		if !fsm.engine.CompareAndSwap(cmd.Key, cmd.Prev, cmd.PrevExists, cmd.Value, index) {
			return result(internal.RetCNotSwapped, "")
		}
	case internal.CommandTCAD:
		if !fsm.engine.CompareAndDelete(cmd.Key, cmd.Prev, index) {
			return result(internal.RetCNotSwapped, "")
		}
	case internal.CommandTCommitTxn:
		if err := fsm.engine.Apply(cmd.StartIdx, cmd.Mutations, index); err != nil {
			return result(internal.RetCConflict, err.Error())
		}
	default:
		return result(internal.RetCInvalidOperation, fmt.Sprintf("unknown command operation: %s", cmd.Type))
	}
	return result(internal.RetCSuccess, "")
}

func result(code internal.RetCode, msg string) sm.Result {
	return sm.Result{Value: uint64(code), Data: []byte(msg)}
}

// PrepareSnapshot is not used, the engine clones its tree while saving.
func (fsm *StateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot writes an engine snapshot to the writer.
func (fsm *StateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	return fsm.engine.Save(writer)
}

// RecoverFromSnapshot replaces the engine state with a snapshot.
func (fsm *StateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	return fsm.engine.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *StateMachine) Close() error {
	return nil
}

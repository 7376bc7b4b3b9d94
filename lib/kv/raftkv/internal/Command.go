package internal

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dStruct/lib/kv"
)

// RetCode is stored in sm.Result.Value by the state machine.
type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Command executed successfully.
	RetCInternalError                   // 1: Command failed due to an internal error.
	RetCInvalidOperation                // 2: Invalid operation.
	RetCConflict                        // 3: Transaction commit lost against a newer write.
	RetCNotSwapped                      // 4: Compare and swap found a different value.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCConflict:
		return "Conflict"
	case RetCNotSwapped:
		return "NotSwapped"
	default:
		return fmt.Sprintf("Unknown(%d)", uint64(c))
	}
}

// CommandType defines the possible write operations of the state machine.
type CommandType uint8

const (
	CommandTPut         CommandType = iota // Insert or overwrite Key with Value.
	CommandTDelete                         // Delete Key.
	CommandTBatchPut                       // Put every mutation.
	CommandTBatchDelete                    // Delete every mutation key.
	CommandTDeleteRange                    // Delete all keys in [Key, End).
	CommandTCAS                            // Set Key to Value if it currently holds Prev.
	CommandTCommitTxn                      // Apply Mutations atomically if none conflicts with StartIdx.
	CommandTCAD                            // Delete Key if it currently holds Prev.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTPut:
		return "Put"
	case CommandTDelete:
		return "Delete"
	case CommandTBatchPut:
		return "BatchPut"
	case CommandTBatchDelete:
		return "BatchDelete"
	case CommandTDeleteRange:
		return "DeleteRange"
	case CommandTCAS:
		return "CAS"
	case CommandTCommitTxn:
		return "CommitTxn"
	case CommandTCAD:
		return "CAD"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

const flagPrevExists = 1 << 0

// headerLen is Type + StartIdx + Flags
const headerLen = 1 + 8 + 1

// Command is a single entry in the raft log.
type Command struct {
	Type       CommandType
	StartIdx   uint64
	PrevExists bool
	Key        []byte
	Value      []byte
	Prev       []byte
	End        []byte
	Mutations  []kv.Mutation
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	size := headerLen
	size += 4 + len(command.Key)
	size += 4 + len(command.Value)
	size += 4 + len(command.Prev)
	size += 4 + len(command.End)
	size += 4
	for _, m := range command.Mutations {
		size += 1 + 4 + len(m.Key) + 4 + len(m.Value)
	}
	return size
}

// Serialize encodes the command in the format described in the package docs.
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint64(result[1:9], command.StartIdx)
	if command.PrevExists {
		result[9] |= flagPrevExists
	}

	off := headerLen
	off = putBytes(result, off, command.Key)
	off = putBytes(result, off, command.Value)
	off = putBytes(result, off, command.Prev)
	off = putBytes(result, off, command.End)

	binary.BigEndian.PutUint32(result[off:off+4], uint32(len(command.Mutations)))
	off += 4
	for _, m := range command.Mutations {
		result[off] = byte(m.Op)
		off++
		off = putBytes(result, off, m.Key)
		off = putBytes(result, off, m.Value)
	}
	return result
}

// Deserialize extracts all Command fields from a byte array.
// The decoded slices alias data.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < headerLen {
		return fmt.Errorf("data too short for command")
	}
	command.Type = CommandType(data[0])
	command.StartIdx = binary.BigEndian.Uint64(data[1:9])
	command.PrevExists = data[9]&flagPrevExists != 0

	var err error
	off := headerLen
	if command.Key, off, err = getBytes(data, off, "key"); err != nil {
		return err
	}
	if command.Value, off, err = getBytes(data, off, "value"); err != nil {
		return err
	}
	if command.Prev, off, err = getBytes(data, off, "prev"); err != nil {
		return err
	}
	if command.End, off, err = getBytes(data, off, "end"); err != nil {
		return err
	}

	if len(data) < off+4 {
		return fmt.Errorf("data too short for mutation count")
	}
	n := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	command.Mutations = command.Mutations[:0]
	for i := 0; i < n; i++ {
		if len(data) < off+1 {
			return fmt.Errorf("data too short for mutation %d", i)
		}
		m := kv.Mutation{Op: kv.MutationOp(data[off])}
		off++
		if m.Key, off, err = getBytes(data, off, "mutation key"); err != nil {
			return err
		}
		if m.Value, off, err = getBytes(data, off, "mutation value"); err != nil {
			return err
		}
		command.Mutations = append(command.Mutations, m)
	}
	if off != len(data) {
		return fmt.Errorf("%d trailing bytes after command", len(data)-off)
	}
	return nil
}

func putBytes(dst []byte, off int, b []byte) int {
	binary.BigEndian.PutUint32(dst[off:off+4], uint32(len(b)))
	off += 4
	copy(dst[off:], b)
	return off + len(b)
}

func getBytes(data []byte, off int, field string) ([]byte, int, error) {
	if len(data) < off+4 {
		return nil, off, fmt.Errorf("data too short for %s length", field)
	}
	n := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	if len(data) < off+n {
		return nil, off, fmt.Errorf("data too short for %s of length %d", field, n)
	}
	if n == 0 {
		return nil, off, nil
	}
	return data[off : off+n], off + n, nil
}

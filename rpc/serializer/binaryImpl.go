package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dStruct/lib/core"
	"github.com/ValentinKolb/dStruct/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasCmd    byte = 1 << 0
	hasArgs   byte = 1 << 1
	hasResult byte = 1 << 2
	hasErr    byte = 1 << 3
	hasCode   byte = 1 << 4
)

// maxResultDepth bounds the nesting of array results accepted by Deserialize
const maxResultDepth = 32

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	totalSize := b.sizeBytes(msg)
	result := make([]byte, totalSize)

	// Write message type
	result[0] = byte(msg.MsgType)

	// Initialize flags byte
	var flags byte = 0

	// Set position for writing
	pos := 2 // Start after MsgType and flags

	// Handle Cmd
	if msg.Cmd != "" {
		flags |= hasCmd
		pos = putBytes(result, pos, []byte(msg.Cmd))
	}

	// Handle Args: count followed by length prefixed arguments
	if len(msg.Args) > 0 {
		flags |= hasArgs
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Args)))
		pos += 4
		for _, arg := range msg.Args {
			pos = putBytes(result, pos, arg)
		}
	}

	// Handle Result, a null result is left out
	if msg.Result.Kind != core.KindNull {
		flags |= hasResult
		pos = putResult(result, pos, msg.Result)
	}

	// Handle Err
	if msg.Err != "" {
		flags |= hasErr
		pos = putBytes(result, pos, []byte(msg.Err))
	}

	// Handle Code
	if msg.Code != "" {
		flags |= hasCode
		putBytes(result, pos, []byte(msg.Code))
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{}

	// Read message type
	msg.MsgType = common.MessageType(data[0])

	// Read flags
	flags := data[1]

	// Initialize read position
	pos := 2
	var err error

	// Read Cmd if present
	if flags&hasCmd != 0 {
		var cmd []byte
		if cmd, pos, err = readBytes(data, pos, "cmd"); err != nil {
			return err
		}
		msg.Cmd = string(cmd)
	}

	// Read Args if present
	if flags&hasArgs != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for argument count")
		}
		n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4

		// every argument needs at least its length prefix
		if n > (len(data)-pos)/4 {
			return fmt.Errorf("data too short for %d arguments", n)
		}
		msg.Args = make([][]byte, n)
		for i := range msg.Args {
			if msg.Args[i], pos, err = readBytes(data, pos, "argument"); err != nil {
				return err
			}
		}
	}

	// Read Result if present
	if flags&hasResult != 0 {
		if msg.Result, pos, err = readResult(data, pos, 0); err != nil {
			return err
		}
	}

	// Read Err if present
	if flags&hasErr != 0 {
		var e []byte
		if e, pos, err = readBytes(data, pos, "error"); err != nil {
			return err
		}
		msg.Err = string(e)
	}

	// Read Code if present
	if flags&hasCode != 0 {
		var code []byte
		if code, _, err = readBytes(data, pos, "code"); err != nil {
			return err
		}
		msg.Code = string(code)
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	// Add sizes for fields that require length encoding
	if msg.Cmd != "" {
		size += 4 + len(msg.Cmd) // 4 bytes for length + cmd string
	}
	if len(msg.Args) > 0 {
		size += 4 // argument count
		for _, arg := range msg.Args {
			size += 4 + len(arg)
		}
	}
	if msg.Result.Kind != core.KindNull {
		size += sizeResult(msg.Result)
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err) // 4 bytes for length + error string
	}
	if msg.Code != "" {
		size += 4 + len(msg.Code)
	}

	return size
}

// sizeResult returns the encoded size of r: one kind byte plus its payload
func sizeResult(r core.Result) int {
	switch r.Kind {
	case core.KindInteger:
		return 1 + 8
	case core.KindBulk:
		return 1 + 4 + len(r.Bulk)
	case core.KindStatus:
		return 1 + 4 + len(r.Status)
	case core.KindArray:
		size := 1 + 4
		for _, it := range r.Array {
			size += sizeResult(it)
		}
		return size
	default:
		return 1
	}
}

func putBytes(buf []byte, pos int, b []byte) int {
	binary.BigEndian.PutUint32(buf[pos:pos+4], uint32(len(b)))
	pos += 4
	copy(buf[pos:], b)
	return pos + len(b)
}

func putResult(buf []byte, pos int, r core.Result) int {
	buf[pos] = byte(r.Kind)
	pos++
	switch r.Kind {
	case core.KindInteger:
		binary.BigEndian.PutUint64(buf[pos:pos+8], uint64(r.Int))
		pos += 8
	case core.KindBulk:
		pos = putBytes(buf, pos, r.Bulk)
	case core.KindStatus:
		pos = putBytes(buf, pos, []byte(r.Status))
	case core.KindArray:
		binary.BigEndian.PutUint32(buf[pos:pos+4], uint32(len(r.Array)))
		pos += 4
		for _, it := range r.Array {
			pos = putResult(buf, pos, it)
		}
	}
	return pos
}

// readBytes reads a length prefixed byte string. The result is a copy and
// never nil.
func readBytes(data []byte, pos int, field string) ([]byte, int, error) {
	if pos+4 > len(data) {
		return nil, pos, fmt.Errorf("data too short for %s length", field)
	}
	n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if n > len(data)-pos {
		return nil, pos, fmt.Errorf("data too short for %s data", field)
	}
	out := make([]byte, n)
	copy(out, data[pos:pos+n])
	return out, pos + n, nil
}

func readResult(data []byte, pos int, depth int) (core.Result, int, error) {
	if depth > maxResultDepth {
		return core.Result{}, pos, fmt.Errorf("result nested deeper than %d levels", maxResultDepth)
	}
	if pos+1 > len(data) {
		return core.Result{}, pos, fmt.Errorf("data too short for result kind")
	}
	kind := core.Kind(data[pos])
	pos++

	var err error
	switch kind {
	case core.KindNull:
		return core.Null(), pos, nil
	case core.KindInteger:
		if pos+8 > len(data) {
			return core.Result{}, pos, fmt.Errorf("data too short for integer result")
		}
		n := int64(binary.BigEndian.Uint64(data[pos : pos+8]))
		return core.Integer(n), pos + 8, nil
	case core.KindBulk:
		var b []byte
		if b, pos, err = readBytes(data, pos, "bulk result"); err != nil {
			return core.Result{}, pos, err
		}
		return core.Bulk(b), pos, nil
	case core.KindStatus:
		var s []byte
		if s, pos, err = readBytes(data, pos, "status result"); err != nil {
			return core.Result{}, pos, err
		}
		return core.Status(string(s)), pos, nil
	case core.KindArray:
		if pos+4 > len(data) {
			return core.Result{}, pos, fmt.Errorf("data too short for array length")
		}
		n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		// every item needs at least its kind byte
		if n > len(data)-pos {
			return core.Result{}, pos, fmt.Errorf("data too short for %d array items", n)
		}
		items := make([]core.Result, n)
		for i := range items {
			if items[i], pos, err = readResult(data, pos, depth+1); err != nil {
				return core.Result{}, pos, err
			}
		}
		return core.Array(items...), pos, nil
	default:
		return core.Result{}, pos, fmt.Errorf("unknown result kind %d", kind)
	}
}

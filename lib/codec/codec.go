package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Types and Constants
// --------------------------------------------------------------------------

// DataType identifies the logical type of an entity.
type DataType byte

const (
	String DataType = 'R'
	Hash   DataType = 'H'
	List   DataType = 'L'
	Set    DataType = 'S'
)

// String implements fmt.Stringer
func (t DataType) String() string {
	switch t {
	case String:
		return "string"
	case Hash:
		return "hash"
	case List:
		return "list"
	case Set:
		return "set"
	default:
		return fmt.Sprintf("DataType(%d)", byte(t))
	}
}

const (
	magic     = "x$R_"
	separator = '_'
	// rangeEnd is the byte following the separator in byte order.
	rangeEnd = '`'

	// PrefixLen is the length of the type prefix of every physical key.
	PrefixLen = len(magic) + 8 + 2

	// Sentinel is the value of both list bounds when a list has no bounds record.
	Sentinel int64 = 4294967295

	// BoundsLen is the length of an encoded list bounds record.
	BoundsLen = 24

	// legacyBoundsLen is a bounds record without a generation.
	legacyBoundsLen = 16

	// StampLen is the length of the generation stamp in front of every list element value.
	StampLen = 8

	signMask uint64 = 0x8000000000000000
)

// ErrDecode is returned when a physical key or stored record does not have the expected layout.
var ErrDecode = errors.New("malformed encoded data")

// --------------------------------------------------------------------------
// Codec
// --------------------------------------------------------------------------

// Codec encodes and decodes physical keys for one instance namespace.
// It is immutable and safe for concurrent use.
type Codec struct {
	instanceID uint64
	prefixes   map[DataType][]byte
}

// New creates a codec for the given instance namespace id.
func New(instanceID uint64) *Codec {
	c := &Codec{
		instanceID: instanceID,
		prefixes:   make(map[DataType][]byte, 4),
	}
	for _, t := range []DataType{String, Hash, List, Set} {
		p := make([]byte, 0, PrefixLen)
		p = append(p, magic...)
		p = binary.BigEndian.AppendUint64(p, instanceID)
		p = append(p, separator, byte(t))
		c.prefixes[t] = p
	}
	return c
}

// InstanceID returns the namespace id the codec was created with.
func (c *Codec) InstanceID() uint64 {
	return c.instanceID
}

// Prefix returns the fixed-length type prefix shared by all keys of type t.
func (c *Codec) Prefix(t DataType) []byte {
	p, ok := c.prefixes[t]
	if !ok {
		panic(fmt.Sprintf("codec: unknown data type %v", t))
	}
	return p
}

// build concatenates the type prefix with the given parts into a fresh slice.
func (c *Codec) build(t DataType, parts ...[]byte) []byte {
	prefix := c.Prefix(t)
	n := len(prefix)
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	out = append(out, prefix...)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var (
	sepPart  = []byte{separator}
	endPart  = []byte{rangeEnd}
	dataPart = []byte{separator, 'D', separator}
	metaPart = []byte{separator, 'M', separator}
)

// Encode returns the physical key of a top level entity.
// For strings this is the key holding the value.
func (c *Codec) Encode(t DataType, key string) []byte {
	return c.build(t, sepPart, []byte(key))
}

// EncodeEnd returns the exclusive upper bound of all top level keys of type t.
func (c *Codec) EncodeEnd(t DataType) []byte {
	return c.build(t, endPart)
}

// EncodeRangeStart returns the inclusive lower bound of all sub keys of key.
func (c *Codec) EncodeRangeStart(t DataType, key string) []byte {
	return c.build(t, dataPart, []byte(key), sepPart)
}

// EncodeRangeEnd returns the exclusive upper bound of all sub keys of key.
func (c *Codec) EncodeRangeEnd(t DataType, key string) []byte {
	return c.build(t, dataPart, []byte(key), endPart)
}

// EncodeSub returns the physical key of a hash field or set member.
func (c *Codec) EncodeSub(t DataType, key string, sub []byte) []byte {
	return c.build(t, dataPart, []byte(key), sepPart, sub)
}

// EncodeListMeta returns the key of the bounds record of a list.
func (c *Codec) EncodeListMeta(key string) []byte {
	return c.build(List, metaPart, []byte(key))
}

// EncodeListElement returns the physical key of the list element at index i.
func (c *Codec) EncodeListElement(key string, i int64) []byte {
	return c.build(List, dataPart, []byte(key), sepPart, EncodeIndex(i))
}

// Decode strips the type prefix (and separator) from a top level key.
func (c *Codec) Decode(t DataType, physical []byte) (string, error) {
	prefix := c.Prefix(t)
	if len(physical) <= len(prefix) || string(physical[:len(prefix)]) != string(prefix) || physical[len(prefix)] != separator {
		return "", fmt.Errorf("%w: key %q is not a %v key", ErrDecode, physical, t)
	}
	return string(physical[len(prefix)+1:]), nil
}

// DecodeSub strips the range start of key from a sub key and returns the field or member.
func (c *Codec) DecodeSub(t DataType, key string, physical []byte) ([]byte, error) {
	start := c.EncodeRangeStart(t, key)
	if len(physical) < len(start) || string(physical[:len(start)]) != string(start) {
		return nil, fmt.Errorf("%w: key %q is not a sub key of %v %q", ErrDecode, physical, t, key)
	}
	sub := make([]byte, len(physical)-len(start))
	copy(sub, physical[len(start):])
	return sub, nil
}

// DecodeListElement returns the index encoded in a list element key.
func (c *Codec) DecodeListElement(key string, physical []byte) (int64, error) {
	sub, err := c.DecodeSub(List, key, physical)
	if err != nil {
		return 0, err
	}
	return DecodeIndex(sub)
}

// --------------------------------------------------------------------------
// Integer encoding
// --------------------------------------------------------------------------

// EncodeIndex encodes i as 8 bytes so that byte order equals numeric order.
func EncodeIndex(i int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(i)^signMask)
	return b
}

// DecodeIndex is the inverse of EncodeIndex.
func DecodeIndex(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: index must be 8 bytes, got %d", ErrDecode, len(b))
	}
	return int64(binary.BigEndian.Uint64(b) ^ signMask), nil
}

// Bounds is the decoded bounds record of a list. Elements occupy [L, R).
// Gen changes with every successful update of the record.
type Bounds struct {
	L, R int64
	Gen  uint64
}

// Len returns the number of elements.
func (b Bounds) Len() int64 { return b.R - b.L }

// Next returns b moved to [l, r) with the following generation. An empty
// window moves back to the sentinel.
func (b Bounds) Next(l, r int64) Bounds {
	if l == r {
		l, r = Sentinel, Sentinel
	}
	return Bounds{L: l, R: r, Gen: b.Gen + 1}
}

// EncodeBounds encodes a list bounds record.
func EncodeBounds(b Bounds) []byte {
	out := make([]byte, 0, BoundsLen)
	out = append(out, EncodeIndex(b.L)...)
	out = append(out, EncodeIndex(b.R)...)
	return binary.BigEndian.AppendUint64(out, b.Gen)
}

// DecodeBounds decodes a list bounds record. A nil record yields the empty
// sentinel bounds. A record without a generation decodes with Gen 0.
func DecodeBounds(v []byte) (Bounds, error) {
	if v == nil {
		return Bounds{L: Sentinel, R: Sentinel}, nil
	}
	if len(v) != BoundsLen && len(v) != legacyBoundsLen {
		return Bounds{}, fmt.Errorf("%w: bounds record must be %d bytes, got %d", ErrDecode, BoundsLen, len(v))
	}
	var b Bounds
	b.L, _ = DecodeIndex(v[:8])
	b.R, _ = DecodeIndex(v[8:16])
	if len(v) == BoundsLen {
		b.Gen = binary.BigEndian.Uint64(v[16:])
	}
	if b.L > b.R {
		return Bounds{}, fmt.Errorf("%w: bounds record (%d, %d) has l > r", ErrDecode, b.L, b.R)
	}
	return b, nil
}

// EncodeListValue prefixes an element value with the generation of the
// bounds update that reserved its index.
func EncodeListValue(stamp uint64, payload []byte) []byte {
	out := make([]byte, 0, StampLen+len(payload))
	out = binary.BigEndian.AppendUint64(out, stamp)
	return append(out, payload...)
}

// DecodeListValue splits a stored element value into stamp and payload.
func DecodeListValue(v []byte) (stamp uint64, payload []byte, err error) {
	if len(v) < StampLen {
		return 0, nil, fmt.Errorf("%w: list element value must be at least %d bytes, got %d", ErrDecode, StampLen, len(v))
	}
	return binary.BigEndian.Uint64(v[:StampLen]), v[StampLen:], nil
}

// Package serializer encodes the command and reply messages exchanged
// between the dStruct client and server.
//
// A common.Message is either a command (name plus raw arguments), a result
// carrying a core.Result, or an error carrying a message and an error code.
// A core.Result is a tree: null, integer, bulk string, status or an array of
// further results. Every IRPCSerializer has to round trip that tree
// exactly, including the difference between a null reply, an empty bulk
// string and an empty array.
//
// Implementations:
//
//   - binary (NewBinarySerializer): the default. One byte message type, one
//     flag byte telling which of Cmd, Args, Result, Err and Code follow, then
//     the present fields in that order. Byte strings are prefixed with a
//     big-endian uint32 length and Args with its uint32 count. A result is a
//     kind byte followed by 8 bytes for integers, a length prefixed payload
//     for bulk and status replies, or a uint32 item count and the encoded
//     items for arrays. A null result is left out of the message entirely.
//     Deserialize rejects truncated input and arrays nested deeper than 32
//     levels.
//
//   - json (NewJSONSerializer): readable, useful when debugging with other
//     tools. Empty bulk strings and arrays are omitted on the wire and are
//     restored by core.Result.Normalize after decoding.
//
//   - gob (NewGOBSerializer): Go's gob encoding. Like json it drops empty
//     slices and normalizes the result after decoding. It is the slowest and
//     largest of the three.
//
// Serializers are stateless and safe for concurrent use. The server and the
// client must be configured with the same format.
package serializer

// Package internal holds the wire structures exchanged between the raftkv
// client side and its replicated state machine.
//
//   - Commands are write operations. They are serialized into the raft log,
//     applied by every replica in log order and answered with a RetCode.
//
//   - Queries are read operations. They are passed to the local replica as Go
//     values and are therefore never serialized.
//
// Command Format:
//
//	+--------+----------+-------+---------+-----+-----------+-------+---------+------+---------+------+---------+-----------+
//	| Type   | StartIdx | Flags | KeyLen  | Key | ValueLen  | Value | PrevLen | Prev | EndLen  | End  | MutCnt  | Mutations |
//	| 1 byte | 8 bytes  | 1 b   | 4 bytes | ... | 4 bytes   | ...   | 4 bytes | ...  | 4 bytes | ...  | 4 bytes | ...       |
//	+--------+----------+-------+---------+-----+-----------+-------+---------+------+---------+------+---------+-----------+
//
// Every mutation is encoded as a one byte op followed by a length prefixed key
// and a length prefixed value. All integers are big endian.
//
// This package should not be imported outside of raftkv.
package internal

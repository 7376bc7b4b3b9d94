// Package codec maps logical entities (strings, hashes, lists and sets) onto
// the flat, ordered key space of the backing store and back.
//
// Every physical key starts with a fixed-length type prefix:
//
//	"x$R_" + <8 byte big-endian instance id> + "_" + <type tag>
//
// The instance id isolates independent deployments that share one backing
// store. The type tag is one of R (string), H (hash), L (list) or S (set).
//
// Physical layout per type:
//
//	String        prefix + "_" + key
//	Hash field    prefix + "_D_" + key + "_" + field
//	Set member    prefix + "_D_" + key + "_" + member
//	List bounds   prefix + "_M_" + key
//	List element  prefix + "_D_" + key + "_" + idx8
//
// idx8 is the int64 list index written big-endian with the sign bit flipped,
// so byte order equals numeric order for negative indices as well. All keys
// of one logical entity form a contiguous range. Its exclusive end is built
// by replacing the trailing "_" separator with "`" (0x60), the byte right
// after "_".
//
// Logical keys are not escaped. A key that contains "_" can produce physical
// keys inside the range of another key (for example the hash "a_b" lives
// inside the range of hash "a"). Callers owning the key space must avoid
// such keys if they rely on range disjointness.
package codec

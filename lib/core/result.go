package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the type of a Result.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindBulk
	KindArray
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindBulk:
		return "bulk"
	case KindArray:
		return "array"
	case KindStatus:
		return "status"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Result is the reply of a command. Which field is set depends on Kind.
type Result struct {
	Kind   Kind     `json:"kind"`
	Int    int64    `json:"int,omitempty"`
	Bulk   []byte   `json:"bulk,omitempty"`
	Array  []Result `json:"array,omitempty"`
	Status string   `json:"status,omitempty"`
}

// --------------------------------------------------------------------------
// Constructors
// --------------------------------------------------------------------------

func Null() Result { return Result{Kind: KindNull} }

func Integer(n int64) Result { return Result{Kind: KindInteger, Int: n} }

func Bool(b bool) Result {
	if b {
		return Integer(1)
	}
	return Integer(0)
}

// Bulk returns a bulk string. A nil value is a valid empty bulk string, use Null for missing values.
func Bulk(b []byte) Result {
	if b == nil {
		b = []byte{}
	}
	return Result{Kind: KindBulk, Bulk: b}
}

// BulkOrNull returns Null if found is false.
func BulkOrNull(b []byte, found bool) Result {
	if !found {
		return Null()
	}
	return Bulk(b)
}

func Status(s string) Result { return Result{Kind: KindStatus, Status: s} }

// OK is the status reply of commands without a return value.
func OK() Result { return Status("OK") }

func Array(items ...Result) Result {
	if items == nil {
		items = []Result{}
	}
	return Result{Kind: KindArray, Array: items}
}

// BulkArray turns values into an array of bulk strings. nil entries become Null.
func BulkArray(values [][]byte) Result {
	items := make([]Result, len(values))
	for i, v := range values {
		if v == nil {
			items[i] = Null()
		} else {
			items[i] = Bulk(v)
		}
	}
	return Array(items...)
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// IsNull reports whether r is the null reply.
func (r Result) IsNull() bool { return r.Kind == KindNull }

// Strings returns the bulk strings of an array reply. Null entries yield "".
func (r Result) Strings() []string {
	out := make([]string, len(r.Array))
	for i, it := range r.Array {
		out[i] = string(it.Bulk)
	}
	return out
}

// Values returns the bulk values of an array reply with nil for null entries.
func (r Result) Values() [][]byte {
	out := make([][]byte, len(r.Array))
	for i, it := range r.Array {
		if !it.IsNull() {
			out[i] = it.Bulk
		}
	}
	return out
}

// Normalize restores the empty slices of bulk and array replies that
// encodings without a nil/empty distinction decode as nil.
func (r *Result) Normalize() {
	switch r.Kind {
	case KindBulk:
		if r.Bulk == nil {
			r.Bulk = []byte{}
		}
	case KindArray:
		if r.Array == nil {
			r.Array = []Result{}
		}
		for i := range r.Array {
			r.Array[i].Normalize()
		}
	}
}

// String renders r the way redis-cli does.
func (r Result) String() string {
	var sb strings.Builder
	r.format(&sb, "")
	return strings.TrimSuffix(sb.String(), "\n")
}

func (r Result) format(sb *strings.Builder, indent string) {
	switch r.Kind {
	case KindNull:
		sb.WriteString("(nil)\n")
	case KindInteger:
		sb.WriteString("(integer) ")
		sb.WriteString(strconv.FormatInt(r.Int, 10))
		sb.WriteByte('\n')
	case KindBulk:
		sb.WriteString(strconv.Quote(string(r.Bulk)))
		sb.WriteByte('\n')
	case KindStatus:
		sb.WriteString(r.Status)
		sb.WriteByte('\n')
	case KindArray:
		if len(r.Array) == 0 {
			sb.WriteString("(empty array)\n")
			return
		}
		width := len(strconv.Itoa(len(r.Array)))
		for i, it := range r.Array {
			if i > 0 {
				sb.WriteString(indent)
			}
			prefix := fmt.Sprintf("%*d) ", width, i+1)
			sb.WriteString(prefix)
			it.format(sb, indent+strings.Repeat(" ", len(prefix)))
		}
	}
}

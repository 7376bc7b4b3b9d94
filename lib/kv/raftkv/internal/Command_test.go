package internal

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/dStruct/lib/kv"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name:     "Put",
			command:  Command{Type: CommandTPut, Key: []byte("testkey"), Value: []byte("testvalue")},
			expected: headerLen + 4 + 7 + 4 + 9 + 4 + 4 + 4,
		},
		{
			name: "Commit with mutations",
			command: Command{Type: CommandTCommitTxn, StartIdx: 3, Mutations: []kv.Mutation{
				{Op: kv.OpPut, Key: []byte("a"), Value: []byte("1")},
				{Op: kv.OpDelete, Key: []byte("bb")},
			}},
			expected: headerLen + 4*4 + 4 + (1 + 4 + 1 + 4 + 1) + (1 + 4 + 2 + 4),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := tt.command.SizeBytes()
			if size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
			if got := len(tt.command.Serialize()); got != size {
				t.Errorf("len(Serialize()) = %v, want %v", got, size)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name:    "Put",
			command: Command{Type: CommandTPut, Key: []byte("testkey"), Value: []byte("testvalue")},
		},
		{
			name:    "Delete without value",
			command: Command{Type: CommandTDelete, Key: []byte("testkey")},
		},
		{
			name:    "DeleteRange",
			command: Command{Type: CommandTDeleteRange, Key: []byte("a"), End: []byte("z")},
		},
		{
			name: "CAS on existing key with binary values",
			command: Command{
				Type:       CommandTCAS,
				Key:        []byte{0, 1, 2},
				Prev:       []byte{254, 255},
				PrevExists: true,
				Value:      []byte{0},
			},
		},
		{
			name:    "CAD",
			command: Command{Type: CommandTCAD, Key: []byte("k"), Prev: []byte("v")},
		},
		{
			name: "Commit",
			command: Command{
				Type:     CommandTCommitTxn,
				StartIdx: 18446744073709551615,
				Mutations: []kv.Mutation{
					{Op: kv.OpPut, Key: []byte("你好"), Value: []byte("世界")},
					{Op: kv.OpDelete, Key: []byte("gone")},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()

			var got Command
			if err := got.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if got.Type != tt.command.Type {
				t.Errorf("Type = %v, want %v", got.Type, tt.command.Type)
			}
			if got.StartIdx != tt.command.StartIdx {
				t.Errorf("StartIdx = %v, want %v", got.StartIdx, tt.command.StartIdx)
			}
			if got.PrevExists != tt.command.PrevExists {
				t.Errorf("PrevExists = %v, want %v", got.PrevExists, tt.command.PrevExists)
			}
			for _, f := range []struct {
				name      string
				got, want []byte
			}{
				{"Key", got.Key, tt.command.Key},
				{"Value", got.Value, tt.command.Value},
				{"Prev", got.Prev, tt.command.Prev},
				{"End", got.End, tt.command.End},
			} {
				if !bytes.Equal(f.got, f.want) {
					t.Errorf("%s = %v, want %v", f.name, f.got, f.want)
				}
			}
			if len(got.Mutations) != len(tt.command.Mutations) {
				t.Fatalf("len(Mutations) = %d, want %d", len(got.Mutations), len(tt.command.Mutations))
			}
			for i, m := range tt.command.Mutations {
				if got.Mutations[i].Op != m.Op || !bytes.Equal(got.Mutations[i].Key, m.Key) || !bytes.Equal(got.Mutations[i].Value, m.Value) {
					t.Errorf("Mutations[%d] = %+v, want %+v", i, got.Mutations[i], m)
				}
			}
		})
	}
}

// TestDeserializeErrors tests error cases for Deserialize
func TestDeserializeErrors(t *testing.T) {
	valid := (&Command{Type: CommandTPut, Key: []byte("key"), Value: []byte("value")}).Serialize()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "Empty data", data: []byte{}},
		{name: "Header only", data: valid[:headerLen]},
		{name: "Truncated key", data: valid[:headerLen+5]},
		{name: "Missing mutation count", data: valid[:len(valid)-4]},
		{name: "Trailing bytes", data: append(bytes.Clone(valid), 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd Command
			if err := cmd.Deserialize(tt.data); err == nil {
				t.Errorf("Deserialize() expected error, got nil")
			}
		})
	}
}

func TestTypeStrings(t *testing.T) {
	if CommandTCommitTxn.String() != "CommitTxn" {
		t.Errorf("unexpected name %q", CommandTCommitTxn.String())
	}
	if CommandTCAD.String() != "CAD" {
		t.Errorf("unexpected name %q", CommandTCAD.String())
	}
	if CommandType(200).String() != "Unknown(200)" {
		t.Errorf("unexpected name %q", CommandType(200).String())
	}
	if QueryTScan.String() != "Scan" {
		t.Errorf("unexpected name %q", QueryTScan.String())
	}
	if RetCConflict.String() != "Conflict" {
		t.Errorf("unexpected name %q", RetCConflict.String())
	}
}

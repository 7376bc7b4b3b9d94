package serializer

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/dStruct/lib/core"
	"github.com/ValentinKolb/dStruct/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

func args(values ...string) [][]byte {
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = []byte(v)
	}
	return out
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTResult},

		// Command requests
		{MsgType: common.MsgTCommand, Cmd: "begin"},
		*common.NewCommandRequest("put", args("key", "value")),
		*common.NewCommandRequest("rpush", args("list", "a", "b", "c")),

		// Results of every kind
		*common.NewCommandResponse(core.OK(), nil),
		*common.NewCommandResponse(core.Integer(-42), nil),
		*common.NewCommandResponse(core.Bulk([]byte("value")), nil),
		*common.NewCommandResponse(core.Bulk(nil), nil),
		*common.NewCommandResponse(core.Array(), nil),
		*common.NewCommandResponse(core.BulkArray(args("a", "b")), nil),
		*common.NewCommandResponse(core.Array(
			core.Array(core.Bulk([]byte("k")), core.Bulk([]byte("v"))),
			core.Null(),
			core.Integer(7),
		), nil),

		// Error response
		*common.NewErrorResponse("NOTXN", "no active transaction"),
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgType := common.MsgTCommand; msgType <= common.MsgTError; msgType++ {
				msg := common.Message{MsgType: msgType}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestDeserializeResetsMessage tests that fields of a reused message do not leak into the next one
func TestDeserializeResetsMessage(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			data, err := serializer.Serialize(*common.NewCommandResponse(core.Integer(1), nil))
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			msg := *common.NewErrorResponse("FATAL", "stale")
			msg.Args = args("stale")
			if err := serializer.Deserialize(data, &msg); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			if msg.Err != "" || msg.Code != "" || msg.Args != nil {
				t.Errorf("stale fields survived: %+v", msg)
			}
			if !reflect.DeepEqual(msg.Result, core.Integer(1)) {
				t.Errorf("unexpected result %v", msg.Result)
			}
		})
	}
}

// TestBinaryKeepsEmptyArguments tests that empty arguments survive the binary format
func TestBinaryKeepsEmptyArguments(t *testing.T) {
	serializer := NewBinarySerializer()
	data, err := serializer.Serialize(*common.NewCommandRequest("put", [][]byte{[]byte("k"), {}}))
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}

	var msg common.Message
	if err := serializer.Deserialize(data, &msg); err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}
	if len(msg.Args) != 2 || msg.Args[1] == nil || len(msg.Args[1]) != 0 {
		t.Errorf("unexpected arguments %q", msg.Args)
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	nested := []byte{byte(common.MsgTResult), hasResult}
	for i := 0; i <= maxResultDepth+1; i++ {
		nested = append(nested, byte(core.KindArray), 0, 0, 0, 1)
	}
	nested = append(nested, byte(core.KindNull))

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1}, // Only message type, no flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Invalid length for cmd",
			data:        []byte{1, hasCmd, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Too many arguments",
			data:        []byte{1, hasArgs, 0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0},
			expectError: true,
		},
		{
			name:        "Unknown result kind",
			data:        []byte{2, hasResult, 99},
			expectError: true,
		},
		{
			name:        "Truncated integer result",
			data:        []byte{2, hasResult, byte(core.KindInteger), 0, 0},
			expectError: true,
		},
		{
			name:        "Array claims more items than data",
			data:        []byte{2, hasResult, byte(core.KindArray), 0, 0, 0, 10, byte(core.KindNull)},
			expectError: true,
		},
		{
			name:        "Result nested too deep",
			data:        nested,
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "gob", "binary"} {
		if _, err := ByName(name); err != nil {
			t.Errorf("ByName(%q) failed: %v", name, err)
		}
	}
	if _, err := ByName("xml"); err == nil {
		t.Errorf("expected an error for an unknown serializer")
	}
}

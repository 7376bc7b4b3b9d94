package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/ValentinKolb/dStruct/lib/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorResponseRestoresSentinel(t *testing.T) {
	for _, c := range core.ErrorCodes {
		t.Run(c.Code, func(t *testing.T) {
			msg := NewCommandResponse(core.Result{}, fmt.Errorf("wrapped: %w", c.Err))
			assert.Equal(t, MsgTError, msg.MsgType)
			assert.Equal(t, c.Code, msg.Code)

			err := msg.AsError()
			require.Error(t, err)
			assert.ErrorIs(t, err, c.Err)
			assert.True(t, IsRemote(err))
			assert.Equal(t, c.Code+" wrapped: "+c.Err.Error(), err.Error())
		})
	}
}

func TestUnknownErrorCode(t *testing.T) {
	err := NewCommandResponse(core.Result{}, errors.New("boom")).AsError()
	assert.Equal(t, "ERR boom", err.Error())
	assert.Nil(t, errors.Unwrap(err))
	assert.True(t, IsRemote(err))

	// a missing code still produces an error
	err = (&Message{MsgType: MsgTError, Err: "boom"}).AsError()
	assert.Equal(t, "ERR boom", err.Error())
}

func TestResultResponseHasNoError(t *testing.T) {
	msg := NewCommandResponse(core.OK(), nil)
	assert.Equal(t, MsgTResult, msg.MsgType)
	assert.NoError(t, msg.AsError())
	assert.False(t, IsRemote(errors.New("local")))
}

func TestMessageTypeJSON(t *testing.T) {
	for _, mt := range []MessageType{MsgTUnknown, MsgTCommand, MsgTResult, MsgTError} {
		data, err := json.Marshal(mt)
		require.NoError(t, err)

		var decoded MessageType
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, mt, decoded)
	}

	var mt MessageType
	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &mt))
}

func TestReplicaID(t *testing.T) {
	assert.Equal(t, ReplicaID("node-1"), ReplicaID("node-1"))
	assert.NotEqual(t, ReplicaID("node-1"), ReplicaID("node-2"))
}

func TestRaftAddress(t *testing.T) {
	id := ReplicaID("node-1")
	c := ServerConfig{
		ReplicaID:      id,
		ClusterMembers: map[uint64]string{id: "10.0.0.1:63001"},
	}
	assert.Equal(t, "10.0.0.1:63001", c.RaftAddress())

	c.RaftAddr = "0.0.0.0:63001"
	assert.Equal(t, "0.0.0.0:63001", c.RaftAddress())
}

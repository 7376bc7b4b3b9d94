package client

import (
	"fmt"

	"github.com/ValentinKolb/dStruct/lib/core"
	"github.com/ValentinKolb/dStruct/rpc/common"
	"github.com/ValentinKolb/dStruct/rpc/serializer"
	"github.com/ValentinKolb/dStruct/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("client")
)

// invokeRPCRequest is a helper function used by all sessions to send requests
// It takes a session ID, a request message, a transport layer and a serializer as parameters
// It returns the result of the command or the error the server reported as *common.RemoteError
func invokeRPCRequest(sessionID uint64, req *common.Message, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (core.Result, error) {
	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return core.Null(), err
	}

	respBytes, err := transport.Send(sessionID, reqBytes)
	if err != nil {
		return core.Null(), err
	}

	var resp common.Message
	if err := serializer.Deserialize(respBytes, &resp); err != nil {
		return core.Null(), fmt.Errorf("failed to decode response to %s: %w", req.Cmd, err)
	}

	switch resp.MsgType {
	case common.MsgTError:
		return core.Null(), resp.AsError()
	case common.MsgTResult:
		return resp.Result, nil
	default:
		return core.Null(), fmt.Errorf("unexpected message type %s in response to %s", resp.MsgType, req.Cmd)
	}
}

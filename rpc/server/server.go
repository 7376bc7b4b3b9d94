package server

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/ValentinKolb/dStruct/lib/core"
	"github.com/ValentinKolb/dStruct/lib/kv/memkv"
	"github.com/ValentinKolb/dStruct/lib/kv/raftkv"
	"github.com/ValentinKolb/dStruct/lib/pool"
	"github.com/ValentinKolb/dStruct/lib/txn"
	"github.com/ValentinKolb/dStruct/rpc/common"
	"github.com/ValentinKolb/dStruct/rpc/serializer"
	"github.com/ValentinKolb/dStruct/rpc/transport"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

// job is a request handed to the worker goroutines in async mode
type job struct {
	sessionID uint64
	req       []byte
	resp      chan []byte
}

// RPCServer serves the commands of one core.Store over a transport
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer

	store       *core.Store
	nodeHost    *dragonboat.NodeHost
	closeDriver func() error

	// async execution
	jobs    []chan job
	nextJob atomic.Uint64
	workers sync.WaitGroup
	stopCh  chan struct{}

	closeOnce sync.Once
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	// sync execution handles the requests of a connection one by one
	if config.Exec != common.ExecAsync {
		config.Transport.WorkersPerConn = 1
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		stopCh:     make(chan struct{}),
	}
}

// Store returns the store served by s, it is nil before Init
func (s *RPCServer) Store() *core.Store {
	return s.store
}

// Init opens the backend, connects the store and registers the transport handlers.
// Serve calls it, it is exported for callers that need the store before serving.
func (s *RPCServer) Init() error {
	if s.store != nil {
		return nil
	}

	opts := core.DriverOptions{
		DataDir: s.config.DataDir,
		ShardID: s.config.ShardID,
		Timeout: s.config.Timeout(),
	}

	if s.config.Backend == "raft" {
		nh, err := s.startRaft()
		if err != nil {
			return err
		}
		s.nodeHost = nh
		opts.NodeHost = nh
		// raft keeps its own data directory, the engine lives in memory
		opts.DataDir = ""
	}

	driver, closeDriver, err := core.OpenDriver(s.config.Backend, opts)
	if err != nil {
		s.stopRaft()
		return err
	}
	s.closeDriver = closeDriver

	s.store = core.New(core.Config{
		Driver:     driver,
		InstanceID: s.config.InstanceID,
		Mode:       s.config.Mode,
		Retry:      s.config.Retry,
		Pool:       pool.Config{MaxIdle: s.config.PoolMaxIdle},
	})

	ctx, cancel := s.context()
	defer cancel()
	if err := s.store.Connect(ctx, s.config.Addrs...); err != nil {
		_ = closeDriver()
		s.stopRaft()
		s.store = nil
		return fmt.Errorf("failed to connect to the %s backend: %w", s.config.Backend, err)
	}

	if s.config.Exec == common.ExecAsync {
		s.startWorkers(max(s.config.Workers, 1))
	}

	s.transport.RegisterHandler(s.handle)
	s.transport.RegisterDisconnectHandler(func(sessionID uint64) {
		ctx, cancel := s.context()
		defer cancel()
		s.store.Disconnect(ctx, txn.SessionID(sessionID))
	})

	Logger.Infof("dStruct setup completed successfully (backend %s, %s execution)", s.config.Backend, s.config.Exec)
	return nil
}

// Serve starts the RPC server.
// This function initializes the server and blocks in the transport layer until Close is called.
func (s *RPCServer) Serve() error {
	if err := s.Init(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Close stops the transport, rolls back open transactions and releases the backend
func (s *RPCServer) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		if err := s.transport.Close(); err != nil {
			errs = append(errs, err)
		}

		close(s.stopCh)
		s.workers.Wait()

		if s.store != nil {
			ctx, cancel := s.context()
			if err := s.store.Close(ctx); err != nil && !errors.Is(err, core.ErrNotConnected) {
				errs = append(errs, err)
			}
			cancel()
			if err := s.closeDriver(); err != nil {
				errs = append(errs, err)
			}
		}
		s.stopRaft()
		Logger.Infof("Server stopped")
	})
	return errors.Join(errs...)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// context returns the context of a single request
func (s *RPCServer) context() (context.Context, context.CancelFunc) {
	if timeout := s.config.Timeout(); timeout > 0 {
		return context.WithTimeout(context.Background(), timeout)
	}
	return context.WithCancel(context.Background())
}

// startRaft creates the node host and starts the replica of the configured shard
func (s *RPCServer) startRaft() (*dragonboat.NodeHost, error) {
	nh, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create node host: %w", err)
	}
	factory := raftkv.CreateStateMachineFactory(memkv.NewEngine)
	if err := nh.StartConcurrentReplica(s.config.ClusterMembers, false, factory, s.config.ToDragonboatConfig()); err != nil {
		nh.Close()
		return nil, fmt.Errorf("failed to start shard %d: %w", s.config.ShardID, err)
	}
	Logger.Infof("Started replica %d of shard %d on %s", s.config.ReplicaID, s.config.ShardID, s.config.RaftAddress())
	return nh, nil
}

func (s *RPCServer) stopRaft() {
	if s.nodeHost != nil {
		s.nodeHost.Close()
		s.nodeHost = nil
	}
}

// startWorkers starts n worker goroutines, each with its own queue
func (s *RPCServer) startWorkers(n int) {
	s.jobs = make([]chan job, n)
	for i := range s.jobs {
		ch := make(chan job)
		s.jobs[i] = ch
		s.workers.Add(1)
		go func() {
			defer s.workers.Done()
			for {
				select {
				case j := <-ch:
					j.resp <- s.execute(j.sessionID, j.req)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
}

// handle is the transport handler. In async mode the request is executed by
// the next worker, otherwise on the calling goroutine.
func (s *RPCServer) handle(sessionID uint64, req []byte) []byte {
	if len(s.jobs) == 0 {
		return s.execute(sessionID, req)
	}
	j := job{sessionID: sessionID, req: req, resp: make(chan []byte, 1)}
	select {
	case s.jobs[s.nextJob.Add(1)%uint64(len(s.jobs))] <- j:
		return <-j.resp
	case <-s.stopCh:
		val, _ := s.serializer.Serialize(*common.NewErrorResponse(core.ErrorCode(core.ErrNotConnected), "server is shutting down"))
		return val
	}
}

// execute decodes a request, dispatches the command and encodes the response
func (s *RPCServer) execute(sessionID uint64, req []byte) []byte {
	var (
		msg     common.Message
		respMsg *common.Message
	)

	if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse("ERR", fmt.Sprintf("failed to deserialize request: %s", err))
	} else if msg.MsgType != common.MsgTCommand {
		respMsg = common.NewErrorResponse("ERR", fmt.Sprintf("unexpected message type %s", msg.MsgType))
	} else {
		ctx, cancel := s.context()
		res, err := s.store.Dispatch(ctx, txn.SessionID(sessionID), msg.Cmd, msg.Args)
		cancel()
		respMsg = common.NewCommandResponse(res, err)
	}

	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("Failed to serialize response: %v", err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse("ERR", fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

package serve

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/dStruct/cmd/util"
	"github.com/ValentinKolb/dStruct/lib/txn"
	"github.com/ValentinKolb/dStruct/rpc/common"
	"github.com/ValentinKolb/dStruct/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dstruct server",
		Long:    `Start the dstruct server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DSTRUCT_<flag> (e.g. DSTRUCT_BACKEND=badger)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// backend
	key := "backend"
	ServeCmd.PersistentFlags().String(key, "memory", cmdUtil.WrapString("The storage backend (memory, badger, raft, tikv)"))

	key = "addrs"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated list of backend addresses (the PD endpoints of tikv, ignored by the other backends). Defaults to 127.0.0.1:2379"))

	key = "instance-id"
	ServeCmd.PersistentFlags().Uint64(key, 0, cmdUtil.WrapString("The instance id namespaces all keys, servers with different ids can share one backend"))

	key = "mode"
	ServeCmd.PersistentFlags().String(key, "txn", cmdUtil.WrapString("How commands outside an explicit transaction run: txn (each command in its own transaction) or raw (directly on the raw client)"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Data directory of the badger and raft backends. badger keeps its data in memory if empty"))

	// execution
	key = "exec"
	ServeCmd.PersistentFlags().String(key, "sync", cmdUtil.WrapString("Execution mode: sync (one request per connection at a time) or async (requests are handed to a pool of workers)"))

	key = "workers"
	ServeCmd.PersistentFlags().Int(key, 16, cmdUtil.WrapString("Number of workers in async execution mode"))

	key = "workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, 16, cmdUtil.WrapString("Concurrent requests per connection in async execution mode"))

	key = "retry-base"
	ServeCmd.PersistentFlags().Duration(key, txn.DefaultRetryPolicy.BaseDelay, cmdUtil.WrapString("First backoff when retrying a conflicting operation"))

	key = "retry-cap"
	ServeCmd.PersistentFlags().Duration(key, txn.DefaultRetryPolicy.MaxDelay, cmdUtil.WrapString("Maximum backoff when retrying a conflicting operation"))

	key = "retry-deadline"
	ServeCmd.PersistentFlags().Duration(key, txn.DefaultRetryPolicy.Deadline, cmdUtil.WrapString("Total time spent retrying a single operation"))

	key = "pool-max-idle"
	ServeCmd.PersistentFlags().Int(key, 16, cmdUtil.WrapString("Maximum number of idle backend clients kept in the pool"))

	// raft
	key = "shard-id"
	ServeCmd.PersistentFlags().Uint64(key, 100, cmdUtil.WrapString("(raft) The shard holding the data"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft) ReplicaID is the unique name of this replica (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft) Comma-separated list of replicas in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "raft-address"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft) Address of this replica, defaults to its entry in cluster-members"))

	key = "rtt"
	ServeCmd.PersistentFlags().Uint64(key, 100, cmdUtil.WrapString("(raft) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two replicas. The election and heartbeat timeouts are derived from this value"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Uint64(key, 1000, cmdUtil.WrapString("(raft) SnapshotEntries defines how often the state machine should be snapshotted automatically, in applied Raft log entries. 0 disables automatic snapshots"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Uint64(key, 500, cmdUtil.WrapString("(raft) CompactionOverhead defines the number of log entries kept after a snapshot"))

	// front end
	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the server will listen (e.g. localhost:8080, /tmp/dstruct.sock)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout of a single command in seconds"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	var err error
	c := serveCmdConfig

	c.Backend = strings.ToLower(viper.GetString("backend"))
	c.Addrs = cmdUtil.SplitList(viper.GetString("addrs"))
	c.InstanceID = viper.GetUint64("instance-id")
	c.DataDir = viper.GetString("data-dir")
	if c.Mode, err = txn.ParseMode(viper.GetString("mode")); err != nil {
		return err
	}

	if c.Exec, err = common.ParseExecMode(viper.GetString("exec")); err != nil {
		return err
	}
	c.Workers = viper.GetInt("workers")
	c.Retry = txn.RetryPolicy{
		BaseDelay:     viper.GetDuration("retry-base"),
		MaxDelay:      viper.GetDuration("retry-cap"),
		Deadline:      viper.GetDuration("retry-deadline"),
		JitterPercent: txn.DefaultRetryPolicy.JitterPercent,
	}
	c.PoolMaxIdle = viper.GetInt("pool-max-idle")

	c.ShardID = viper.GetUint64("shard-id")
	c.RaftAddr = viper.GetString("raft-address")
	c.RTTMillisecond = viper.GetUint64("rtt")
	c.SnapshotEntries = viper.GetUint64("snapshot-entries")
	c.CompactionOverhead = viper.GetUint64("compaction-overhead")

	c.TimeoutSecond = viper.GetInt64("timeout")
	c.LogLevel = viper.GetString("log-level")
	c.Transport = common.ServerTransportConfig{
		Endpoint:       viper.GetString("endpoint"),
		WorkersPerConn: viper.GetInt("workers-per-conn"),
		TCPConf:        common.TCPConf{TCPNoDelay: true, TCPLingerSec: -1},
	}

	if c.Backend != "raft" {
		return nil
	}

	// parse replica id
	id := viper.GetString("replica-id")
	if id == "" {
		return fmt.Errorf("replica-id is required for the raft backend")
	}
	c.ReplicaID = common.ReplicaID(id)

	// parse cluster members
	members := cmdUtil.SplitList(viper.GetString("cluster-members"))
	if len(members) == 0 {
		return fmt.Errorf("cluster-members is required for the raft backend")
	}
	c.ClusterMembers = make(map[uint64]string, len(members))
	for _, member := range members {
		parts := strings.SplitN(member, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("invalid cluster member format: %s (expected name=address)", member)
		}
		c.ClusterMembers[common.ReplicaID(parts[0])] = parts[1]
	}

	// the replica must be one of the cluster members
	if _, ok := c.ClusterMembers[c.ReplicaID]; !ok {
		return fmt.Errorf("replica %s is not listed in cluster-members", id)
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}

	return nil
}

// run starts the dstruct server and stops it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	if err := common.InitLoggers(serveCmdConfig.LogLevel); err != nil {
		return err
	}

	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(*serveCmdConfig, t, s)

	done := make(chan error, 1)
	go func() { done <- serv.Serve() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-done:
		if closeErr := serv.Close(); err == nil {
			err = closeErr
		}
		return err
	case s := <-sig:
		server.Logger.Infof("Received %s, shutting down", s)
		if err := serv.Close(); err != nil {
			return err
		}
		return <-done
	}
}

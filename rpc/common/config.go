package common

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dStruct/lib/txn"
	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the raft backend)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ReplicaID derives the numeric replica id from a replica name (e.g. "node-1").
func ReplicaID(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig() config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            c.ShardID,
		ElectionRTT:        electionRTTFactor,  // = c.RTTMillisecond * 10
		HeartbeatRTT:       heartbeatRTTFactor, // = c.RTTMillisecond * 1
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.RaftAddress(),
	}
}

// RaftAddress returns the raft address of this replica. An explicit address
// overrides the one listed in the cluster members.
func (c *ServerConfig) RaftAddress() string {
	if c.RaftAddr != "" {
		return c.RaftAddr
	}
	return c.ClusterMembers[c.ReplicaID]
}

// --------------------------------------------------------------------------
// Transport configuration
// --------------------------------------------------------------------------

// SocketConf configures the socket buffers of stream transports
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds options only used by the tcp transport
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// ServerTransportConfig configures the server side of the transport
type ServerTransportConfig struct {
	Endpoint       string
	WorkersPerConn int // concurrent requests per connection
	SocketConf
	TCPConf
}

// ClientTransportConfig configures the client side of the transport
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ExecMode selects how the server schedules requests.
type ExecMode string

const (
	// ExecSync runs every request on the goroutine of its connection.
	ExecSync ExecMode = "sync"
	// ExecAsync hands requests to a fixed set of worker goroutines.
	ExecAsync ExecMode = "async"
)

// ParseExecMode parses "sync" or "async".
func ParseExecMode(s string) (ExecMode, error) {
	switch m := ExecMode(strings.ToLower(s)); m {
	case ExecSync, ExecAsync:
		return m, nil
	default:
		return "", fmt.Errorf("invalid execution mode %q (expected sync or async)", s)
	}
}

// ServerConfig holds all configuration parameters of a dStruct server.
type ServerConfig struct {
	// Backend
	Backend    string   // memory, badger, raft or tikv
	Addrs      []string // backend addresses passed to connect
	InstanceID uint64
	Mode       txn.Mode
	DataDir    string

	// Execution
	Exec    ExecMode
	Workers int

	// Retry and pool
	Retry       txn.RetryPolicy
	PoolMaxIdle int

	// Dragonboat parameters (raft backend only)
	ShardID            uint64
	ReplicaID          uint64
	RaftAddr           string
	ClusterMembers     map[uint64]string
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64

	// Timeout of a single request in seconds
	TimeoutSecond int64

	// Transport settings
	Transport ServerTransportConfig

	// Logging configuration
	LogLevel string
}

// Timeout returns the request timeout, zero disables it.
func (c *ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Execution", string(c.Exec))
	if c.Exec == ExecAsync {
		addField("Workers", strconv.Itoa(c.Workers))
	}

	// Backend
	addSection("Backend")
	addField("Driver", c.Backend)
	addField("Addresses", strings.Join(c.Addrs, ","))
	addField("Instance ID", strconv.FormatUint(c.InstanceID, 10))
	addField("Mode", c.Mode.String())
	addField("Pool Max Idle", strconv.Itoa(c.PoolMaxIdle))
	if c.DataDir != "" {
		addField("Data Directory", c.DataDir)
	}

	// Retry
	addSection("Retry")
	addField("Deadline", c.Retry.Deadline.String())
	addField("Base Delay", c.Retry.BaseDelay.String())
	addField("Max Delay", c.Retry.MaxDelay.String())

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	if c.Backend == "raft" {
		// Node Identity
		addSection("Node Identity")
		addField("RAFT Address", c.RaftAddress())
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))
		addField("Shard ID", strconv.FormatUint(c.ShardID, 10))

		// RAFT parameters
		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))

		// Cluster configuration
		addSection("Cluster")
		sb.WriteString("  Initial Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// Timeout returns the request timeout, zero disables it.
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(max(1, c.Transport.ConnectionsPerEndpoint)))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}

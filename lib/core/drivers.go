package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/ValentinKolb/dStruct/lib/kv/badgerkv"
	"github.com/ValentinKolb/dStruct/lib/kv/memkv"
	"github.com/ValentinKolb/dStruct/lib/kv/raftkv"
	"github.com/ValentinKolb/dStruct/lib/kv/tikv"
)

// DriverOptions carries the settings of all backends, each backend reads only its own.
type DriverOptions struct {
	DataDir  string           // badger: data directory, empty keeps the data in memory
	NodeHost raftkv.INodeHost // raft: node host running the shard
	ShardID  uint64           // raft: shard holding the data
	Timeout  time.Duration    // raft: timeout of a single proposal or read
}

// DriverNames lists the names accepted by OpenDriver.
var DriverNames = []string{string(kv.ImplMemory), string(kv.ImplBadger), string(kv.ImplRaft), string(kv.ImplTiKV)}

// OpenDriver creates the backend driver called name. The returned function
// releases resources owned by the driver and must be called after the store is closed.
func OpenDriver(name string, opts DriverOptions) (kv.IDriver, func() error, error) {
	noop := func() error { return nil }
	switch kv.Implementation(strings.ToLower(name)) {
	case kv.ImplMemory:
		return memkv.NewDriver(), noop, nil
	case kv.ImplBadger:
		d, err := badgerkv.Open(badgerkv.Options{Dir: opts.DataDir, InMemory: opts.DataDir == ""})
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil
	case kv.ImplRaft:
		if opts.NodeHost == nil {
			return nil, nil, fmt.Errorf("%w: the raft backend needs a node host", ErrArgument)
		}
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		return raftkv.NewDriver(opts.NodeHost, opts.ShardID, timeout), noop, nil
	case kv.ImplTiKV:
		return tikv.NewDriver(), noop, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown backend %q, expected one of %s", ErrArgument, name, strings.Join(DriverNames, ", "))
	}
}

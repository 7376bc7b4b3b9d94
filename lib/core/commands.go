package core

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dStruct/lib/kv"
	"github.com/ValentinKolb/dStruct/lib/txn"
	"github.com/ValentinKolb/dStruct/lib/types"
	"github.com/VictoriaMetrics/metrics"
)

var (
	requestsTotal = metrics.NewCounter("dstruct_requests_total")
	errorsTotal   = metrics.NewCounter("dstruct_errors_total")
)

// Command describes one entry of the command table.
type Command struct {
	Name    string
	Aliases []string
	Group   string
	Usage   string // argument synopsis, e.g. "key value"
	Summary string

	// MinArgs and MaxArgs bound the number of arguments, MaxArgs < 0 means unbounded.
	MinArgs, MaxArgs int
	// Pairs requires the arguments after the first Leading ones to form key value pairs.
	Pairs   bool
	Leading int

	handler  func(c *call) (Result, error)
	requests *metrics.Counter
	errors   *metrics.Counter
	duration *metrics.Histogram
}

func (cmd *Command) checkArity(n int) error {
	switch {
	case n < cmd.MinArgs, cmd.MaxArgs >= 0 && n > cmd.MaxArgs:
		return fmt.Errorf("%w: wrong number of arguments for '%s', usage: %s %s", ErrArgument, cmd.Name, cmd.Name, cmd.Usage)
	case cmd.Pairs && (n-cmd.Leading)%2 != 0:
		return fmt.Errorf("%w: '%s' expects key value pairs, usage: %s %s", ErrArgument, cmd.Name, cmd.Name, cmd.Usage)
	}
	return nil
}

var (
	commandTable = map[string]*Command{}
	commandList  []*Command
)

func register(cmd *Command) {
	cmd.requests = metrics.GetOrCreateCounter(fmt.Sprintf(`dstruct_command_requests_total{cmd=%q}`, cmd.Name))
	cmd.errors = metrics.GetOrCreateCounter(fmt.Sprintf(`dstruct_command_errors_total{cmd=%q}`, cmd.Name))
	cmd.duration = metrics.GetOrCreateHistogram(fmt.Sprintf(`dstruct_command_duration_seconds{cmd=%q}`, cmd.Name))
	for _, name := range append([]string{cmd.Name}, cmd.Aliases...) {
		if _, dup := commandTable[name]; dup {
			panic(fmt.Sprintf("core: command %q registered twice", name))
		}
		commandTable[name] = cmd
	}
	commandList = append(commandList, cmd)
}

// Commands returns the command table sorted by group and name.
func Commands() []*Command {
	out := append([]*Command(nil), commandList...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// LookupCommand finds a command by name or alias, ignoring case.
func LookupCommand(name string) (*Command, bool) {
	cmd, ok := commandTable[strings.ToLower(name)]
	return cmd, ok
}

// Dispatch executes the command name with args for session sid.
func (s *Store) Dispatch(ctx context.Context, sid txn.SessionID, name string, args [][]byte) (Result, error) {
	requestsTotal.Inc()
	cmd, ok := LookupCommand(name)
	if !ok {
		errorsTotal.Inc()
		return Null(), fmt.Errorf("%w '%s'", ErrUnknownCommand, name)
	}
	cmd.requests.Inc()
	if err := cmd.checkArity(len(args)); err != nil {
		cmd.errors.Inc()
		errorsTotal.Inc()
		return Null(), err
	}

	start := time.Now()
	res, err := cmd.handler(&call{ctx: ctx, s: s, sid: sid, args: args})
	cmd.duration.UpdateDuration(start)
	if err != nil {
		cmd.errors.Inc()
		errorsTotal.Inc()
		log.Debugf("session %s: %s failed: %v", sid, cmd.Name, err)
		return Null(), err
	}
	return res, nil
}

// --------------------------------------------------------------------------
// Call helpers
// --------------------------------------------------------------------------

// call is a single command invocation.
type call struct {
	ctx  context.Context
	s    *Store
	sid  txn.SessionID
	args [][]byte
}

// run executes fn in the transaction context of the session.
func (c *call) run(fn func(ctx context.Context, h kv.IReadWriter) error) error {
	return c.s.Run(c.ctx, c.sid, func(h kv.IReadWriter) error {
		return fn(c.ctx, h)
	})
}

func (c *call) str(i int) string { return string(c.args[i]) }

func (c *call) strs(from int) []string {
	out := make([]string, 0, len(c.args)-from)
	for _, a := range c.args[from:] {
		out = append(out, string(a))
	}
	return out
}

func (c *call) pairs(from int) []types.Pair {
	out := make([]types.Pair, 0, (len(c.args)-from)/2)
	for i := from; i+1 < len(c.args); i += 2 {
		out = append(out, types.Pair{Key: string(c.args[i]), Value: c.args[i+1]})
	}
	return out
}

func (c *call) int(i int) (int64, error) {
	n, err := strconv.ParseInt(string(c.args[i]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrArgument, c.args[i])
	}
	return n, nil
}

func pairArray(pairs []types.Pair) Result {
	items := make([]Result, len(pairs))
	for i, p := range pairs {
		items[i] = Array(Bulk([]byte(p.Key)), Bulk(p.Value))
	}
	return Array(items...)
}

// --------------------------------------------------------------------------
// Command table
// --------------------------------------------------------------------------

const (
	groupConnection = "connection"
	groupString     = "string"
	groupHash       = "hash"
	groupList       = "list"
	groupSet        = "set"
	groupAdmin      = "admin"
)

func init() {
	for _, cmd := range []*Command{
		// connection
		{Name: "connect", Group: groupConnection, Usage: "[addr...]", Summary: "Connect to the backend", MinArgs: 0, MaxArgs: -1, handler: cmdConnect},
		{Name: "close", Group: groupConnection, Usage: "", Summary: "Close the backend connection", MaxArgs: 0, handler: cmdClose},
		{Name: "begin", Group: groupConnection, Usage: "", Summary: "Start a transaction for this session", MaxArgs: 0, handler: cmdBegin},
		{Name: "commit", Group: groupConnection, Usage: "", Summary: "Commit the transaction of this session", MaxArgs: 0, handler: cmdCommit},
		{Name: "rollback", Group: groupConnection, Usage: "", Summary: "Roll back the transaction of this session", MaxArgs: 0, handler: cmdRollback},

		// strings
		{Name: "get", Group: groupString, Usage: "key", Summary: "Get the value of a key", MinArgs: 1, MaxArgs: 1, handler: cmdGet},
		{Name: "put", Aliases: []string{"set"}, Group: groupString, Usage: "key value", Summary: "Set the value of a key", MinArgs: 2, MaxArgs: 2, handler: cmdPut},
		{Name: "setnx", Group: groupString, Usage: "key value", Summary: "Set the value of a key if it does not exist", MinArgs: 2, MaxArgs: 2, handler: cmdSetNX},
		{Name: "del", Group: groupString, Usage: "key [key...]", Summary: "Delete keys", MinArgs: 1, MaxArgs: -1, handler: cmdDel},
		{Name: "exists", Group: groupString, Usage: "key [key...]", Summary: "Count existing keys", MinArgs: 1, MaxArgs: -1, handler: cmdExists},
		{Name: "scan", Group: groupString, Usage: "start [end] limit", Summary: "List keys in [start, end)", MinArgs: 2, MaxArgs: 3, handler: cmdScan},
		{Name: "mget", Aliases: []string{"batchget"}, Group: groupString, Usage: "key [key...]", Summary: "Get the values of several keys", MinArgs: 1, MaxArgs: -1, handler: cmdMGet},
		{Name: "mset", Aliases: []string{"batchput"}, Group: groupString, Usage: "key value [key value...]", Summary: "Set several keys", MinArgs: 2, MaxArgs: -1, Pairs: true, handler: cmdMSet},
		{Name: "incr", Group: groupString, Usage: "key", Summary: "Increment the integer value of a key by one", MinArgs: 1, MaxArgs: 1, handler: cmdIncr},
		{Name: "decr", Group: groupString, Usage: "key", Summary: "Decrement the integer value of a key by one", MinArgs: 1, MaxArgs: 1, handler: cmdDecr},
		{Name: "incrby", Group: groupString, Usage: "key step", Summary: "Increment the integer value of a key", MinArgs: 2, MaxArgs: 2, handler: cmdIncrBy},
		{Name: "decrby", Group: groupString, Usage: "key step", Summary: "Decrement the integer value of a key", MinArgs: 2, MaxArgs: 2, handler: cmdDecrBy},

		// hashes
		{Name: "hset", Group: groupHash, Usage: "key field value", Summary: "Set a hash field", MinArgs: 3, MaxArgs: 3, handler: cmdHSet},
		{Name: "hget", Group: groupHash, Usage: "key field", Summary: "Get a hash field", MinArgs: 2, MaxArgs: 2, handler: cmdHGet},
		{Name: "hmset", Group: groupHash, Usage: "key field value [field value...]", Summary: "Set several hash fields", MinArgs: 3, MaxArgs: -1, Pairs: true, Leading: 1, handler: cmdHMSet},
		{Name: "hmget", Group: groupHash, Usage: "key field [field...]", Summary: "Get several hash fields", MinArgs: 2, MaxArgs: -1, handler: cmdHMGet},
		{Name: "hexists", Group: groupHash, Usage: "key field", Summary: "Check if a hash field exists", MinArgs: 2, MaxArgs: 2, handler: cmdHExists},
		{Name: "hdel", Group: groupHash, Usage: "key field [field...]", Summary: "Delete hash fields", MinArgs: 2, MaxArgs: -1, handler: cmdHDel},
		{Name: "hgetall", Group: groupHash, Usage: "key", Summary: "Get all fields and values of a hash", MinArgs: 1, MaxArgs: 1, handler: cmdHGetAll},
		{Name: "hkeys", Group: groupHash, Usage: "key", Summary: "Get all fields of a hash", MinArgs: 1, MaxArgs: 1, handler: cmdHKeys},
		{Name: "hvals", Group: groupHash, Usage: "key", Summary: "Get all values of a hash", MinArgs: 1, MaxArgs: 1, handler: cmdHVals},

		// lists
		{Name: "lpush", Group: groupList, Usage: "key element [element...]", Summary: "Prepend elements to a list", MinArgs: 2, MaxArgs: -1, handler: cmdPush(types.Left)},
		{Name: "rpush", Group: groupList, Usage: "key element [element...]", Summary: "Append elements to a list", MinArgs: 2, MaxArgs: -1, handler: cmdPush(types.Right)},
		{Name: "lpop", Group: groupList, Usage: "key [count]", Summary: "Remove and return the first elements of a list", MinArgs: 1, MaxArgs: 2, handler: cmdPop(types.Left)},
		{Name: "rpop", Group: groupList, Usage: "key [count]", Summary: "Remove and return the last elements of a list", MinArgs: 1, MaxArgs: 2, handler: cmdPop(types.Right)},
		{Name: "lrange", Group: groupList, Usage: "key start stop", Summary: "Get a range of elements", MinArgs: 3, MaxArgs: 3, handler: cmdLRange},
		{Name: "llen", Group: groupList, Usage: "key", Summary: "Get the length of a list", MinArgs: 1, MaxArgs: 1, handler: cmdLLen},
		{Name: "lindex", Group: groupList, Usage: "key index", Summary: "Get an element by its index", MinArgs: 2, MaxArgs: 2, handler: cmdLIndex},
		{Name: "ldel", Group: groupList, Usage: "key", Summary: "Delete a list", MinArgs: 1, MaxArgs: 1, handler: cmdLDel},
		{Name: "ltrim", Group: groupList, Usage: "key start stop", Summary: "Trim a list to a range", MinArgs: 3, MaxArgs: 3, handler: cmdLTrim},
		{Name: "lpos", Group: groupList, Usage: "key element", Summary: "Get the position of an element", MinArgs: 2, MaxArgs: 2, handler: cmdLPos},

		// sets
		{Name: "sadd", Group: groupSet, Usage: "key member [member...]", Summary: "Add members to a set", MinArgs: 2, MaxArgs: -1, handler: cmdSAdd},
		{Name: "scard", Group: groupSet, Usage: "key", Summary: "Get the number of members of a set", MinArgs: 1, MaxArgs: 1, handler: cmdSCard},
		{Name: "smembers", Group: groupSet, Usage: "key", Summary: "Get all members of a set", MinArgs: 1, MaxArgs: 1, handler: cmdSMembers},

		// admin
		{Name: "status", Group: groupAdmin, Usage: "[metrics]", Summary: "Show the store status or its metrics", MaxArgs: 1, handler: cmdStatus},
		{Name: "rawscan", Group: groupAdmin, Usage: "start [end] limit", Summary: "List physical keys of the backend", MinArgs: 2, MaxArgs: 3, handler: cmdRawScan},
	} {
		register(cmd)
	}
}

// --------------------------------------------------------------------------
// Connection commands
// --------------------------------------------------------------------------

func cmdConnect(c *call) (Result, error) {
	if err := c.s.Connect(c.ctx, c.strs(0)...); err != nil {
		return Null(), err
	}
	return OK(), nil
}

func cmdClose(c *call) (Result, error) {
	if err := c.s.Close(c.ctx); err != nil {
		return Null(), err
	}
	return Status("Closed"), nil
}

func cmdBegin(c *call) (Result, error) {
	return OK(), c.s.Begin(c.ctx, c.sid)
}

func cmdCommit(c *call) (Result, error) {
	return OK(), c.s.Commit(c.ctx, c.sid)
}

func cmdRollback(c *call) (Result, error) {
	return OK(), c.s.Rollback(c.ctx, c.sid)
}

// --------------------------------------------------------------------------
// String commands
// --------------------------------------------------------------------------

func cmdGet(c *call) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		v, found, err := c.s.strings.Get(ctx, h, c.str(0))
		res = BulkOrNull(v, found)
		return err
	})
	return res, err
}

func cmdPut(c *call) (Result, error) {
	err := c.run(func(ctx context.Context, h kv.IReadWriter) error {
		return c.s.strings.Put(ctx, h, c.str(0), c.args[1])
	})
	return OK(), err
}

func cmdSetNX(c *call) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		ok, err := c.s.strings.SetNX(ctx, h, c.str(0), c.args[1])
		res = Bool(ok)
		return err
	})
	return res, err
}

func cmdDel(c *call) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		n, err := c.s.strings.Del(ctx, h, c.strs(0)...)
		res = Integer(n)
		return err
	})
	return res, err
}

func cmdExists(c *call) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		n, err := c.s.strings.Exists(ctx, h, c.strs(0)...)
		res = Integer(n)
		return err
	})
	return res, err
}

func cmdScan(c *call) (res Result, err error) {
	var end *string
	if len(c.args) == 3 {
		e := c.str(1)
		end = &e
	}
	limit, err := c.int(len(c.args) - 1)
	if err != nil {
		return Null(), err
	}
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		pairs, err := c.s.strings.Scan(ctx, h, c.str(0), end, int(limit))
		res = pairArray(pairs)
		return err
	})
	return res, err
}

func cmdMGet(c *call) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		values, err := c.s.strings.BatchGet(ctx, h, c.strs(0)...)
		res = BulkArray(values)
		return err
	})
	return res, err
}

func cmdMSet(c *call) (Result, error) {
	err := c.run(func(ctx context.Context, h kv.IReadWriter) error {
		return c.s.strings.BatchPut(ctx, h, c.pairs(0))
	})
	return OK(), err
}

func incrBy(c *call, step int64) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		n, err := c.s.strings.IncrBy(ctx, h, c.str(0), step)
		res = Integer(n)
		return err
	})
	return res, err
}

func decrBy(c *call, step int64) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		n, err := c.s.strings.DecrBy(ctx, h, c.str(0), step)
		res = Integer(n)
		return err
	})
	return res, err
}

func cmdIncr(c *call) (Result, error) { return incrBy(c, 1) }

func cmdDecr(c *call) (Result, error) { return decrBy(c, 1) }

func cmdIncrBy(c *call) (Result, error) {
	step, err := c.int(1)
	if err != nil {
		return Null(), err
	}
	return incrBy(c, step)
}

func cmdDecrBy(c *call) (Result, error) {
	step, err := c.int(1)
	if err != nil {
		return Null(), err
	}
	return decrBy(c, step)
}

// --------------------------------------------------------------------------
// Hash commands
// --------------------------------------------------------------------------

func cmdHSet(c *call) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		n, err := c.s.hashes.HSet(ctx, h, c.str(0), c.str(1), c.args[2])
		res = Integer(n)
		return err
	})
	return res, err
}

func cmdHGet(c *call) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		v, found, err := c.s.hashes.HGet(ctx, h, c.str(0), c.str(1))
		res = BulkOrNull(v, found)
		return err
	})
	return res, err
}

func cmdHMSet(c *call) (Result, error) {
	err := c.run(func(ctx context.Context, h kv.IReadWriter) error {
		return c.s.hashes.HMSet(ctx, h, c.str(0), c.pairs(1))
	})
	return OK(), err
}

func cmdHMGet(c *call) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		values, err := c.s.hashes.HMGet(ctx, h, c.str(0), c.strs(1)...)
		res = BulkArray(values)
		return err
	})
	return res, err
}

func cmdHExists(c *call) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		ok, err := c.s.hashes.HExists(ctx, h, c.str(0), c.str(1))
		res = Bool(ok)
		return err
	})
	return res, err
}

func cmdHDel(c *call) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		n, err := c.s.hashes.HDel(ctx, h, c.str(0), c.strs(1)...)
		res = Integer(n)
		return err
	})
	return res, err
}

// cmdHGetAll replies with a flat array of fields and values.
func cmdHGetAll(c *call) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		pairs, err := c.s.hashes.HGetAll(ctx, h, c.str(0))
		items := make([]Result, 0, 2*len(pairs))
		for _, p := range pairs {
			items = append(items, Bulk([]byte(p.Key)), Bulk(p.Value))
		}
		res = Array(items...)
		return err
	})
	return res, err
}

func cmdHKeys(c *call) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		keys, err := c.s.hashes.HKeys(ctx, h, c.str(0))
		res = BulkArray(keys)
		return err
	})
	return res, err
}

func cmdHVals(c *call) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		values, err := c.s.hashes.HVals(ctx, h, c.str(0))
		res = BulkArray(values)
		return err
	})
	return res, err
}

// --------------------------------------------------------------------------
// List commands
// --------------------------------------------------------------------------

func cmdPush(dir types.Direction) func(c *call) (Result, error) {
	return func(c *call) (res Result, err error) {
		err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
			n, err := c.s.lists.Push(ctx, h, c.str(0), c.args[1:], dir)
			res = Integer(n)
			return err
		})
		return res, err
	}
}

// cmdPop replies with a single element without count and with an array with count.
func cmdPop(dir types.Direction) func(c *call) (Result, error) {
	return func(c *call) (res Result, err error) {
		count, withCount := int64(1), len(c.args) == 2
		if withCount {
			if count, err = c.int(1); err != nil {
				return Null(), err
			}
		}
		err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
			values, err := c.s.lists.Pop(ctx, h, c.str(0), count, dir)
			switch {
			case len(values) == 0:
				res = Null()
			case withCount:
				res = BulkArray(values)
			default:
				res = Bulk(values[0])
			}
			return err
		})
		return res, err
	}
}

func cmdLRange(c *call) (res Result, err error) {
	start, err := c.int(1)
	if err != nil {
		return Null(), err
	}
	stop, err := c.int(2)
	if err != nil {
		return Null(), err
	}
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		values, err := c.s.lists.Range(ctx, h, c.str(0), start, stop)
		res = BulkArray(values)
		return err
	})
	return res, err
}

func cmdLLen(c *call) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		n, err := c.s.lists.Len(ctx, h, c.str(0))
		res = Integer(n)
		return err
	})
	return res, err
}

func cmdLIndex(c *call) (res Result, err error) {
	i, err := c.int(1)
	if err != nil {
		return Null(), err
	}
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		v, found, err := c.s.lists.Index(ctx, h, c.str(0), i)
		res = BulkOrNull(v, found)
		return err
	})
	return res, err
}

func cmdLDel(c *call) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		n, err := c.s.lists.Delete(ctx, h, c.str(0))
		res = Integer(n)
		return err
	})
	return res, err
}

func cmdLTrim(c *call) (Result, error) {
	start, err := c.int(1)
	if err != nil {
		return Null(), err
	}
	stop, err := c.int(2)
	if err != nil {
		return Null(), err
	}
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		return c.s.lists.Trim(ctx, h, c.str(0), start, stop)
	})
	return OK(), err
}

func cmdLPos(c *call) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		pos, found, err := c.s.lists.Pos(ctx, h, c.str(0), c.args[1])
		if found {
			res = Integer(pos)
		} else {
			res = Null()
		}
		return err
	})
	return res, err
}

// --------------------------------------------------------------------------
// Set commands
// --------------------------------------------------------------------------

func cmdSAdd(c *call) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		n, err := c.s.sets.SAdd(ctx, h, c.str(0), c.strs(1)...)
		res = Integer(n)
		return err
	})
	return res, err
}

func cmdSCard(c *call) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		n, err := c.s.sets.SCard(ctx, h, c.str(0))
		res = Integer(n)
		return err
	})
	return res, err
}

func cmdSMembers(c *call) (res Result, err error) {
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		members, err := c.s.sets.SMembers(ctx, h, c.str(0))
		res = BulkArray(members)
		return err
	})
	return res, err
}

// --------------------------------------------------------------------------
// Admin commands
// --------------------------------------------------------------------------

func cmdStatus(c *call) (Result, error) {
	if len(c.args) == 1 {
		if !strings.EqualFold(c.str(0), "metrics") {
			return Null(), fmt.Errorf("%w: unknown status section %q", ErrArgument, c.args[0])
		}
		var buf bytes.Buffer
		c.s.WriteMetrics(&buf)
		return Bulk(buf.Bytes()), nil
	}

	st := c.s.Status()
	var sb strings.Builder
	line := func(name string, value any) {
		fmt.Fprintf(&sb, "%s:%v\n", name, value)
	}
	line("instance_id", st.InstanceID)
	line("backend", st.Backend.Impl)
	line("persistent", st.Backend.Supports(kv.FeaturePersistent))
	line("replicated", st.Backend.Supports(kv.FeatureReplicated))
	line("mode", st.Mode)
	line("connected", st.Connected)
	if st.Connected {
		line("addrs", strings.Join(st.Addrs, ","))
		line("open_txns", st.OpenTxns)
		line("pool_idle", st.Pool.Idle)
		line("pool_in_use", st.Pool.InUse)
		line("pool_created", st.Pool.Created)
		line("pool_dropped", st.Pool.Dropped)
	}
	line("requests", st.Requests)
	line("errors", st.Errors)
	return Bulk([]byte(sb.String())), nil
}

// cmdRawScan lists physical keys. Its bounds are physical keys as well.
func cmdRawScan(c *call) (res Result, err error) {
	limit, err := c.int(len(c.args) - 1)
	if err != nil {
		return Null(), err
	}
	if limit <= 0 {
		return Null(), fmt.Errorf("%w: scan limit must be positive, got %d", ErrArgument, limit)
	}
	var end []byte
	if len(c.args) == 3 {
		end = c.args[1]
	}
	err = c.run(func(ctx context.Context, h kv.IReadWriter) error {
		pairs, err := h.Scan(ctx, c.args[0], end, int(min(limit, kv.MaxScanLimit)))
		items := make([]Result, len(pairs))
		for i, p := range pairs {
			items[i] = Array(Bulk(p.Key), Bulk(p.Value))
		}
		res = Array(items...)
		return err
	})
	return res, err
}

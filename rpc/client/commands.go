package client

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ValentinKolb/dStruct/lib/core"
	"github.com/ValentinKolb/dStruct/lib/types"
)

// --------------------------------------------------------------------------
// Typed wrappers around Session.Do. Each method sends exactly one command.
// --------------------------------------------------------------------------

func integer(res core.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	if res.Kind != core.KindInteger {
		return 0, fmt.Errorf("expected an integer reply, got %s", res.Kind)
	}
	return res.Int, nil
}

func bulk(res core.Result, err error) ([]byte, bool, error) {
	if err != nil || res.IsNull() {
		return nil, false, err
	}
	return res.Bulk, true, nil
}

func status(res core.Result, err error) error {
	return err
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

// Connection

func (s *Session) Connect(ctx context.Context, addrs ...string) error {
	return status(s.DoStrings(ctx, "connect", addrs...))
}

func (s *Session) Begin(ctx context.Context) error {
	return status(s.Do(ctx, "begin"))
}

func (s *Session) Commit(ctx context.Context) error {
	return status(s.Do(ctx, "commit"))
}

func (s *Session) Rollback(ctx context.Context) error {
	return status(s.Do(ctx, "rollback"))
}

// Strings

func (s *Session) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return bulk(s.Do(ctx, "get", []byte(key)))
}

func (s *Session) Put(ctx context.Context, key string, value []byte) error {
	return status(s.Do(ctx, "put", []byte(key), value))
}

// SetNX reports whether the key was created
func (s *Session) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	n, err := integer(s.Do(ctx, "setnx", []byte(key), value))
	return n == 1, err
}

// Del returns the number of keys that existed
func (s *Session) Del(ctx context.Context, keys ...string) (int64, error) {
	return integer(s.DoStrings(ctx, "del", keys...))
}

func (s *Session) Exists(ctx context.Context, keys ...string) (int64, error) {
	return integer(s.DoStrings(ctx, "exists", keys...))
}

// Scan lists up to limit keys in [start, end), an empty end scans to the last key
func (s *Session) Scan(ctx context.Context, start, end string, limit int) ([]types.Pair, error) {
	args := []string{start, strconv.Itoa(limit)}
	if end != "" {
		args = []string{start, end, strconv.Itoa(limit)}
	}
	res, err := s.DoStrings(ctx, "scan", args...)
	if err != nil {
		return nil, err
	}
	pairs := make([]types.Pair, 0, len(res.Array))
	for _, it := range res.Array {
		if len(it.Array) != 2 {
			return nil, fmt.Errorf("malformed scan reply")
		}
		pairs = append(pairs, types.Pair{Key: string(it.Array[0].Bulk), Value: it.Array[1].Bulk})
	}
	return pairs, nil
}

// MGet returns the values of keys, missing keys yield nil
func (s *Session) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	res, err := s.DoStrings(ctx, "mget", keys...)
	if err != nil {
		return nil, err
	}
	return res.Values(), nil
}

func (s *Session) MSet(ctx context.Context, pairs ...types.Pair) error {
	args := make([][]byte, 0, 2*len(pairs))
	for _, p := range pairs {
		args = append(args, []byte(p.Key), p.Value)
	}
	return status(s.Do(ctx, "mset", args...))
}

func (s *Session) IncrBy(ctx context.Context, key string, step int64) (int64, error) {
	return integer(s.DoStrings(ctx, "incrby", key, itoa(step)))
}

func (s *Session) DecrBy(ctx context.Context, key string, step int64) (int64, error) {
	return integer(s.DoStrings(ctx, "decrby", key, itoa(step)))
}

// Hashes

func (s *Session) HSet(ctx context.Context, key, field string, value []byte) error {
	_, err := integer(s.Do(ctx, "hset", []byte(key), []byte(field), value))
	return err
}

func (s *Session) HGet(ctx context.Context, key, field string) ([]byte, bool, error) {
	return bulk(s.DoStrings(ctx, "hget", key, field))
}

func (s *Session) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	return integer(s.DoStrings(ctx, "hdel", append([]string{key}, fields...)...))
}

func (s *Session) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	res, err := s.DoStrings(ctx, "hgetall", key)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(res.Array)/2)
	for i := 0; i+1 < len(res.Array); i += 2 {
		out[string(res.Array[i].Bulk)] = res.Array[i+1].Bulk
	}
	return out, nil
}

// Lists

// LPush returns the length of the list after the push
func (s *Session) LPush(ctx context.Context, key string, elements ...[]byte) (int64, error) {
	return integer(s.Do(ctx, "lpush", append([][]byte{[]byte(key)}, elements...)...))
}

// RPush returns the length of the list after the push
func (s *Session) RPush(ctx context.Context, key string, elements ...[]byte) (int64, error) {
	return integer(s.Do(ctx, "rpush", append([][]byte{[]byte(key)}, elements...)...))
}

func (s *Session) LPop(ctx context.Context, key string) ([]byte, bool, error) {
	return bulk(s.DoStrings(ctx, "lpop", key))
}

func (s *Session) RPop(ctx context.Context, key string) ([]byte, bool, error) {
	return bulk(s.DoStrings(ctx, "rpop", key))
}

func (s *Session) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	res, err := s.DoStrings(ctx, "lrange", key, itoa(start), itoa(stop))
	if err != nil {
		return nil, err
	}
	return res.Values(), nil
}

func (s *Session) LLen(ctx context.Context, key string) (int64, error) {
	return integer(s.DoStrings(ctx, "llen", key))
}

// Sets

// SAdd returns the number of members that were added
func (s *Session) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	return integer(s.DoStrings(ctx, "sadd", append([]string{key}, members...)...))
}

func (s *Session) SMembers(ctx context.Context, key string) ([]string, error) {
	res, err := s.DoStrings(ctx, "smembers", key)
	if err != nil {
		return nil, err
	}
	return res.Strings(), nil
}

// Admin

// Status returns the status report of the server
func (s *Session) Status(ctx context.Context) (string, error) {
	v, _, err := bulk(s.Do(ctx, "status"))
	return string(v), err
}

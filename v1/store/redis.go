package store

import (
	"context"
	stdErrors "errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	claimerrors "github.com/quayside/go-claim/v1/errors"
)

const defaultRedisOpTimeout = 5 * time.Second

// casScript writes the payload only when the stored version matches the
// expected one. An expected version of 0 demands the key be absent.
var casScript = redis.NewScript(`
local ver = redis.call("HGET", KEYS[1], "ver")
if (not ver and ARGV[1] == "0") or (ver == ARGV[1]) then
    redis.call("HSET", KEYS[1], "val", ARGV[2], "ver", ARGV[3])
    return 1
end
return 0
`)

// Redis implements Store using a Redis hash per key: the payload under "val"
// and the version token under "ver". The conditional write runs as a Lua
// script so compare and swap are one atomic step on the server.
type Redis[T any] struct {
	client  *redis.Client
	timeout time.Duration
	codec   Codec
}

// RedisOption configures a Redis store.
type RedisOption func(*redisOptions)

type redisOptions struct {
	timeout time.Duration
	codec   Codec
}

// WithTimeout sets the operation timeout for Redis calls.
func WithTimeout(d time.Duration) RedisOption {
	return func(o *redisOptions) { o.timeout = d }
}

// WithCodec sets the codec used to serialize values.
func WithCodec(c Codec) RedisOption {
	return func(o *redisOptions) { o.codec = c }
}

// NewRedis returns a new Redis store using the provided client.
func NewRedis[T any](client *redis.Client, opts ...RedisOption) *Redis[T] {
	o := redisOptions{timeout: defaultRedisOpTimeout, codec: JSONCodec{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Redis[T]{client: client, timeout: o.timeout, codec: o.codec}
}

// Load implements Store.Load.
func (s *Redis[T]) Load(ctx context.Context, key string) (Snapshot[T], bool, error) {
	var zero Snapshot[T]
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vals, err := s.client.HMGet(cctx, key, "val", "ver").Result()
	if err != nil {
		return zero, false, mapRedisErr(err)
	}
	if vals[0] == nil || vals[1] == nil {
		return zero, false, nil
	}
	data, ok := vals[0].(string)
	if !ok {
		return zero, false, stdErrors.New("store: unexpected payload type")
	}
	verStr, ok := vals[1].(string)
	if !ok {
		return zero, false, stdErrors.New("store: unexpected version type")
	}
	version, err := strconv.ParseInt(verStr, 10, 64)
	if err != nil {
		return zero, false, err
	}
	var v T
	if err := s.codec.Unmarshal([]byte(data), &v); err != nil {
		return zero, false, err
	}
	return Snapshot[T]{Value: v, Version: version}, true, nil
}

// Save implements Store.Save.
func (s *Redis[T]) Save(ctx context.Context, key string, value T, expect int64) (int64, error) {
	data, err := s.codec.Marshal(value)
	if err != nil {
		return 0, err
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	next := expect + 1
	res, err := casScript.Run(cctx, s.client, []string{key},
		strconv.FormatInt(expect, 10), string(data), strconv.FormatInt(next, 10)).Int()
	if err != nil {
		return 0, mapRedisErr(err)
	}
	if res == 0 {
		return 0, claimerrors.Conflict(key)
	}
	return next, nil
}

func mapRedisErr(err error) error {
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return claimerrors.ErrTimeout
	}
	if stdErrors.Is(err, redis.ErrClosed) {
		return claimerrors.ErrConnectionClosed
	}
	return err
}

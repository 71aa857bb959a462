package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/quayside/go-claim/v1/syncbus"
)

var delScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// defaultPollInterval bounds how long a waiter sleeps when the unlock event
// is lost (e.g. the holder lives in a process not connected to the bus).
const defaultPollInterval = 50 * time.Millisecond

// Redis implements Locker using a Redis backend. Each acquisition stores a
// random fencing token under the key; release deletes the key only when the
// token still matches, so an expired lock cannot be released by its former
// holder.
type Redis struct {
	client *redis.Client
	bus    syncbus.Bus
	poll   time.Duration

	mu     sync.Mutex
	tokens map[string]string
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithPollInterval sets the backstop polling interval used while waiting.
func WithPollInterval(d time.Duration) RedisOption {
	return func(r *Redis) { r.poll = d }
}

// NewRedis returns a new Redis locker using the provided client. Unlock events
// are published on bus; pass nil for a private in-process bus.
func NewRedis(client *redis.Client, bus syncbus.Bus, opts ...RedisOption) *Redis {
	if bus == nil {
		bus = syncbus.NewInMemoryBus()
	}
	r := &Redis{client: client, bus: bus, poll: defaultPollInterval, tokens: make(map[string]string)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TryLock attempts to obtain the lock without waiting.
func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		r.mu.Lock()
		r.tokens[key] = token
		r.mu.Unlock()
	}
	return ok, nil
}

// Acquire blocks until the lock is obtained or the context is cancelled.
// Waiters wake on the unlock event or, failing that, on a poll tick.
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) error {
	ch, err := r.bus.Subscribe(ctx, "unlock:"+key)
	if err != nil {
		return err
	}
	defer func() { _ = r.bus.Unsubscribe(context.Background(), "unlock:"+key, ch) }()

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		ok, err := r.TryLock(ctx, key, ttl)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ch:
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release frees the lock for the given key if this locker still holds it.
func (r *Redis) Release(ctx context.Context, key string) error {
	r.mu.Lock()
	token, ok := r.tokens[key]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := delScript.Run(ctx, r.client, []string{key}, token).Result()
	if err == redis.Nil {
		err = nil
	}
	if err == nil {
		r.mu.Lock()
		delete(r.tokens, key)
		r.mu.Unlock()
		_ = r.bus.Publish(ctx, "unlock:"+key)
	}
	return err
}

package lock

import (
	"context"
	"time"
)

// Locker is the low-level keyed lock. Acquire blocks until the lock for key
// is held or ctx is cancelled; TryLock never blocks. A non-zero ttl bounds how
// long an acquired lock may be held before it self-releases.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Acquire(ctx context.Context, key string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

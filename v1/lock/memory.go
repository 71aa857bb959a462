package lock

import (
	"context"
	"sync"
	"time"

	"github.com/quayside/go-claim/v1/syncbus"
)

type lockState struct {
	timer  *time.Timer
	notify chan struct{}
}

// InMemory implements Locker with one lazily created lock per key. The
// registry is never evicted; for the expected cardinality (coupons, products,
// users of one instance) that is an accepted trade-off over lock churn.
type InMemory struct {
	mu    sync.Mutex
	bus   syncbus.Bus
	locks map[string]*lockState
}

// NewInMemory returns a new in-memory locker. Unlock events are published on
// bus so external waiters wake; pass nil for a private in-process bus.
func NewInMemory(bus syncbus.Bus) *InMemory {
	if bus == nil {
		bus = syncbus.NewInMemoryBus()
	}
	return &InMemory{bus: bus, locks: make(map[string]*lockState)}
}

// TryLock attempts to obtain the lock without waiting. It returns true on
// success. The get-or-create on the registry happens under one mutex, so two
// racing callers can never mint two distinct locks for the same key.
func (l *InMemory) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	if _, held := l.locks[key]; held {
		l.mu.Unlock()
		return false, nil
	}
	st := &lockState{notify: make(chan struct{})}
	if ttl > 0 {
		st.timer = time.AfterFunc(ttl, func() {
			_ = l.Release(context.Background(), key)
		})
	}
	l.locks[key] = st
	l.mu.Unlock()
	return true, nil
}

// Acquire blocks until the lock is obtained or the context is cancelled.
func (l *InMemory) Acquire(ctx context.Context, key string, ttl time.Duration) error {
	for {
		ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		l.mu.Lock()
		st := l.locks[key]
		l.mu.Unlock()
		if st == nil {
			// Released between TryLock and the read; race again.
			continue
		}
		select {
		case <-st.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release frees the lock for the given key and wakes all waiters.
func (l *InMemory) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	st, held := l.locks[key]
	if held {
		if st.timer != nil {
			st.timer.Stop()
		}
		close(st.notify)
		delete(l.locks, key)
	}
	l.mu.Unlock()
	if held {
		_ = l.bus.Publish(ctx, "unlock:"+key)
	}
	return nil
}

// Len reports the number of keys currently held. Exposed for monitoring.
func (l *InMemory) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

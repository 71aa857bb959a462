package lock

import (
	"context"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	claimerrors "github.com/quayside/go-claim/v1/errors"
)

// defaultAcquireTimeout bounds how long WithLock waits for a contended key
// when the caller passes no timeout.
const defaultAcquireTimeout = 10 * time.Second

// Manager runs functions under keyed mutual exclusion. It guarantees the lock
// is released on every exit path, including panics, before the outcome
// propagates.
type Manager struct {
	locker Locker
	ttl    time.Duration

	waitHist    prometheus.Histogram
	timeoutCtr  prometheus.Counter
	heldCounter prometheus.Counter
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTTL sets a hold TTL on acquired locks so a crashed holder cannot wedge
// a key forever. Zero disables the TTL.
func WithTTL(d time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = d }
}

// WithMetrics enables Prometheus instrumentation of lock waits and timeouts.
func WithMetrics(reg prometheus.Registerer) ManagerOption {
	return func(m *Manager) {
		m.waitHist = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "claim_lock_wait_seconds",
			Help:    "Time spent waiting to acquire a keyed lock",
			Buckets: prometheus.DefBuckets,
		})
		m.timeoutCtr = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claim_lock_timeouts_total",
			Help: "Total number of lock acquisitions that timed out",
		})
		m.heldCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claim_lock_acquisitions_total",
			Help: "Total number of successful lock acquisitions",
		})
		reg.MustRegister(m.waitHist, m.timeoutCtr, m.heldCounter)
	}
}

// NewManager returns a Manager backed by locker. Pass NewInMemory(nil) for the
// plain in-process case.
func NewManager(locker Locker, opts ...ManagerOption) *Manager {
	m := &Manager{locker: locker}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithLock acquires the lock for key, runs fn, and releases on every exit
// path. A timeout of zero applies the default. Acquisition failure surfaces as
// a retryable LockTimeout error naming the key.
func (m *Manager) WithLock(ctx context.Context, key string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		timeout = defaultAcquireTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := m.locker.Acquire(actx, key, m.ttl); err != nil {
		if m.timeoutCtr != nil {
			m.timeoutCtr.Inc()
		}
		return claimerrors.LockTimeout(key, err)
	}
	if m.waitHist != nil {
		m.waitHist.Observe(time.Since(start).Seconds())
	}
	if m.heldCounter != nil {
		m.heldCounter.Inc()
	}
	// Release must not be tied to the caller's context.
	defer func() { _ = m.locker.Release(context.Background(), key) }()
	return fn(ctx)
}

// WithLocks acquires every key in deterministic sorted order, runs fn, then
// releases in reverse. Sorting is the deadlock-avoidance rule for multi-key
// sequences; duplicate keys are collapsed.
func (m *Manager) WithLocks(ctx context.Context, keys []string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if len(keys) == 0 {
		return fn(ctx)
	}
	ordered := dedupSorted(keys)
	if timeout <= 0 {
		timeout = defaultAcquireTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	held := make([]string, 0, len(ordered))
	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = m.locker.Release(context.Background(), held[i])
		}
	}
	start := time.Now()
	for _, key := range ordered {
		if err := m.locker.Acquire(actx, key, m.ttl); err != nil {
			releaseAll()
			if m.timeoutCtr != nil {
				m.timeoutCtr.Inc()
			}
			return claimerrors.LockTimeout(key, err)
		}
		held = append(held, key)
	}
	if m.waitHist != nil {
		m.waitHist.Observe(time.Since(start).Seconds())
	}
	if m.heldCounter != nil {
		m.heldCounter.Inc()
	}
	defer releaseAll()
	return fn(ctx)
}

func dedupSorted(keys []string) []string {
	ordered := append([]string(nil), keys...)
	sort.Strings(ordered)
	out := ordered[:0]
	for i, k := range ordered {
		if i == 0 || ordered[i-1] != k {
			out = append(out, k)
		}
	}
	return out
}

package coupon

import (
	"context"
	"time"

	claimerrors "github.com/quayside/go-claim/v1/errors"
	"github.com/quayside/go-claim/v1/lock"
	"github.com/quayside/go-claim/v1/metrics"
	"github.com/quayside/go-claim/v1/retry"
	"github.com/quayside/go-claim/v1/store"
)

// Service issues and redeems coupon grants against a versioned quota store.
// Correctness rests on the store's conditional writes; an optional keyed
// mutex shortcuts in-process contention but is never the sole guard.
type Service struct {
	store       store.Store[Quota]
	exec        *retry.Executor
	locks       *lock.Manager
	lockTimeout time.Duration
	now         func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithExecutor overrides the retry policy. Issuance defaults to the
// low-contention preset.
func WithExecutor(e *retry.Executor) ServiceOption {
	return func(s *Service) { s.exec = e }
}

// WithLocalLock fronts every mutation with the keyed mutex so in-process
// callers serialize instead of burning CAS attempts against each other.
func WithLocalLock(m *lock.Manager, timeout time.Duration) ServiceOption {
	return func(s *Service) {
		s.locks = m
		s.lockTimeout = timeout
	}
}

// WithClock injects the time source; tests pin it.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService returns a coupon Service on top of st.
func NewService(st store.Store[Quota], opts ...ServiceOption) *Service {
	s := &Service{store: st, exec: retry.LowContention(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func quotaKey(couponID string) string { return "coupon:" + couponID }

// Create seeds a new quota with zero issued grants. TotalQuantity must be
// positive and the window must be ordered.
func (s *Service) Create(ctx context.Context, q Quota) (Quota, error) {
	if q.TotalQuantity <= 0 {
		return Quota{}, claimerrors.New(claimerrors.CodeInvalidAmount, quotaKey(q.ID), "total quantity must be positive")
	}
	if q.ValidUntil.Before(q.ValidFrom) {
		return Quota{}, claimerrors.New(claimerrors.CodeInvalidAmount, quotaKey(q.ID), "validity window is inverted")
	}
	q.IssuedQuantity = 0
	if q.Grants == nil {
		q.Grants = make(map[string]Grant)
	}
	if _, err := s.store.Save(ctx, quotaKey(q.ID), q, 0); err != nil {
		return Quota{}, err
	}
	return q, nil
}

// Get returns the quota for couponID.
func (s *Service) Get(ctx context.Context, couponID string) (Quota, error) {
	snap, ok, err := s.store.Load(ctx, quotaKey(couponID))
	if err != nil {
		return Quota{}, err
	}
	if !ok {
		return Quota{}, claimerrors.New(claimerrors.CodeCouponNotFound, quotaKey(couponID), "no such coupon")
	}
	return snap.Value, nil
}

// Issue grants couponID to userID, first come first served. Across all
// concurrent callers the final issued count equals the number of distinct
// successes, never exceeds the total, and no user ends up with two grants.
func (s *Service) Issue(ctx context.Context, userID, couponID string) (Grant, error) {
	key := quotaKey(couponID)
	grant, err := retry.Do(ctx, s.exec, key, func(ctx context.Context) (Grant, error) {
		return s.locked(ctx, key, func(ctx context.Context) (Grant, error) {
			return s.issueOnce(ctx, userID, couponID)
		})
	})
	if err != nil {
		metrics.IssueCounter.WithLabelValues(outcome(err)).Inc()
		return Grant{}, err
	}
	metrics.IssueCounter.WithLabelValues("issued").Inc()
	return grant, nil
}

// issueOnce runs one load-validate-write attempt. The duplicate check and the
// counter bump are evaluated against the same snapshot the conditional write
// is keyed on, so they can never pass against stale state and still commit.
func (s *Service) issueOnce(ctx context.Context, userID, couponID string) (Grant, error) {
	key := quotaKey(couponID)
	snap, ok, err := s.store.Load(ctx, key)
	if err != nil {
		return Grant{}, err
	}
	if !ok {
		return Grant{}, claimerrors.New(claimerrors.CodeCouponNotFound, key, "no such coupon")
	}
	q := snap.Value
	now := s.now()
	if !q.WithinWindow(now) {
		return Grant{}, claimerrors.New(claimerrors.CodeCouponNotAvailable, key, "outside validity window")
	}
	if _, dup := q.Grants[userID]; dup {
		return Grant{}, claimerrors.New(claimerrors.CodeAlreadyIssued, key, "user already holds this coupon")
	}
	if !q.CanIssue() {
		return Grant{}, claimerrors.New(claimerrors.CodeSoldOut, key, "quota exhausted")
	}
	g, err := newGrant(userID, q, now)
	if err != nil {
		return Grant{}, err
	}
	q.IssuedQuantity++
	if q.Grants == nil {
		q.Grants = make(map[string]Grant)
	}
	q.Grants[userID] = g
	if _, err := s.store.Save(ctx, key, q, snap.Version); err != nil {
		return Grant{}, err
	}
	return g, nil
}

// Use redeems userID's grant for couponID, stamping UsedAt.
func (s *Service) Use(ctx context.Context, userID, couponID string) (Grant, error) {
	key := quotaKey(couponID)
	return retry.Do(ctx, s.exec, key, func(ctx context.Context) (Grant, error) {
		return s.locked(ctx, key, func(ctx context.Context) (Grant, error) {
			snap, ok, err := s.store.Load(ctx, key)
			if err != nil {
				return Grant{}, err
			}
			if !ok {
				return Grant{}, claimerrors.New(claimerrors.CodeCouponNotFound, key, "no such coupon")
			}
			q := snap.Value
			g, held := q.Grants[userID]
			if !held {
				return Grant{}, claimerrors.New(claimerrors.CodeGrantNotFound, key, "user holds no grant for this coupon")
			}
			now := s.now()
			if !g.Usable(now) {
				return Grant{}, claimerrors.New(claimerrors.CodeGrantNotUsable, key, "grant is used or expired")
			}
			g.Status = StatusUsed
			g.UsedAt = &now
			q.Grants[userID] = g
			if _, err := s.store.Save(ctx, key, q, snap.Version); err != nil {
				return Grant{}, err
			}
			return g, nil
		})
	})
}

// UserGrant returns userID's grant for couponID. Lapsed grants are repaired
// on read: a grant found past its expiry comes back already flipped to
// EXPIRED.
func (s *Service) UserGrant(ctx context.Context, userID, couponID string) (Grant, error) {
	q, err := s.Get(ctx, couponID)
	if err != nil {
		return Grant{}, err
	}
	g, held := q.Grants[userID]
	if !held {
		return Grant{}, claimerrors.New(claimerrors.CodeGrantNotFound, quotaKey(couponID), "user holds no grant for this coupon")
	}
	if g.Status == StatusAvailable && s.now().After(g.ExpiresAt) {
		if _, err := s.ExpireLapsed(ctx, couponID); err != nil {
			return Grant{}, err
		}
		g.Status = StatusExpired
	}
	return g, nil
}

// ExpireLapsed flips every AVAILABLE grant past its expiry to EXPIRED and
// returns how many were flipped.
func (s *Service) ExpireLapsed(ctx context.Context, couponID string) (int, error) {
	key := quotaKey(couponID)
	return retry.Do(ctx, s.exec, key, func(ctx context.Context) (int, error) {
		snap, ok, err := s.store.Load(ctx, key)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, claimerrors.New(claimerrors.CodeCouponNotFound, key, "no such coupon")
		}
		q := snap.Value
		now := s.now()
		flipped := 0
		for userID, g := range q.Grants {
			if g.Status == StatusAvailable && now.After(g.ExpiresAt) {
				g.Status = StatusExpired
				q.Grants[userID] = g
				flipped++
			}
		}
		if flipped == 0 {
			return 0, nil
		}
		if _, err := s.store.Save(ctx, key, q, snap.Version); err != nil {
			return 0, err
		}
		return flipped, nil
	})
}

// locked wraps fn in the keyed mutex when one is configured.
func (s *Service) locked(ctx context.Context, key string, fn func(ctx context.Context) (Grant, error)) (Grant, error) {
	if s.locks == nil {
		return fn(ctx)
	}
	var out Grant
	err := s.locks.WithLock(ctx, key, s.lockTimeout, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	if err != nil {
		return Grant{}, err
	}
	return out, nil
}

func outcome(err error) string {
	switch claimerrors.CodeOf(err) {
	case claimerrors.CodeSoldOut:
		return "sold_out"
	case claimerrors.CodeAlreadyIssued:
		return "already_issued"
	case claimerrors.CodeCouponNotAvailable:
		return "not_available"
	case claimerrors.CodeCouponNotFound:
		return "not_found"
	case claimerrors.CodeConcurrencyExhausted:
		return "exhausted"
	default:
		return "error"
	}
}

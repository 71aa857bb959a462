package wallet

import (
	"context"
	"time"

	claimerrors "github.com/quayside/go-claim/v1/errors"
	"github.com/quayside/go-claim/v1/lock"
	"github.com/quayside/go-claim/v1/metrics"
	"github.com/quayside/go-claim/v1/retry"
	"github.com/quayside/go-claim/v1/store"
)

// Service charges and spends user balances. Wallets see the hottest
// contention of the three resources, so the default retry policy is the
// high-contention preset. Validation failures are rejected before the first
// write and never retried.
type Service struct {
	store       store.Store[Ledger]
	exec        *retry.Executor
	locks       *lock.Manager
	lockTimeout time.Duration
	now         func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithExecutor overrides the retry policy.
func WithExecutor(e *retry.Executor) ServiceOption {
	return func(s *Service) { s.exec = e }
}

// WithLocalLock fronts every mutation with the keyed mutex.
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

// NewService returns a wallet Service on top of st.
func NewService(st store.Store[Ledger], opts ...ServiceOption) *Service {
	s := &Service{store: st, exec: retry.HighContention(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func ledgerKey(userID string) string { return "wallet:" + userID }

// Balance returns userID's current balance. Unknown users read as zero; the
// ledger is created on first write.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	snap, ok, err := s.store.Load(ctx, ledgerKey(userID))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return snap.Value.Amount, nil
}

// Charge adds amount to userID's balance and appends a CHARGE entry. The
// amount must be positive, at most MaxSingleCharge, and must not push the
// balance past MaxBalance.
func (s *Service) Charge(ctx context.Context, userID string, amount int64) (Ledger, error) {
	key := ledgerKey(userID)
	if amount <= 0 {
		return Ledger{}, claimerrors.New(claimerrors.CodeInvalidAmount, key, "charge amount must be positive")
	}
	if amount > MaxSingleCharge {
		return Ledger{}, claimerrors.New(claimerrors.CodeInvalidAmount, key, "charge amount exceeds the single-charge limit")
	}
	l, err := s.mutate(ctx, userID, func(l *Ledger, now time.Time) error {
		if l.Amount+amount > MaxBalance {
			return claimerrors.New(claimerrors.CodeMaxBalanceExceeded, key, "balance would exceed the cap")
		}
		return l.append(KindCharge, amount, now)
	})
	if err != nil {
		metrics.WalletCounter.WithLabelValues("charge_failed").Inc()
		return Ledger{}, err
	}
	metrics.WalletCounter.WithLabelValues("charge").Inc()
	return l, nil
}

// Use deducts amount from userID's balance and appends a USE entry. The
// amount must be positive and covered by the balance.
func (s *Service) Use(ctx context.Context, userID string, amount int64) (Ledger, error) {
	key := ledgerKey(userID)
	if amount <= 0 {
		return Ledger{}, claimerrors.New(claimerrors.CodeInvalidAmount, key, "use amount must be positive")
	}
	l, err := s.mutate(ctx, userID, func(l *Ledger, now time.Time) error {
		if l.Amount < amount {
			return claimerrors.New(claimerrors.CodeInsufficientBalance, key, "balance does not cover the amount")
		}
		return l.append(KindUse, -amount, now)
	})
	if err != nil {
		metrics.WalletCounter.WithLabelValues("use_failed").Inc()
		return Ledger{}, err
	}
	metrics.WalletCounter.WithLabelValues("use").Inc()
	return l, nil
}

// History returns userID's ledger entries in commit order.
func (s *Service) History(ctx context.Context, userID string) ([]Entry, error) {
	snap, ok, err := s.store.Load(ctx, ledgerKey(userID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return snap.Value.Entries, nil
}

// mutate runs one load-validate-write cycle under the retry executor. A
// missing ledger starts from zero; the first write creates it.
func (s *Service) mutate(ctx context.Context, userID string, apply func(*Ledger, time.Time) error) (Ledger, error) {
	key := ledgerKey(userID)
	return retry.Do(ctx, s.exec, key, func(ctx context.Context) (Ledger, error) {
		return s.locked(ctx, key, func(ctx context.Context) (Ledger, error) {
			snap, ok, err := s.store.Load(ctx, key)
			if err != nil {
				return Ledger{}, err
			}
			l := Ledger{UserID: userID}
			expect := int64(0)
			if ok {
				l = snap.Value
				expect = snap.Version
			}
			if err := apply(&l, s.now()); err != nil {
				return Ledger{}, err
			}
			if _, err := s.store.Save(ctx, key, l, expect); err != nil {
				return Ledger{}, err
			}
			return l, nil
		})
	})
}

func (s *Service) locked(ctx context.Context, key string, fn func(ctx context.Context) (Ledger, error)) (Ledger, error) {
	if s.locks == nil {
		return fn(ctx)
	}
	var out Ledger
	err := s.locks.WithLock(ctx, key, s.lockTimeout, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	if err != nil {
		return Ledger{}, err
	}
	return out, nil
}

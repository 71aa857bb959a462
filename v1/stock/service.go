package stock

import (
	"context"
	"sort"
	"time"

	claimerrors "github.com/quayside/go-claim/v1/errors"
	"github.com/quayside/go-claim/v1/lock"
	"github.com/quayside/go-claim/v1/metrics"
	"github.com/quayside/go-claim/v1/retry"
	"github.com/quayside/go-claim/v1/store"
)

// Service adjusts product stock through conditional writes. Single-product
// operations are all-or-nothing; the batch helpers walk products in sorted
// key order and compensate on partial failure.
type Service struct {
	store       store.Store[Counter]
	exec        *retry.Executor
	locks       *lock.Manager
	lockTimeout time.Duration
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

// NewService returns a stock Service on top of st.
func NewService(st store.Store[Counter], opts ...ServiceOption) *Service {
	s := &Service{store: st, exec: retry.LowContention()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func counterKey(productID string) string { return "stock:" + productID }

// Create registers a product with its opening stock level. Quantity and price
// must not be negative.
func (s *Service) Create(ctx context.Context, c Counter) (Counter, error) {
	key := counterKey(c.ProductID)
	if c.Quantity < 0 {
		return Counter{}, claimerrors.New(claimerrors.CodeInvalidAmount, key, "quantity must not be negative")
	}
	if c.Price < 0 {
		return Counter{}, claimerrors.New(claimerrors.CodeInvalidAmount, key, "price must not be negative")
	}
	if _, err := s.store.Save(ctx, key, c, 0); err != nil {
		return Counter{}, err
	}
	return c, nil
}

// Get returns the counter for productID.
func (s *Service) Get(ctx context.Context, productID string) (Counter, error) {
	snap, ok, err := s.store.Load(ctx, counterKey(productID))
	if err != nil {
		return Counter{}, err
	}
	if !ok {
		return Counter{}, claimerrors.New(claimerrors.CodeProductNotFound, counterKey(productID), "no such product")
	}
	return snap.Value, nil
}

// Decrease takes qty units from productID's stock. The decrement is
// all-or-nothing: either the full qty comes off or the stock is untouched and
// InsufficientStock is returned.
func (s *Service) Decrease(ctx context.Context, productID string, qty int) (Counter, error) {
	if qty <= 0 {
		return Counter{}, claimerrors.New(claimerrors.CodeInvalidAmount, counterKey(productID), "quantity must be positive")
	}
	c, err := s.adjust(ctx, productID, -qty)
	if err != nil {
		metrics.StockCounter.WithLabelValues("decrease_failed").Inc()
		return Counter{}, err
	}
	metrics.StockCounter.WithLabelValues("decrease").Inc()
	return c, nil
}

// Increase returns qty units to productID's stock.
func (s *Service) Increase(ctx context.Context, productID string, qty int) (Counter, error) {
	if qty <= 0 {
		return Counter{}, claimerrors.New(claimerrors.CodeInvalidAmount, counterKey(productID), "quantity must be positive")
	}
	c, err := s.adjust(ctx, productID, qty)
	if err != nil {
		metrics.StockCounter.WithLabelValues("increase_failed").Inc()
		return Counter{}, err
	}
	metrics.StockCounter.WithLabelValues("increase").Inc()
	return c, nil
}

func (s *Service) adjust(ctx context.Context, productID string, delta int) (Counter, error) {
	key := counterKey(productID)
	return retry.Do(ctx, s.exec, key, func(ctx context.Context) (Counter, error) {
		return s.locked(ctx, key, func(ctx context.Context) (Counter, error) {
			snap, ok, err := s.store.Load(ctx, key)
			if err != nil {
				return Counter{}, err
			}
			if !ok {
				return Counter{}, claimerrors.New(claimerrors.CodeProductNotFound, key, "no such product")
			}
			c := snap.Value
			next := c.Quantity + delta
			if next < 0 {
				return Counter{}, claimerrors.New(claimerrors.CodeInsufficientStock, key, "not enough stock")
			}
			c.Quantity = next
			if _, err := s.store.Save(ctx, key, c, snap.Version); err != nil {
				return Counter{}, err
			}
			return c, nil
		})
	})
}

// DecreaseAll takes stock for every product in quantities, walking products in
// sorted key order. On any failure the decrements already applied are given
// back before the error is returned, so a rejected order never leaks stock.
func (s *Service) DecreaseAll(ctx context.Context, quantities map[string]int) error {
	products := sortedKeys(quantities)
	done := make([]string, 0, len(products))
	for _, productID := range products {
		if _, err := s.Decrease(ctx, productID, quantities[productID]); err != nil {
			for i := len(done) - 1; i >= 0; i-- {
				// Compensation runs on a fresh context so an expired
				// deadline cannot strand stock.
				if _, rerr := s.Increase(context.WithoutCancel(ctx), done[i], quantities[done[i]]); rerr != nil {
					return claimerrors.New(claimerrors.CodeInsufficientStock, counterKey(done[i]), "compensation failed: "+rerr.Error())
				}
			}
			return err
		}
		done = append(done, productID)
	}
	return nil
}

// IncreaseAll returns stock for every product in quantities, in sorted key
// order. Increases cannot be rejected for capacity, so no compensation is
// needed.
func (s *Service) IncreaseAll(ctx context.Context, quantities map[string]int) error {
	for _, productID := range sortedKeys(quantities) {
		if _, err := s.Increase(ctx, productID, quantities[productID]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) locked(ctx context.Context, key string, fn func(ctx context.Context) (Counter, error)) (Counter, error) {
	if s.locks == nil {
		return fn(ctx)
	}
	var out Counter
	err := s.locks.WithLock(ctx, key, s.lockTimeout, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	if err != nil {
		return Counter{}, err
	}
	return out, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

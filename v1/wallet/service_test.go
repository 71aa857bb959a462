package wallet

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	claimerrors "github.com/quayside/go-claim/v1/errors"
	"github.com/quayside/go-claim/v1/retry"
	"github.com/quayside/go-claim/v1/store"
)

func newService(t *testing.T, opts ...ServiceOption) (*Service, context.Context) {
	t.Helper()
	return NewService(store.NewInMemory[Ledger](), opts...), context.Background()
}

func TestBalanceStartsAtZero(t *testing.T) {
	s, ctx := newService(t)
	b, err := s.Balance(ctx, "nobody")
	if err != nil || b != 0 {
		t.Fatalf("balance=%d err=%v, want 0", b, err)
	}
}

func TestChargeCreatesLedger(t *testing.T) {
	s, ctx := newService(t)
	l, err := s.Charge(ctx, "u1", 5000)
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if l.Amount != 5000 || len(l.Entries) != 1 {
		t.Fatalf("ledger: %+v", l)
	}
	e := l.Entries[0]
	if e.Kind != KindCharge || e.Amount != 5000 || e.BalanceAfter != 5000 || e.ID == "" {
		t.Fatalf("entry: %+v", e)
	}
}

func TestChargeValidation(t *testing.T) {
	s, ctx := newService(t)
	for _, amount := range []int64{0, -100, MaxSingleCharge + 1} {
		if _, err := s.Charge(ctx, "u1", amount); claimerrors.CodeOf(err) != claimerrors.CodeInvalidAmount {
			t.Fatalf("charge(%d): expected InvalidAmount, got %v", amount, err)
		}
	}
	if b, _ := s.Balance(ctx, "u1"); b != 0 {
		t.Fatalf("rejected charges must not touch the balance: %d", b)
	}
}

func TestChargeBalanceCap(t *testing.T) {
	s, ctx := newService(t)
	for i := int64(0); i < MaxBalance/MaxSingleCharge; i++ {
		if _, err := s.Charge(ctx, "u1", MaxSingleCharge); err != nil {
			t.Fatalf("charge %d: %v", i, err)
		}
	}
	if _, err := s.Charge(ctx, "u1", 1); claimerrors.CodeOf(err) != claimerrors.CodeMaxBalanceExceeded {
		t.Fatalf("expected MaxBalanceExceeded, got %v", err)
	}
	if b, _ := s.Balance(ctx, "u1"); b != MaxBalance {
		t.Fatalf("balance=%d want %d", b, MaxBalance)
	}
}

func TestUseHappyPath(t *testing.T) {
	s, ctx := newService(t)
	if _, err := s.Charge(ctx, "u1", 10000); err != nil {
		t.Fatalf("charge: %v", err)
	}
	l, err := s.Use(ctx, "u1", 3000)
	if err != nil {
		t.Fatalf("use: %v", err)
	}
	if l.Amount != 7000 {
		t.Fatalf("balance=%d want 7000", l.Amount)
	}
	last := l.Entries[len(l.Entries)-1]
	if last.Kind != KindUse || last.Amount != -3000 || last.BalanceAfter != 7000 {
		t.Fatalf("entry: %+v", last)
	}
}

func TestUseInsufficient(t *testing.T) {
	s, ctx := newService(t)
	if _, err := s.Charge(ctx, "u1", 1000); err != nil {
		t.Fatalf("charge: %v", err)
	}
	if _, err := s.Use(ctx, "u1", 2000); claimerrors.CodeOf(err) != claimerrors.CodeInsufficientBalance {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
	if b, _ := s.Balance(ctx, "u1"); b != 1000 {
		t.Fatalf("failed use must not touch the balance: %d", b)
	}
}

// 100 concurrent charges of 1000 must all land: final balance 100000, one
// CHARGE entry per charge, and BalanceAfter stepping 1000..100000 in commit
// order.
func TestChargeConcurrent(t *testing.T) {
	s, ctx := newService(t, WithExecutor(retry.New(1000, retry.Jitter(time.Microsecond, time.Millisecond))))

	const callers = 100
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			_, err := s.Charge(ctx, "hot", 1000)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("charge: %v", err)
	}

	b, err := s.Balance(ctx, "hot")
	if err != nil || b != 100000 {
		t.Fatalf("balance=%d err=%v, want 100000", b, err)
	}
	entries, err := s.History(ctx, "hot")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != callers {
		t.Fatalf("entries=%d want %d", len(entries), callers)
	}
	for i, e := range entries {
		want := int64(i+1) * 1000
		if e.Kind != KindCharge || e.BalanceAfter != want {
			t.Fatalf("entry %d: %+v, want BalanceAfter %d", i, e, want)
		}
	}
}

// Folding the entry deltas from zero reproduces the balance, whatever mix of
// movements got it there.
func TestLedgerReplay(t *testing.T) {
	s, ctx := newService(t)
	if _, err := s.Charge(ctx, "u1", 9000); err != nil {
		t.Fatalf("charge: %v", err)
	}
	if _, err := s.Use(ctx, "u1", 2500); err != nil {
		t.Fatalf("use: %v", err)
	}
	if _, err := s.Charge(ctx, "u1", 400); err != nil {
		t.Fatalf("charge: %v", err)
	}

	entries, _ := s.History(ctx, "u1")
	l := Ledger{Entries: entries}
	b, _ := s.Balance(ctx, "u1")
	if got := l.Replay(); got != b || got != 6900 {
		t.Fatalf("replay=%d balance=%d want 6900", got, b)
	}
}

func TestHistoryUnknownUser(t *testing.T) {
	s, ctx := newService(t)
	entries, err := s.History(ctx, "nobody")
	if err != nil || entries != nil {
		t.Fatalf("history=%v err=%v, want empty", entries, err)
	}
}

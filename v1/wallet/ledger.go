package wallet

import (
	"time"

	uuid "github.com/hashicorp/go-uuid"
)

// Limits on a single charge and on the balance itself.
const (
	MaxSingleCharge int64 = 1_000_000
	MaxBalance      int64 = 10_000_000
)

// Kind of a ledger entry.
type Kind string

const (
	KindCharge Kind = "CHARGE"
	KindUse    Kind = "USE"
)

// Entry is one committed balance movement. Amount is the signed delta and
// BalanceAfter the balance the movement left behind.
type Entry struct {
	ID           string    `json:"id"`
	Amount       int64     `json:"amount"`
	Kind         Kind      `json:"kind"`
	BalanceAfter int64     `json:"balanceAfter"`
	At           time.Time `json:"at"`
}

// Ledger is a user's balance together with its full movement history. Both
// live in one snapshot, so the balance write and its entry append commit
// together or not at all.
type Ledger struct {
	UserID  string  `json:"userId"`
	Amount  int64   `json:"amount"`
	Entries []Entry `json:"entries"`
}

// Replay folds the entry deltas from zero. On a consistent ledger it equals
// Amount.
func (l Ledger) Replay() int64 {
	var sum int64
	for _, e := range l.Entries {
		sum += e.Amount
	}
	return sum
}

func (l *Ledger) append(kind Kind, delta int64, now time.Time) error {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return err
	}
	l.Amount += delta
	l.Entries = append(l.Entries, Entry{
		ID:           id,
		Amount:       delta,
		Kind:         kind,
		BalanceAfter: l.Amount,
		At:           now,
	})
	return nil
}

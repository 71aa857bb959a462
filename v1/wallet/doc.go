// Package wallet keeps per-user balances with an append-only movement ledger.
// Balance and history live in one versioned snapshot, so folding the entry
// deltas always reproduces the balance, even under heavy concurrent charging.
package wallet

package store

import (
	"context"
	"sync"
	"testing"

	claimerrors "github.com/quayside/go-claim/v1/errors"
)

type counterDoc struct {
	N int `json:"n"`
}

func TestInMemoryLoadAbsent(t *testing.T) {
	s := NewInMemory[counterDoc]()
	ctx := context.Background()
	if _, ok, err := s.Load(ctx, "missing"); err != nil || ok {
		t.Fatalf("Load: expected absent, ok=%v err=%v", ok, err)
	}
}

func TestInMemorySaveCreateAndUpdate(t *testing.T) {
	s := NewInMemory[counterDoc]()
	ctx := context.Background()

	v1, err := s.Save(ctx, "k", counterDoc{N: 1}, 0)
	if err != nil || v1 != 1 {
		t.Fatalf("create: version %d err %v", v1, err)
	}
	snap, ok, err := s.Load(ctx, "k")
	if err != nil || !ok || snap.Version != 1 || snap.Value.N != 1 {
		t.Fatalf("Load: %+v ok=%v err=%v", snap, ok, err)
	}
	v2, err := s.Save(ctx, "k", counterDoc{N: 2}, snap.Version)
	if err != nil || v2 != 2 {
		t.Fatalf("update: version %d err %v", v2, err)
	}
}

func TestInMemoryStaleVersionConflicts(t *testing.T) {
	s := NewInMemory[counterDoc]()
	ctx := context.Background()

	if _, err := s.Save(ctx, "k", counterDoc{N: 1}, 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	// A second create against an existing key must conflict.
	if _, err := s.Save(ctx, "k", counterDoc{N: 9}, 0); !claimerrors.IsConflict(err) {
		t.Fatalf("expected conflict on create race, got %v", err)
	}
	snap, _, _ := s.Load(ctx, "k")
	if _, err := s.Save(ctx, "k", counterDoc{N: 2}, snap.Version); err != nil {
		t.Fatalf("first writer: %v", err)
	}
	// Writing on the now-stale version loses.
	_, staleErr := s.Save(ctx, "k", counterDoc{N: 3}, snap.Version)
	if !claimerrors.IsConflict(staleErr) {
		t.Fatalf("expected conflict on stale version, got %v", staleErr)
	}
	if !claimerrors.IsRetryable(staleErr) {
		t.Fatal("version conflict must be retryable")
	}
}

func TestInMemorySnapshotDoesNotAliasStore(t *testing.T) {
	type doc struct {
		Items map[string]int `json:"items"`
	}
	s := NewInMemory[doc]()
	ctx := context.Background()

	if _, e := s.Save(ctx, "k", doc{Items: map[string]int{"a": 1}}, 0); e != nil {
		t.Fatalf("create: %v", e)
	}
	snap, _, _ := s.Load(ctx, "k")
	snap.Value.Items["a"] = 99

	again, _, _ := s.Load(ctx, "k")
	if again.Value.Items["a"] != 1 {
		t.Fatal("mutating a loaded snapshot leaked into the store")
	}
}

func TestInMemoryConcurrentCASIncrements(t *testing.T) {
	s := NewInMemory[counterDoc]()
	ctx := context.Background()
	if _, e := s.Save(ctx, "counter", counterDoc{}, 0); e != nil {
		t.Fatalf("seed: %v", e)
	}

	const workers = 32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				snap, _, e := s.Load(ctx, "counter")
				if e != nil {
					t.Errorf("load: %v", e)
					return
				}
				snap.Value.N++
				if _, e := s.Save(ctx, "counter", snap.Value, snap.Version); e == nil {
					return
				} else if !claimerrors.IsConflict(e) {
					t.Errorf("save: %v", e)
					return
				}
			}
		}()
	}
	wg.Wait()

	snap, _, _ := s.Load(ctx, "counter")
	if snap.Value.N != workers {
		t.Fatalf("lost updates: n=%d want %d", snap.Value.N, workers)
	}
	if snap.Version != workers+1 {
		t.Fatalf("version should count every successful write, got %d", snap.Version)
	}
}

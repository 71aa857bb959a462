package store

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	claimerrors "github.com/quayside/go-claim/v1/errors"
)

func newGormStore[T any](t *testing.T) (*Gorm[T], context.Context) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	_ = db.Migrator().DropTable(defaultGormTableName)
	return NewGorm[T](db), context.Background()
}

func TestGormLoadAbsent(t *testing.T) {
	s, ctx := newGormStore[counterDoc](t)
	if _, ok, err := s.Load(ctx, "missing"); err != nil || ok {
		t.Fatalf("Load: expected absent, ok=%v err=%v", ok, err)
	}
}

func TestGormSaveCreateAndUpdate(t *testing.T) {
	s, ctx := newGormStore[counterDoc](t)

	v1, err := s.Save(ctx, "k", counterDoc{N: 1}, 0)
	if err != nil || v1 != 1 {
		t.Fatalf("create: version %d err %v", v1, err)
	}
	snap, ok, err := s.Load(ctx, "k")
	if err != nil || !ok || snap.Version != 1 || snap.Value.N != 1 {
		t.Fatalf("Load: %+v ok=%v err=%v", snap, ok, err)
	}
	v2, err := s.Save(ctx, "k", counterDoc{N: 2}, 1)
	if err != nil || v2 != 2 {
		t.Fatalf("update: version %d err %v", v2, err)
	}
	snap, _, _ = s.Load(ctx, "k")
	if snap.Value.N != 2 || snap.Version != 2 {
		t.Fatalf("Load after update: %+v", snap)
	}
}

func TestGormCreateRaceConflicts(t *testing.T) {
	s, ctx := newGormStore[counterDoc](t)

	if _, err := s.Save(ctx, "k", counterDoc{N: 1}, 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Save(ctx, "k", counterDoc{N: 2}, 0); !claimerrors.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}
}

func TestGormStaleVersionConflicts(t *testing.T) {
	s, ctx := newGormStore[counterDoc](t)

	if _, err := s.Save(ctx, "k", counterDoc{N: 1}, 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Save(ctx, "k", counterDoc{N: 2}, 1); err != nil {
		t.Fatalf("first writer: %v", err)
	}
	if _, err := s.Save(ctx, "k", counterDoc{N: 3}, 1); !claimerrors.IsConflict(err) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}
}

func TestGormCustomTableName(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	s := NewGorm[counterDoc](db, WithGormTableName("wallet_snapshots"))
	ctx := context.Background()

	if _, err := s.Save(ctx, "wallet:1", counterDoc{N: 100}, 0); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !db.Migrator().HasTable("wallet_snapshots") {
		t.Fatal("wallet_snapshots table does not exist")
	}
}

package presets

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/quayside/go-claim/v1/coupon"
	"github.com/quayside/go-claim/v1/stock"
)

func exerciseCore(t *testing.T, c *Core) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	if _, err := c.Coupons.Create(ctx, coupon.Quota{
		ID: "welcome", Name: "welcome", DiscountRate: 10, TotalQuantity: 2,
		ValidityDays: 7, ValidFrom: now.Add(-time.Hour), ValidUntil: now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("create quota: %v", err)
	}
	if _, err := c.Coupons.Issue(ctx, "u1", "welcome"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := c.Stock.Create(ctx, stock.Counter{ProductID: "p1", Name: "widget", Price: 500, Quantity: 3}); err != nil {
		t.Fatalf("create stock: %v", err)
	}
	if _, err := c.Stock.Decrease(ctx, "p1", 2); err != nil {
		t.Fatalf("decrease: %v", err)
	}
	sc, err := c.Stock.Get(ctx, "p1")
	if err != nil || sc.Quantity != 1 {
		t.Fatalf("stock after decrease: %+v err=%v", sc, err)
	}

	if _, err := c.Wallet.Charge(ctx, "u1", 5000); err != nil {
		t.Fatalf("charge: %v", err)
	}
	if _, err := c.Wallet.Use(ctx, "u1", 1500); err != nil {
		t.Fatalf("use: %v", err)
	}
	b, err := c.Wallet.Balance(ctx, "u1")
	if err != nil || b != 3500 {
		t.Fatalf("balance=%d err=%v, want 3500", b, err)
	}
}

func TestNewInMemoryStandalone(t *testing.T) {
	exerciseCore(t, NewInMemoryStandalone())
}

func TestNewRedisBacked(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	defer mr.Close()

	exerciseCore(t, NewRedisBacked(RedisOptions{Addr: mr.Addr()}))
}

func TestNewGormBacked(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	exerciseCore(t, NewGormBacked(db))
}

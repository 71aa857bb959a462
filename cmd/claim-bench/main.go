package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	claimerrors "github.com/quayside/go-claim/v1/errors"
	"github.com/quayside/go-claim/v1/presets"
	"github.com/quayside/go-claim/v1/stock"
)

var (
	concurrency = flag.Int("c", 50, "Concurrency")
	requests    = flag.Int("n", 10000, "Requests per scenario")
	target      = flag.String("target", "all", "Target: memory, redis")
	redisAddr   = flag.String("redis-addr", "localhost:6379", "Redis Address")
)

func main() {
	flag.Parse()

	targets := strings.Split(*target, ",")
	if *target == "all" {
		targets = []string{"memory", "redis"}
	}

	fmt.Printf("| %-14s | %-10s | %-10s | %-10s | %-12s |\n", "Scenario", "Ops/sec", "Committed", "Conflicts", "Avg Latency")
	fmt.Println("|:---|:---|:---|:---|:---|")

	for _, t := range targets {
		runTarget(strings.TrimSpace(t))
	}
}

func runTarget(name string) {
	var core *presets.Core
	switch name {
	case "memory":
		core = presets.NewInMemoryStandalone()
	case "redis":
		core = presets.NewRedisBacked(presets.RedisOptions{Addr: *redisAddr})
	default:
		log.Printf("Unknown target: %s", name)
		return
	}

	ctx := context.Background()

	// Hot wallet: every worker charges the same user.
	charge := func(ctx context.Context) error {
		_, err := core.Wallet.Charge(ctx, "bench-user", 1)
		return err
	}
	report(name+"/charge", ctx, charge)

	// Hot product: seed once, then unit decrements with refills.
	if _, err := core.Stock.Create(ctx, stock.Counter{ProductID: "bench-sku", Quantity: *requests}); err != nil && claimerrors.CodeOf(err) != claimerrors.CodeVersionConflict {
		log.Printf("%s: seed stock: %v", name, err)
		return
	}
	decrease := func(ctx context.Context) error {
		_, err := core.Stock.Decrease(ctx, "bench-sku", 1)
		return err
	}
	report(name+"/decrease", ctx, decrease)
}

func report(scenario string, ctx context.Context, op func(ctx context.Context) error) {
	var committed, conflicts int64
	var totalLatency int64

	total := *requests
	chunk := total / *concurrency
	if chunk == 0 {
		chunk = 1
	}

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < chunk; j++ {
				opStart := time.Now()
				err := op(ctx)
				atomic.AddInt64(&totalLatency, int64(time.Since(opStart)))
				switch {
				case err == nil:
					atomic.AddInt64(&committed, 1)
				case claimerrors.CodeOf(err) == claimerrors.CodeConcurrencyExhausted:
					atomic.AddInt64(&conflicts, 1)
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	ran := int64(chunk) * int64(*concurrency)
	opsPerSec := float64(ran) / elapsed.Seconds()
	avg := time.Duration(0)
	if ran > 0 {
		avg = time.Duration(totalLatency / ran)
	}
	fmt.Printf("| %-14s | %-10.0f | %-10d | %-10d | %-12v |\n", scenario, opsPerSec, committed, conflicts, avg)
}

package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/soochol/minizaps/internal/zaps"
)

func TestConcurrencyLimiter_BasicAcquireRelease(t *testing.T) {
	limiter := NewConcurrencyLimiter(zaps.ConcurrencyLimits{
		GlobalMax:   2,
		PerWorkflow: 1,
	})

	ctx := context.Background()

	// Acquire first slot.
	if err := limiter.Acquire(ctx, "wf-a"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	stats := limiter.Stats()
	if stats.ActiveRuns != 1 {
		t.Fatalf("expected 1 active, got %d", stats.ActiveRuns)
	}

	// Release.
	limiter.Release("wf-a")
	stats = limiter.Stats()
	if stats.ActiveRuns != 0 {
		t.Fatalf("expected 0 active, got %d", stats.ActiveRuns)
	}
}

func TestConcurrencyLimiter_GlobalLimit(t *testing.T) {
	limiter := NewConcurrencyLimiter(zaps.ConcurrencyLimits{
		GlobalMax:   2,
		PerWorkflow: 5,
	})

	ctx := context.Background()

	// Fill up global slots.
	limiter.Acquire(ctx, "wf-a")
	limiter.Acquire(ctx, "wf-b")

	// Third should block and timeout.
	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	err := limiter.Acquire(timeoutCtx, "wf-c")
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
}

func TestConcurrencyLimiter_PerWorkflowLimit(t *testing.T) {
	limiter := NewConcurrencyLimiter(zaps.ConcurrencyLimits{
		GlobalMax:   10,
		PerWorkflow: 1,
	})

	ctx := context.Background()

	// Fill per-workflow slot for wf-a.
	limiter.Acquire(ctx, "wf-a")

	// Second acquire for same workflow should block.
	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	err := limiter.Acquire(timeoutCtx, "wf-a")
	if err == nil {
		t.Fatal("expected timeout error for per-workflow limit, got nil")
	}

	// Different workflow should still work.
	if err := limiter.Acquire(ctx, "wf-b"); err != nil {
		t.Fatalf("different workflow should succeed: %v", err)
	}

	limiter.Release("wf-a")
	limiter.Release("wf-b")
}

func TestConcurrencyLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewConcurrencyLimiter(zaps.ConcurrencyLimits{
		GlobalMax:   5,
		PerWorkflow: 3,
	})

	ctx := context.Background()
	var wg sync.WaitGroup

	// Launch 10 goroutines, only 5 should run at a time (global limit).
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Acquire(ctx, "test-wf"); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
			limiter.Release("test-wf")
		}()
	}

	wg.Wait()

	stats := limiter.Stats()
	if stats.ActiveRuns != 0 {
		t.Fatalf("expected 0 active after all done, got %d", stats.ActiveRuns)
	}
}

func TestConcurrencyLimiter_DefaultsAndWaiting(t *testing.T) {
	limiter := NewConcurrencyLimiter(zaps.ConcurrencyLimits{PerWorkflow: 1})
	stats := limiter.Stats()
	if stats.GlobalMax != 10 || stats.PerWorkflow != 1 {
		t.Fatalf("unexpected limits: %+v", stats)
	}

	ctx := context.Background()
	if err := limiter.Acquire(ctx, "wf"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		if err := limiter.Acquire(ctx, "wf"); err == nil {
			close(acquired)
		}
	}()

	deadline := time.Now().Add(time.Second)
	for limiter.Stats().WaitingRuns != 1 {
		if time.Now().After(deadline) {
			t.Fatal("second run never started waiting")
		}
		time.Sleep(time.Millisecond)
	}

	limiter.Release("wf")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiting run did not acquire the released slot")
	}
	limiter.Release("wf")
}

func TestConcurrencyLimiter_SlotIsIdempotent(t *testing.T) {
	limiter := NewConcurrencyLimiter(zaps.ConcurrencyLimits{GlobalMax: 2, PerWorkflow: 1})
	ctx := context.Background()

	slot := limiter.Slot("wf")
	if err := slot.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := slot.Acquire(ctx); err != nil {
		t.Fatalf("second acquire of a held slot must not block: %v", err)
	}
	if !slot.Held() || limiter.Stats().ActiveRuns != 1 {
		t.Fatalf("expected one held slot, got %+v", limiter.Stats())
	}

	slot.Release()
	slot.Release()
	if slot.Held() || limiter.Stats().ActiveRuns != 0 {
		t.Fatalf("expected slot released once, got %+v", limiter.Stats())
	}

	// The released slot is free for another run of the same workflow.
	other := limiter.Slot("wf")
	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := other.Acquire(timeoutCtx); err != nil {
		t.Fatalf("released slot not reusable: %v", err)
	}
	other.Release()
}

func TestConcurrencyLimiter_NilLimiterSlot(t *testing.T) {
	var limiter *ConcurrencyLimiter
	slot := limiter.Slot("wf")
	if err := slot.Acquire(context.Background()); err != nil {
		t.Fatalf("nil limiter slot: %v", err)
	}
	if slot.Held() {
		t.Fatal("a nil limiter never holds a slot")
	}
	slot.Release()
}

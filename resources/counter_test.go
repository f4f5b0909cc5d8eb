package resources

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/steerkit/steerkit/errors"
)

func newTestCounter(t *testing.T) *Counter {
	t.Helper()
	c, err := NewCounter(8, []string{"ml", "sim"})
	if err != nil {
		t.Fatalf("NewCounter error: %v", err)
	}
	return c
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestCounter_Initialize(t *testing.T) {
	c := newTestCounter(t)

	if c.Total() != 8 {
		t.Errorf("Total() = %d, want 8", c.Total())
	}
	if c.Unallocated() != 8 {
		t.Errorf("Unallocated() = %d, want 8", c.Unallocated())
	}
	for _, pool := range []string{"ml", "sim"} {
		n, err := c.Available(pool)
		if err != nil {
			t.Fatalf("Available(%s) error: %v", pool, err)
		}
		if n != 0 {
			t.Errorf("Available(%s) = %d, want 0", pool, n)
		}
	}
}

func TestCounter_InvalidConstruction(t *testing.T) {
	tests := []struct {
		name  string
		total int
		pools []string
	}{
		{"negative total", -1, []string{"ml"}},
		{"reserved empty name", 4, []string{"ml", ""}},
		{"duplicate pool", 4, []string{"ml", "ml"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewCounter(tc.total, tc.pools); !errors.Is(err, errors.CodeConfig) {
				t.Errorf("NewCounter = %v, want config error", err)
			}
		})
	}
}

// =============================================================================
// Allocation Tests
// =============================================================================

func TestCounter_Allocations(t *testing.T) {
	c := newTestCounter(t)
	ctx := context.Background()

	ok, err := c.Transfer(ctx, Unallocated, "ml", 8)
	if err != nil || !ok {
		t.Fatalf("Transfer = (%v, %v), want fulfilled", ok, err)
	}
	if c.Unallocated() != 0 {
		t.Errorf("Unallocated() = %d, want 0", c.Unallocated())
	}
	if n, _ := c.Available("ml"); n != 8 {
		t.Errorf("Available(ml) = %d, want 8", n)
	}

	ok, err = c.Request(ctx, "ml", 8)
	if err != nil || !ok {
		t.Fatalf("Request = (%v, %v), want fulfilled", ok, err)
	}
	if n, _ := c.Available("ml"); n != 0 {
		t.Errorf("Available(ml) = %d, want 0", n)
	}

	// Nothing left: a bounded request comes back unfulfilled.
	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	ok, err = c.Request(shortCtx, "ml", 1)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if ok {
		t.Error("Request on an empty pool should not be fulfilled")
	}

	ok, err = c.RegisterCompletion(ctx, "ml", 4, false)
	if err != nil {
		t.Fatalf("RegisterCompletion error: %v", err)
	}
	if ok {
		t.Error("RegisterCompletion without rerequest should report false")
	}
	if n, _ := c.Available("ml"); n != 4 {
		t.Errorf("Available(ml) = %d, want 4", n)
	}

	ok, err = c.RegisterCompletion(ctx, "ml", 4, true)
	if err != nil || !ok {
		t.Fatalf("RegisterCompletion = (%v, %v), want refulfilled", ok, err)
	}
	if n, _ := c.Available("ml"); n != 4 {
		t.Errorf("Available(ml) = %d, want 4", n)
	}
}

func TestCounter_RequestRollback(t *testing.T) {
	c, err := NewCounter(2, []string{"ml"})
	if err != nil {
		t.Fatalf("NewCounter error: %v", err)
	}
	ctx := context.Background()

	if ok, _ := c.Transfer(ctx, Unallocated, "ml", 2); !ok {
		t.Fatal("Transfer should be fulfilled")
	}

	// Asking for more than the pool holds claims nothing in the end.
	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	ok, err := c.Request(shortCtx, "ml", 3)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if ok {
		t.Error("Request for 3 of 2 slots should not be fulfilled")
	}
	if n, _ := c.Available("ml"); n != 2 {
		t.Errorf("Available(ml) = %d after rollback, want 2", n)
	}
}

func TestCounter_ZeroRequest(t *testing.T) {
	c := newTestCounter(t)

	ok, err := c.Request(context.Background(), "ml", 0)
	if err != nil || !ok {
		t.Errorf("Request for zero slots = (%v, %v), want trivially fulfilled", ok, err)
	}
}

func TestCounter_ReleaseOverCapacity(t *testing.T) {
	c, err := NewCounter(2, []string{"ml"})
	if err != nil {
		t.Fatalf("NewCounter error: %v", err)
	}

	if err := c.Release("ml", 3); !errors.Is(err, errors.CodeInternal) {
		t.Errorf("Release beyond the counter total = %v, want internal error", err)
	}
}

// =============================================================================
// Unknown Pool Tests
// =============================================================================

func TestCounter_UnknownPool(t *testing.T) {
	c := newTestCounter(t)
	ctx := context.Background()

	if _, err := c.Available("gpu"); !errors.Is(err, errors.CodeUnknownPool) {
		t.Errorf("Available = %v, want unknown pool", err)
	}
	if _, err := c.Request(ctx, "gpu", 1); !errors.Is(err, errors.CodeUnknownPool) {
		t.Errorf("Request = %v, want unknown pool", err)
	}
	if err := c.Release("gpu", 1); !errors.Is(err, errors.CodeUnknownPool) {
		t.Errorf("Release = %v, want unknown pool", err)
	}
	if _, err := c.Transfer(ctx, Unallocated, "gpu", 1); !errors.Is(err, errors.CodeUnknownPool) {
		t.Errorf("Transfer to unknown = %v, want unknown pool", err)
	}
	if _, err := c.Transfer(ctx, "gpu", Unallocated, 1); !errors.Is(err, errors.CodeUnknownPool) {
		t.Errorf("Transfer from unknown = %v, want unknown pool", err)
	}
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func TestCounter_ConcurrentClaims(t *testing.T) {
	c, err := NewCounter(4, []string{"ml"})
	if err != nil {
		t.Fatalf("NewCounter error: %v", err)
	}
	ctx := context.Background()

	if ok, _ := c.Transfer(ctx, Unallocated, "ml", 4); !ok {
		t.Fatal("Transfer should be fulfilled")
	}

	// Twice as many workers as slots; claims must all eventually fill.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()

			ok, err := c.Request(claimCtx, "ml", 1)
			if err != nil || !ok {
				t.Errorf("Request = (%v, %v), want fulfilled", ok, err)
				return
			}
			time.Sleep(time.Millisecond)
			if err := c.Release("ml", 1); err != nil {
				t.Errorf("Release error: %v", err)
			}
		}()
	}
	wg.Wait()

	if n, _ := c.Available("ml"); n != 4 {
		t.Errorf("Available(ml) = %d after all releases, want 4", n)
	}
}

func TestCounter_TransferWhileHeld(t *testing.T) {
	c, err := NewCounter(2, []string{"ml", "sim"})
	if err != nil {
		t.Fatalf("NewCounter error: %v", err)
	}
	ctx := context.Background()

	if ok, _ := c.Transfer(ctx, Unallocated, "sim", 2); !ok {
		t.Fatal("Transfer should be fulfilled")
	}
	if ok, _ := c.Request(ctx, "sim", 2); !ok {
		t.Fatal("Request should be fulfilled")
	}

	// A reallocation waits until the simulation slots free up.
	moved := make(chan bool, 1)
	go func() {
		transferCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		ok, err := c.Transfer(transferCtx, "sim", "ml", 1)
		if err != nil {
			t.Errorf("Transfer error: %v", err)
		}
		moved <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	if err := c.Release("sim", 1); err != nil {
		t.Fatalf("Release error: %v", err)
	}

	select {
	case ok := <-moved:
		if !ok {
			t.Error("Transfer should complete once a slot frees up")
		}
	case <-time.After(time.Second):
		t.Fatal("Transfer never completed")
	}

	if n, _ := c.Available("ml"); n != 1 {
		t.Errorf("Available(ml) = %d, want 1", n)
	}
}

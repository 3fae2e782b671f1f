package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_IncrAndCount(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.Incr(ctx, "k", time.Minute)
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if got != want {
			t.Fatalf("expected count %d, got %d", want, got)
		}
	}

	count, err := store.Count(ctx, "k")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3, got %d", count)
	}

	// Count never consumes quota.
	if count, _ = store.Count(ctx, "k"); count != 3 {
		t.Fatalf("expected 3 after repeated count, got %d", count)
	}
}

func TestMemoryStore_MissingKeyReadsZero(t *testing.T) {
	store := NewMemoryStore()

	count, err := store.Count(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0, got %d", count)
	}
}

func TestMemoryStore_WindowReset(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Incr(ctx, "k", 20*time.Millisecond); err != nil {
		t.Fatalf("incr: %v", err)
	}
	if _, err := store.Incr(ctx, "k", 20*time.Millisecond); err != nil {
		t.Fatalf("incr: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	count, err := store.Count(ctx, "k")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected expired bucket to read 0, got %d", count)
	}

	got, err := store.Incr(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("incr: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected fresh window to start at 1, got %d", got)
	}
}

func TestMemoryStore_KeysAreIndependent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Incr(ctx, "a", time.Minute); err != nil {
		t.Fatalf("incr: %v", err)
	}
	count, err := store.Count(ctx, "b")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected key b untouched, got %d", count)
	}
}

func TestMemoryStore_ConcurrentIncrIsAtomic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const goroutines = 100
	counts := make([]int64, goroutines)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			count, err := store.Incr(ctx, "shared", time.Minute)
			if err != nil {
				t.Errorf("incr: %v", err)
				return
			}
			counts[i] = count
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, goroutines)
	for _, count := range counts {
		if count < 1 || count > goroutines {
			t.Fatalf("count %d out of range", count)
		}
		if seen[count] {
			t.Fatalf("duplicate count %d, increments lost", count)
		}
		seen[count] = true
	}

	final, err := store.Count(ctx, "shared")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if final != goroutines {
		t.Fatalf("expected final count %d, got %d", goroutines, final)
	}
}

package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestKeyedRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name  string
		burst int
		calls int
		want  int
	}{
		{"within burst", 3, 3, 3},
		{"past burst", 2, 5, 2},
		{"burst floor of one", 0, 4, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := New(1, tt.burst)
			defer rl.Stop()

			got := 0
			for range tt.calls {
				if rl.Allow("catalog") {
					got++
				}
			}
			if got != tt.want {
				t.Errorf("Allow() passed %d of %d, want %d", got, tt.calls, tt.want)
			}
		})
	}
}

func TestKeyedRateLimiter_KeysHaveOwnBuckets(t *testing.T) {
	rl := New(1, 1)
	defer rl.Stop()

	if !rl.Allow("collections") {
		t.Fatal("first collections call refused")
	}
	if rl.Allow("collections") {
		t.Error("collections bucket should be empty")
	}
	if !rl.Allow("favorites") {
		t.Error("favorites should not share the collections bucket")
	}
}

func TestKeyedRateLimiter_Reserve(t *testing.T) {
	rl := New(2, 1)
	defer rl.Stop()

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if ok, wait := rl.Reserve("127.0.0.1"); !ok || wait != 0 {
		t.Fatalf("Reserve() = %v, %v on a full bucket", ok, wait)
	}

	ok, wait := rl.Reserve("127.0.0.1")
	if ok {
		t.Fatal("Reserve() allowed a call on an empty bucket")
	}
	if wait != 500*time.Millisecond {
		t.Errorf("retry after %v, want 500ms at 2 rps", wait)
	}

	// The refused reservation gave its token back, so the bucket refills on schedule.
	now = now.Add(500 * time.Millisecond)
	if ok, _ := rl.Reserve("127.0.0.1"); !ok {
		t.Error("Reserve() refused after the advertised wait")
	}
}

func TestKeyedRateLimiter_Wait(t *testing.T) {
	rl := New(20, 1)
	defer rl.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rl.Wait(ctx, "downloads"); err != nil {
		t.Fatalf("first Wait() = %v", err)
	}

	start := time.Now()
	if err := rl.Wait(ctx, "downloads"); err != nil {
		t.Fatalf("second Wait() = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("second Wait() returned after %v, want about 50ms", elapsed)
	}
}

func TestKeyedRateLimiter_WaitHonorsContext(t *testing.T) {
	rl := New(0.1, 1)
	defer rl.Stop()
	rl.Allow("downloads")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx, "downloads"); err == nil {
		t.Error("Wait() should give up when the context ends first")
	}
}

func TestKeyedRateLimiter_ZeroRateDisablesLimiting(t *testing.T) {
	rl := New(0, 0)
	defer rl.Stop()

	for i := range 100 {
		if ok, _ := rl.Reserve("favorites"); !ok {
			t.Fatalf("Reserve() refused call %d with limiting disabled", i)
		}
	}
}

func TestKeyedRateLimiter_EvictIdle(t *testing.T) {
	rl := NewWithTTL(1, 1, time.Minute)
	defer rl.Stop()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("collections")
	now = now.Add(30 * time.Second)
	rl.Allow("favorites")

	now = now.Add(45 * time.Second)
	rl.evictIdle()

	if got := rl.Len(); got != 1 {
		t.Fatalf("Len() = %d after eviction, want 1", got)
	}
	if !rl.Allow("collections") {
		t.Error("evicted key should get a fresh limiter")
	}
}

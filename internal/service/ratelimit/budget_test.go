package ratelimit

import (
	"testing"
	"time"
)

func TestBudgetWindowCap(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBudget(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !b.TryAcquire(now) {
			t.Fatalf("acquire %d should succeed", i)
		}
	}
	if b.TryAcquire(now) {
		t.Fatalf("acquire beyond capacity should fail")
	}
	if got := b.Used(now); got != 3 {
		t.Fatalf("used = %d, want 3", got)
	}
}

func TestBudgetRollover(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBudget(1, time.Minute)

	if !b.TryAcquire(now) {
		t.Fatalf("first acquire should succeed")
	}
	if b.TryAcquire(now.Add(30 * time.Second)) {
		t.Fatalf("same window should be exhausted")
	}
	later := now.Add(61 * time.Second)
	if !b.TryAcquire(later) {
		t.Fatalf("new window should have room")
	}
	if got := b.Used(later); got != 1 {
		t.Fatalf("used after rollover = %d, want 1", got)
	}
}

func TestBudgetRelease(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBudget(1, time.Minute)

	if !b.TryAcquire(now) {
		t.Fatalf("acquire should succeed")
	}
	b.Release(now)
	if !b.TryAcquire(now) {
		t.Fatalf("released slot should be reusable")
	}
}

func TestBudgetNextReset(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBudget(1, time.Minute)

	if got := b.NextReset(now); !got.Equal(now) {
		t.Fatalf("untouched budget should reset immediately, got %v", got)
	}
	b.TryAcquire(now)
	if got := b.NextReset(now.Add(time.Second)); !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("reset = %v, want %v", got, now.Add(time.Minute))
	}
}

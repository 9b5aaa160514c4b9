package ratelimit

import (
    "time"
)

// Budget tracks one backend's request quota over a fixed rolling window.
// It is not internally synchronized: the rotation client serializes all
// budget access under its own per-registry mutex so that check, rollover
// and increment form a single atomic region.
type Budget struct {
    capacity int
    window   time.Duration
    used     int
    resetAt  time.Time
}

// NewBudget creates a budget of capacity requests per window.
func NewBudget(capacity int, window time.Duration) *Budget {
    return &Budget{capacity: capacity, window: window}
}

func (b *Budget) roll(now time.Time) {
    if now.After(b.resetAt) {
        b.used = 0
        b.resetAt = now.Add(b.window)
    }
}

// TryAcquire consumes one request slot if the current window has room.
func (b *Budget) TryAcquire(now time.Time) bool {
    b.roll(now)
    if b.used >= b.capacity {
        return false
    }
    b.used++
    return true
}

// Release returns a slot consumed in the current window. Used when the
// backend rejected the request with a rate limit, so the attempt does
// not count against the quota.
func (b *Budget) Release(now time.Time) {
    if now.Before(b.resetAt) && b.used > 0 {
        b.used--
    }
}

// Remaining reports the slots left in the current window.
func (b *Budget) Remaining(now time.Time) int {
    b.roll(now)
    return b.capacity - b.used
}

// NextReset reports when the current window rolls over. For a budget
// that has never been touched the reset is immediate.
func (b *Budget) NextReset(now time.Time) time.Time {
    if b.resetAt.IsZero() || now.After(b.resetAt) {
        return now
    }
    return b.resetAt
}

// Used reports the count consumed in the current window.
func (b *Budget) Used(now time.Time) int {
    b.roll(now)
    return b.used
}

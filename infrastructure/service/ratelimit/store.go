package ratelimit

import (
	"context"
	"time"
)

// Entry is the fixed-window state for one identifier.
type Entry struct {
	Count   int
	ResetAt time.Time
}

// Expired reports whether the window is over at now. An entry is live only
// while now is strictly before ResetAt.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ResetAt)
}

// Store persists rate limit entries. Increment must be atomic: concurrent
// calls for the same key never lose an increment.
type Store interface {
	// Get returns the live entry for key, or false if it is absent or expired.
	Get(ctx context.Context, key string, now time.Time) (Entry, bool, error)
	// Increment bumps the counter, starting a fresh window of the given length
	// when the entry is absent or expired, and returns the updated entry.
	Increment(ctx context.Context, key string, now time.Time, window time.Duration) (Entry, error)
	// Extend moves ResetAt of an existing entry. Missing keys are left alone.
	Extend(ctx context.Context, key string, resetAt time.Time) error
	Delete(ctx context.Context, key string) error
	// Sweep drops entries expired at now and returns how many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

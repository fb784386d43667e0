package inbound

import (
	"context"
	"time"
)

// RateLimitPolicy configures one fixed-window limiter. A zero BlockDuration
// means an exceeded caller just waits out the current window.
type RateLimitPolicy struct {
	Name          string
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// RateLimitResult is the outcome of a single check. RetryAfter is in whole
// seconds and only set when Success is false.
type RateLimitResult struct {
	Success    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter int
}

// RateLimiter is implemented by infrastructure/service/ratelimit.
// An exceeded limit is a normal result, not an error; errors mean the backing
// store failed.
type RateLimiter interface {
	Check(ctx context.Context, identifier string, policy RateLimitPolicy) (RateLimitResult, error)
	Reset(ctx context.Context, identifier string) error
}

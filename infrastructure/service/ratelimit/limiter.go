package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fleetadmin/fleetadmin/application/port/inbound"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/logger"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/metrics"
)

var ErrInvalidPolicy = errors.New("rate limit policy needs positive attempts and window")

// Limiter is a fixed-window counter with an optional block period once the
// limit is exceeded.
type Limiter struct {
	store   Store
	now     func() time.Time
	logger  logger.Logger
	metrics *metrics.Metrics
}

var _ inbound.RateLimiter = (*Limiter)(nil)

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithLogger(log logger.Logger) Option {
	return func(l *Limiter) { l.logger = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

func NewLimiter(store Store, opts ...Option) *Limiter {
	l := &Limiter{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one attempt for identifier. Going over MaxAttempts fails the
// check and, with a BlockDuration, pushes the reset time to now+block on every
// rejected attempt.
func (l *Limiter) Check(ctx context.Context, identifier string, policy inbound.RateLimitPolicy) (inbound.RateLimitResult, error) {
	if policy.MaxAttempts <= 0 || policy.Window <= 0 {
		return inbound.RateLimitResult{}, ErrInvalidPolicy
	}

	now := l.now()
	entry, err := l.store.Increment(ctx, identifier, now, policy.Window)
	if err != nil {
		l.metrics.IncRateLimit(policy.Name, "error")
		return inbound.RateLimitResult{}, fmt.Errorf("rate limit check %s: %w", identifier, err)
	}

	if entry.Count > policy.MaxAttempts {
		resetAt := entry.ResetAt
		if policy.BlockDuration > 0 {
			resetAt = now.Add(policy.BlockDuration)
			if err := l.store.Extend(ctx, identifier, resetAt); err != nil {
				l.metrics.IncRateLimit(policy.Name, "error")
				return inbound.RateLimitResult{}, fmt.Errorf("rate limit block %s: %w", identifier, err)
			}
		}
		l.metrics.IncRateLimit(policy.Name, "blocked")
		return inbound.RateLimitResult{
			Success:    false,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfterSeconds(resetAt.Sub(now)),
		}, nil
	}

	l.metrics.IncRateLimit(policy.Name, "allowed")
	return inbound.RateLimitResult{
		Success:   true,
		Remaining: policy.MaxAttempts - entry.Count,
		ResetAt:   entry.ResetAt,
	}, nil
}

// Reset forgets all attempts for identifier.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	if err := l.store.Delete(ctx, identifier); err != nil {
		return fmt.Errorf("rate limit reset %s: %w", identifier, err)
	}
	return nil
}

// Sweep removes expired entries once.
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	removed, err := l.store.Sweep(ctx, l.now())
	if err != nil {
		return 0, fmt.Errorf("rate limit sweep: %w", err)
	}
	l.metrics.AddSwept(removed)
	return removed, nil
}

// StartSweeper runs Sweep every interval until ctx is cancelled. The returned
// channel is closed once the goroutine has exited. A non-positive interval
// disables sweeping.
func (l *Limiter) StartSweeper(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := l.Sweep(ctx)
				if l.logger == nil {
					continue
				}
				if err != nil {
					l.logger.Error(ctx, "Rate limit sweep failed", err, nil)
				} else if removed > 0 {
					l.logger.Debug(ctx, "Rate limit entries swept", map[string]interface{}{
						"removed": removed,
					})
				}
			}
		}
	}()
	return done
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

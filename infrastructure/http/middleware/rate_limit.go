package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/fleetadmin/fleetadmin/application/port/inbound"
	apperr "github.com/fleetadmin/fleetadmin/domain/error"
	"github.com/fleetadmin/fleetadmin/infrastructure/http/response"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/logger"
)

// RateLimitMiddleware applies a per-IP limit to every path under prefix.
type RateLimitMiddleware struct {
	limiter inbound.RateLimiter
	policy  inbound.RateLimitPolicy
	prefix  string
	logger  logger.Logger
}

func NewRateLimitMiddleware(limiter inbound.RateLimiter, policy inbound.RateLimitPolicy, prefix string, log logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		policy:  policy,
		prefix:  prefix,
		logger:  log,
	}
}

func (m *RateLimitMiddleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil || !strings.HasPrefix(r.URL.Path, m.prefix) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		clientIP := ClientIP(r)
		key := m.policy.Name + ":" + clientIP

		result, err := m.limiter.Check(ctx, key, m.policy)
		if err != nil {
			m.logger.Error(ctx, "Failed to check rate limit", err, map[string]interface{}{
				"ip":  clientIP,
				"key": key,
			})
			// Continue with request on error
			next.ServeHTTP(w, r)
			return
		}

		SetRateLimitHeaders(w, m.policy, result)

		if !result.Success {
			logger.LogSecurityEvent(ctx, m.logger, "rate_limit_exceeded", "MEDIUM", map[string]interface{}{
				"ip":        clientIP,
				"path":      r.URL.Path,
				"key":       key,
				"userAgent": r.UserAgent(),
			})

			response.WriteJSON(w, http.StatusTooManyRequests, response.ErrorEnvelope{
				Success:    false,
				Error:      "Too many requests. Please try again later.",
				Code:       string(apperr.ErrCodeRateLimited),
				RetryAfter: result.RetryAfter,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// SetRateLimitHeaders writes the X-RateLimit-* headers, plus Retry-After when
// the check failed. X-RateLimit-Reset is unix milliseconds.
func SetRateLimitHeaders(w http.ResponseWriter, policy inbound.RateLimitPolicy, result inbound.RateLimitResult) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(policy.MaxAttempts))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.UnixMilli(), 10))
	if !result.Success {
		h.Set("Retry-After", strconv.Itoa(result.RetryAfter))
	}
}

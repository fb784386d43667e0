package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fleetadmin/fleetadmin/application/port/inbound"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/ratelimit"
)

var apiPolicy = inbound.RateLimitPolicy{Name: "api", MaxAttempts: 2, Window: time.Minute}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore())
	handler := NewRateLimitMiddleware(limiter, apiPolicy, "/api/", testLogger()).RateLimit(okHandler())

	call := func(path, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = ip + ":41000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := call("/api/vehicles", "10.0.0.1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, call("/api/vehicles", "10.0.0.1").Code)

	rec = call("/api/vehicles", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, rec))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// other callers and non-API paths are unaffected
	assert.Equal(t, http.StatusOK, call("/api/vehicles", "10.0.0.2").Code)
	assert.Equal(t, http.StatusOK, call("/dashboard", "10.0.0.1").Code)
}

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Check(ctx context.Context, identifier string, policy inbound.RateLimitPolicy) (inbound.RateLimitResult, error) {
	args := m.Called(ctx, identifier, policy)
	return args.Get(0).(inbound.RateLimitResult), args.Error(1)
}

func (m *mockLimiter) Reset(ctx context.Context, identifier string) error {
	return m.Called(ctx, identifier).Error(0)
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	limiter := new(mockLimiter)
	limiter.On("Check", mock.Anything, "api:192.0.2.10", apiPolicy).
		Return(inbound.RateLimitResult{}, errors.New("redis: connection refused"))

	handler := NewRateLimitMiddleware(limiter, apiPolicy, "/api/", testLogger()).RateLimit(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/api/vehicles", nil)
	req.Header.Set("X-Forwarded-For", "192.0.2.10")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	limiter.AssertExpectations(t)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"forwarded first entry", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1", "X-Real-IP": "10.9.9.9"}, "127.0.0.1:1234", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "127.0.0.1:1234", "198.51.100.4"},
		{"remote addr", nil, "192.0.2.1:5555", "192.0.2.1"},
		{"ipv6 remote addr", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"remote addr without port", nil, "192.0.2.1", "192.0.2.1"},
		{"unknown", nil, "", "unknown"},
		{"empty forwarded entry", map[string]string{"X-Forwarded-For": " , 10.0.0.1"}, "192.0.2.1:5555", "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestSetRateLimitHeaders(t *testing.T) {
	resetAt := time.UnixMilli(1767225600000)
	rec := httptest.NewRecorder()
	SetRateLimitHeaders(rec, apiPolicy, inbound.RateLimitResult{Success: false, ResetAt: resetAt, RetryAfter: 12})

	require.Equal(t, "12", rec.Header().Get("Retry-After"))
	assert.Equal(t, "1767225600000", rec.Header().Get("X-RateLimit-Reset"))

	rec = httptest.NewRecorder()
	SetRateLimitHeaders(rec, apiPolicy, inbound.RateLimitResult{Success: true, Remaining: 1, ResetAt: resetAt})
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

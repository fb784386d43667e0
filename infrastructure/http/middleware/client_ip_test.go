package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCIDR(t *testing.T, s string) *net.IPNet {
	t.Helper()
	_, n, err := net.ParseCIDR(s)
	require.NoError(t, err)
	return n
}

func TestClientIPResolver_TrustedProxies(t *testing.T) {
	resolver := NewClientIPResolver([]*net.IPNet{mustCIDR(t, "10.0.0.0/8")})

	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"direct caller ignores forwarded header", map[string]string{"X-Forwarded-For": "198.51.100.1"}, "203.0.113.5:4000", "203.0.113.5"},
		{"direct caller ignores real ip", map[string]string{"X-Real-IP": "198.51.100.1"}, "203.0.113.5:4000", "203.0.113.5"},
		{"proxy appended client", map[string]string{"X-Forwarded-For": "203.0.113.5"}, "10.0.0.2:80", "203.0.113.5"},
		{"spoofed leftmost entry", map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.5"}, "10.0.0.2:80", "203.0.113.5"},
		{"chain of trusted proxies", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.9"}, "10.0.0.2:80", "203.0.113.5"},
		{"only trusted hops", map[string]string{"X-Forwarded-For": "10.1.1.1, 10.0.0.9"}, "10.0.0.2:80", "10.1.1.1"},
		{"garbage hop stops the walk", map[string]string{"X-Forwarded-For": "not-an-ip"}, "10.0.0.2:80", "10.0.0.2"},
		{"real ip behind proxy", map[string]string{"X-Real-IP": "203.0.113.8"}, "10.0.0.2:80", "203.0.113.8"},
		{"proxy without headers", nil, "10.0.0.2:80", "10.0.0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, resolver.Resolve(req))
		})
	}
}

func TestClientIPResolver_RotatingForwardedHeader(t *testing.T) {
	resolver := NewClientIPResolver([]*net.IPNet{mustCIDR(t, "10.0.0.0/8")})

	seen := make(map[string]bool)
	for _, spoofed := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "203.0.113.5:4000"
		req.Header.Set("X-Forwarded-For", spoofed)
		seen[resolver.Resolve(req)] = true
	}
	assert.Equal(t, map[string]bool{"203.0.113.5": true}, seen)
}

func TestClientIPResolver_Middleware(t *testing.T) {
	resolver := NewClientIPResolver([]*net.IPNet{mustCIDR(t, "127.0.0.1/32")})

	var got string
	h := resolver.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIP(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("X-Forwarded-For", "198.51.100.9")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "192.0.2.1", got)
	// outside the middleware the header is taken as-is
	assert.Equal(t, "198.51.100.9", ClientIP(req))
}

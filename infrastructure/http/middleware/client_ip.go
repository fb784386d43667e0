package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientIPKey struct{}

// ClientIPResolver picks the address that identifies a caller for rate
// limiting and logs. Without trusted proxies every forwarding header is
// honoured; with them, X-Forwarded-For and X-Real-IP are read only when the
// connection comes from a trusted proxy.
type ClientIPResolver struct {
	trusted []*net.IPNet
}

func NewClientIPResolver(trusted []*net.IPNet) *ClientIPResolver {
	return &ClientIPResolver{trusted: trusted}
}

var defaultResolver = NewClientIPResolver(nil)

// Middleware resolves the caller once and stores it for ClientIP.
func (c *ClientIPResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, clientIPKey{}, c.Resolve(r))))
	})
}

// Resolve returns the caller address for r.
func (c *ClientIPResolver) Resolve(r *http.Request) string {
	remote := remoteHost(r)
	if len(c.trusted) == 0 {
		return forwardedOrRemote(r, remote)
	}
	if !c.isTrusted(remote) {
		return remote
	}

	// Proxies append on the right: walk back until the first hop that is not
	// one of ours.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		leftmost := ""
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				break
			}
			if !c.isTrusted(hop) {
				return hop
			}
			leftmost = hop
		}
		if leftmost != "" {
			return leftmost
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return remote
}

func (c *ClientIPResolver) isTrusted(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range c.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the caller address stored by ClientIPResolver.Middleware.
// Outside that middleware it falls back to: first X-Forwarded-For entry, then
// X-Real-IP, then the connection address. Unknown callers share one bucket.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok && ip != "" {
		return ip
	}
	return defaultResolver.Resolve(r)
}

func forwardedOrRemote(r *http.Request, remote string) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return remote
}

func remoteHost(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

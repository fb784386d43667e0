package middleware

import (
	"context"
	"net/http"
	"net/url"
	pathpkg "path"
	"strings"

	"github.com/fleetadmin/fleetadmin/application/port/outbound"
	apperr "github.com/fleetadmin/fleetadmin/domain/error"
	"github.com/fleetadmin/fleetadmin/infrastructure/http/response"
	"github.com/fleetadmin/fleetadmin/infrastructure/http/session"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/logger"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/metrics"
)

// Identity is the authenticated caller, attached to the request context by
// AuthMiddleware.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   string
}

type identityKey struct{}

// withIdentity is unexported so only AuthMiddleware can attach a caller.
func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller set by AuthMiddleware. Handlers must
// not verify tokens themselves.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// RoleRule restricts every path under Prefix to the listed roles.
type RoleRule struct {
	Prefix string
	Roles  []string
}

type AuthPolicy struct {
	// Exact paths reachable without a session
	PublicRoutes []string
	// Static asset prefixes that bypass authentication
	SkipPrefixes []string
	// File extensions served without a session, outside APIPrefix only
	SkipExtensions []string
	RoleRules    []RoleRule
	// Paths under APIPrefix get JSON errors, everything else is redirected
	APIPrefix string
	LoginPath string
}

func DefaultAuthPolicy() AuthPolicy {
	return AuthPolicy{
		PublicRoutes: []string{
			"/",
			"/api/auth/login",
			"/api/auth/refresh",
			"/api/auth/logout",
			"/health",
			"/metrics",
		},
		SkipPrefixes: []string{
			"/_next",
			"/favicon.ico",
			"/logo-bkn.png",
			"/images",
			"/fonts",
			"/static",
			"/assets",
		},
		SkipExtensions: []string{
			".svg", ".png", ".jpg", ".jpeg", ".gif", ".webp", ".ico",
			".css", ".js", ".map", ".woff", ".woff2",
		},
		RoleRules: []RoleRule{
			{Prefix: "/api/admin", Roles: []string{"admin"}},
		},
		APIPrefix: "/api/",
		LoginPath: "/",
	}
}

func (p AuthPolicy) isPublic(path string) bool {
	for _, route := range p.PublicRoutes {
		if path == route {
			return true
		}
	}
	for _, prefix := range p.SkipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	if strings.HasPrefix(path, p.APIPrefix) {
		return false
	}
	ext := strings.ToLower(pathpkg.Ext(path))
	for _, skip := range p.SkipExtensions {
		if ext == skip {
			return true
		}
	}
	return false
}

// allowedRoles returns the role set of the first matching rule, or nil when
// the path is open to any authenticated caller.
func (p AuthPolicy) allowedRoles(path string) []string {
	for _, rule := range p.RoleRules {
		if path == rule.Prefix || strings.HasPrefix(path, strings.TrimSuffix(rule.Prefix, "/")+"/") {
			return rule.Roles
		}
	}
	return nil
}

type AuthMiddleware struct {
	tokenService outbound.TokenService
	sessions     *session.Manager
	policy       AuthPolicy
	logger       logger.Logger
	metrics      *metrics.Metrics
}

func NewAuthMiddleware(tokenService outbound.TokenService, sessions *session.Manager, policy AuthPolicy, log logger.Logger, m *metrics.Metrics) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
		sessions:     sessions,
		policy:       policy,
		logger:       log,
		metrics:      m,
	}
}

// Handler gates every request that is not public. It wraps the whole router
// so unmatched paths are gated too.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stripIdentityHeaders(r)

		path := r.URL.Path
		if m.policy.isPublic(path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		token := m.sessions.AccessToken(r)
		if token == "" {
			token = bearerToken(r)
		}
		if token == "" {
			m.reject(w, r, "missing_token")
			return
		}

		claims, err := m.tokenService.Verify(token)
		if err != nil {
			m.reject(w, r, "invalid_token")
			return
		}
		if claims.Type != outbound.TokenTypeAccess {
			m.reject(w, r, "wrong_token_type")
			return
		}

		id := Identity{
			UserID: claims.UserID,
			Email:  claims.Email,
			Name:   claims.Name,
			Role:   claims.Role,
		}

		if roles := m.policy.allowedRoles(path); roles != nil && !hasRole(roles, id.Role) {
			m.metrics.IncAuthRejection("forbidden")
			logger.LogSecurityEvent(ctx, m.logger, "forbidden", "MEDIUM", map[string]interface{}{
				"user_id": id.UserID,
				"role":    id.Role,
				"path":    path,
			})
			response.AppError(w, apperr.ErrForbidden(path))
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(ctx, id)))
	})
}

func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, reason string) {
	m.metrics.IncAuthRejection("unauthenticated")
	m.logger.Debug(r.Context(), "Unauthenticated request", map[string]interface{}{
		"path":   r.URL.Path,
		"reason": reason,
	})

	if strings.HasPrefix(r.URL.Path, m.policy.APIPrefix) {
		response.AppError(w, apperr.ErrUnauthorized(reason))
		return
	}

	target := url.URL{Path: m.policy.LoginPath, RawQuery: url.Values{"redirect": {r.URL.Path}}.Encode()}
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// stripIdentityHeaders drops client supplied X-User-* headers so nothing
// downstream can mistake them for an authenticated identity.
func stripIdentityHeaders(r *http.Request) {
	for name := range r.Header {
		if strings.HasPrefix(http.CanonicalHeaderKey(name), "X-User-") {
			r.Header.Del(name)
		}
	}
}

func bearerToken(r *http.Request) string {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

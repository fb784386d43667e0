package session

import (
	"net/http"
	"time"

	"github.com/fleetadmin/fleetadmin/infrastructure/config"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/logger"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// Manager writes and reads the two session cookies. Cookie lifetimes are
// independent of the token TTLs.
type Manager struct {
	accessMaxAge  time.Duration
	refreshMaxAge time.Duration
	secure        bool
	logger        logger.Logger
}

func NewManager(cfg *config.Config, log logger.Logger) *Manager {
	return &Manager{
		accessMaxAge:  cfg.AccessCookieMaxAge,
		refreshMaxAge: cfg.RefreshCookieMaxAge,
		secure:        cfg.IsProduction(),
		logger:        log,
	}
}

// SetSessionCookies replaces both cookies. A value the cookie jar would reject
// is logged and skipped; the request still succeeds.
func (m *Manager) SetSessionCookies(w http.ResponseWriter, r *http.Request, accessToken, refreshToken string) {
	m.write(w, r, m.cookie(AccessTokenCookie, accessToken, int(m.accessMaxAge.Seconds())))
	m.write(w, r, m.cookie(RefreshTokenCookie, refreshToken, int(m.refreshMaxAge.Seconds())))
}

// ClearSessionCookies expires both cookies. Safe to call without a session.
func (m *Manager) ClearSessionCookies(w http.ResponseWriter, r *http.Request) {
	m.write(w, r, m.cookie(AccessTokenCookie, "", -1))
	m.write(w, r, m.cookie(RefreshTokenCookie, "", -1))
}

func (m *Manager) AccessToken(r *http.Request) string {
	return cookieValue(r, AccessTokenCookie)
}

func (m *Manager) RefreshToken(r *http.Request) string {
	return cookieValue(r, RefreshTokenCookie)
}

func (m *Manager) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (m *Manager) write(w http.ResponseWriter, r *http.Request, c *http.Cookie) {
	if err := c.Valid(); err != nil {
		if m.logger != nil {
			m.logger.Warn(r.Context(), "Skipping invalid session cookie", map[string]interface{}{
				"cookie": c.Name,
				"error":  err.Error(),
			})
		}
		return
	}
	http.SetCookie(w, c)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

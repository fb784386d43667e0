package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetadmin/fleetadmin/application/port/outbound"
	"github.com/fleetadmin/fleetadmin/application/usecase"
	"github.com/fleetadmin/fleetadmin/domain/entity"
	"github.com/fleetadmin/fleetadmin/infrastructure/config"
	"github.com/fleetadmin/fleetadmin/infrastructure/http/session"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/jwt"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/logger"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/metrics"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/password"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/ratelimit"
)

// memoryUserRepository is an in-memory outbound.UserRepository keyed by email.
type memoryUserRepository struct {
	mu    sync.Mutex
	users map[string]*entity.User
}

func newMemoryUserRepository(users ...*entity.User) *memoryUserRepository {
	repo := &memoryUserRepository{users: make(map[string]*entity.User)}
	for _, u := range users {
		repo.users[u.Email] = u
	}
	return repo
}

func (m *memoryUserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, outbound.ErrUserNotFound
}

func (m *memoryUserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[email]; ok {
		return u, nil
	}
	return nil, outbound.ErrUserNotFound
}

func (m *memoryUserRepository) FindAll(ctx context.Context, offset, limit int) ([]*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []*entity.User
	for _, u := range m.users {
		users = append(users, u)
	}
	if offset >= len(users) {
		return nil, nil
	}
	users = users[offset:]
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (m *memoryUserRepository) Upsert(ctx context.Context, user *entity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.Email] = user
	return nil
}

type testApp struct {
	handler http.Handler
	tokens  *jwt.JWTService
}

func newTestApp(t *testing.T, opts ...func(*config.Config)) *testApp {
	t.Helper()

	cfg := &config.Config{
		Environment:            config.EnvDevelopment,
		BaseURL:                "http://localhost:3000",
		JWTSecret:              "router-test-secret-0123456789abcdefghij",
		AccessTokenTTL:         time.Hour,
		RefreshTokenTTL:        7 * 24 * time.Hour,
		AccessCookieMaxAge:     30 * time.Minute,
		RefreshCookieMaxAge:    24 * time.Hour,
		SessionIdleTimeout:     2 * time.Hour,
		RateLimitLoginAttempts: 5,
		RateLimitLoginWindow:   15 * time.Minute,
		RateLimitLoginBlock:    30 * time.Minute,
		RateLimitAPIAttempts:   100,
		RateLimitAPIWindow:     time.Minute,
		MetricsEnabled:         true,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	log := logger.NewStructuredLogger(logger.LoggerConfig{Level: "error", Output: io.Discard})
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	tokens, err := jwt.NewJWTService(cfg)
	require.NoError(t, err)
	passwords := password.NewBcryptPasswordService(4)

	adminHash, err := passwords.HashPassword("@adminbkn")
	require.NoError(t, err)
	userHash, err := passwords.HashPassword("driver-pass")
	require.NoError(t, err)
	repo := newMemoryUserRepository(
		entity.NewUser("admin-id", "admin", "Administrator", adminHash, entity.RoleAdmin),
		entity.NewUser("driver-id", "driver", "Driver", userHash, entity.RoleUser),
	)

	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.WithMetrics(m))

	return &testApp{
		tokens: tokens,
		handler: NewHandler(Dependencies{
			Config:        cfg,
			Logger:        log,
			Metrics:       m,
			Gatherer:      reg,
			TokenService:  tokens,
			AuthUseCase:   usecase.NewAuthUseCase(repo, tokens, passwords, limiter, LoginPolicy(cfg), log, m),
			UserDirectory: usecase.NewUserDirectory(repo),
			Limiter:       limiter,
		}),
	}
}

func (a *testApp) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) login(username, pass string) *httptest.ResponseRecorder {
	return a.do(http.MethodPost, "/api/auth/login", `{"username":"`+username+`","password":"`+pass+`"}`)
}

func cookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func jsonBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestLoginAsAdmin(t *testing.T) {
	app := newTestApp(t)

	rec := app.login("admin", "@adminbkn")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := jsonBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "admin", body["user"].(map[string]interface{})["role"])

	access := cookie(rec, session.AccessTokenCookie)
	require.NotNil(t, access)
	require.NotNil(t, cookie(rec, session.RefreshTokenCookie))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))

	me := app.do(http.MethodGet, "/api/auth/me", "", access)
	require.Equal(t, http.StatusOK, me.Code)
	meBody := jsonBody(t, me)
	assert.Equal(t, true, meBody["authenticated"])
	assert.Equal(t, "Administrator", meBody["user"].(map[string]interface{})["name"])

	users := app.do(http.MethodGet, "/api/admin/users", "", access)
	require.Equal(t, http.StatusOK, users.Code)
	assert.Len(t, jsonBody(t, users)["users"], 2)
}

func TestLoginRateLimit(t *testing.T) {
	app := newTestApp(t)

	for i := 0; i < 5; i++ {
		rec := app.login("admin", "wrong-password")
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}

	rec := app.login("admin", "wrong-password")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := jsonBody(t, rec)
	assert.Equal(t, "RATE_LIMITED", body["code"])
	assert.Greater(t, body["retryAfter"].(float64), float64(0))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// blocked even with the right password
	assert.Equal(t, http.StatusTooManyRequests, app.login("admin", "@adminbkn").Code)
}

func TestLoginRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	app := newTestApp(t, func(cfg *config.Config) {
		_, proxies, err := net.ParseCIDR("10.0.0.0/8")
		require.NoError(t, err)
		cfg.TrustedProxies = []*net.IPNet{proxies}
	})

	attempt := func(i int) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			strings.NewReader(`{"username":"admin","password":"wrong-password"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", "198.51.100."+strconv.Itoa(i))
		rec := httptest.NewRecorder()
		app.handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 1; i <= 5; i++ {
		require.Equal(t, http.StatusUnauthorized, attempt(i), "attempt %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, attempt(6))
}

func TestSuccessfulLoginResetsAttempts(t *testing.T) {
	app := newTestApp(t)

	for i := 0; i < 4; i++ {
		require.Equal(t, http.StatusUnauthorized, app.login("admin", "wrong-password").Code)
	}
	require.Equal(t, http.StatusOK, app.login("admin", "@adminbkn").Code)

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusUnauthorized, app.login("admin", "wrong-password").Code, "attempt %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, app.login("admin", "wrong-password").Code)
}

func TestMissingFieldsDoNotCountTowardsLimit(t *testing.T) {
	app := newTestApp(t)

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusBadRequest, app.login("admin", "").Code)
	}
	assert.Equal(t, http.StatusOK, app.login("admin", "@adminbkn").Code)
}

func TestRoleGate(t *testing.T) {
	app := newTestApp(t)

	rec := app.login("driver", "driver-pass")
	require.Equal(t, http.StatusOK, rec.Code)
	access := cookie(rec, session.AccessTokenCookie)

	forbidden := app.do(http.MethodGet, "/api/admin/users", "", access)
	assert.Equal(t, http.StatusForbidden, forbidden.Code)
	assert.Equal(t, "FORBIDDEN", jsonBody(t, forbidden)["code"])

	assert.Equal(t, http.StatusOK, app.do(http.MethodGet, "/api/auth/me", "", access).Code)
}

func TestUnauthenticatedAccess(t *testing.T) {
	app := newTestApp(t)

	assert.Equal(t, http.StatusOK, app.do(http.MethodGet, "/health", "").Code)

	rec := app.do(http.MethodGet, "/api/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", jsonBody(t, rec)["code"])

	rec = app.do(http.MethodGet, "/dashboard", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/?redirect=%2Fdashboard", rec.Header().Get("Location"))

	// logout needs no session
	assert.Equal(t, http.StatusOK, app.do(http.MethodPost, "/api/auth/logout", "").Code)
}

func TestRefreshFlow(t *testing.T) {
	app := newTestApp(t)

	rec := app.login("admin", "@adminbkn")
	require.Equal(t, http.StatusOK, rec.Code)
	access := cookie(rec, session.AccessTokenCookie)
	refresh := cookie(rec, session.RefreshTokenCookie)

	refreshed := app.do(http.MethodPost, "/api/auth/refresh", "", refresh)
	require.Equal(t, http.StatusOK, refreshed.Code)
	assert.Equal(t, "Tokens refreshed successfully", jsonBody(t, refreshed)["message"])
	require.NotNil(t, cookie(refreshed, session.AccessTokenCookie))
	require.NotNil(t, cookie(refreshed, session.RefreshTokenCookie))

	noToken := app.do(http.MethodPost, "/api/auth/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, noToken.Code)
	assert.Equal(t, "NO_REFRESH_TOKEN", jsonBody(t, noToken)["code"])

	// an access token in the refresh cookie is the wrong kind
	wrongType := app.do(http.MethodPost, "/api/auth/refresh", "", &http.Cookie{Name: session.RefreshTokenCookie, Value: access.Value})
	assert.Equal(t, http.StatusUnauthorized, wrongType.Code)
	assert.Equal(t, "INVALID_TOKEN_TYPE", jsonBody(t, wrongType)["code"])

	// and a refresh token cannot be used as an access token
	assert.Equal(t, http.StatusUnauthorized, app.do(http.MethodGet, "/api/auth/me", "", &http.Cookie{Name: session.AccessTokenCookie, Value: refresh.Value}).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t)
	require.Equal(t, http.StatusOK, app.login("admin", "@adminbkn").Code)

	rec := app.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `fleetadmin_login_attempts_total{outcome="success"} 1`)
	assert.Contains(t, rec.Body.String(), "fleetadmin_rate_limit_decisions_total")
}

func TestUnknownRouteAndMethod(t *testing.T) {
	app := newTestApp(t)

	rec := app.login("admin", "@adminbkn")
	access := cookie(rec, session.AccessTokenCookie)

	notFound := app.do(http.MethodGet, "/api/vehicles", "", access)
	assert.Equal(t, http.StatusNotFound, notFound.Code)
	assert.Equal(t, "Not found", jsonBody(t, notFound)["error"])

	for _, tc := range []struct{ method, path string }{
		{http.MethodDelete, "/api/auth/me"},
		{http.MethodGet, "/api/auth/login"},
		{http.MethodPut, "/api/auth/refresh"},
		{http.MethodPost, "/api/admin/users"},
	} {
		rec := app.do(tc.method, tc.path, "", access)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tc.method, tc.path)
		body := jsonBody(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Method not allowed", body["error"])
	}
}

func TestStaticAssetsWithoutSession(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.svg"), []byte("<svg/>"), 0o644))

	app := newTestApp(t, func(cfg *config.Config) { cfg.StaticDir = dir })

	rec := app.do(http.MethodGet, "/assets/app.js", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())

	rec = app.do(http.MethodGet, "/logo.svg", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<svg/>", rec.Body.String())

	assert.Equal(t, http.StatusFound, app.do(http.MethodGet, "/dashboard", "").Code)
}

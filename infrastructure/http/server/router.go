package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetadmin/fleetadmin/application/port/inbound"
	"github.com/fleetadmin/fleetadmin/application/port/outbound"
	"github.com/fleetadmin/fleetadmin/infrastructure/config"
	"github.com/fleetadmin/fleetadmin/infrastructure/http/handler"
	"github.com/fleetadmin/fleetadmin/infrastructure/http/middleware"
	"github.com/fleetadmin/fleetadmin/infrastructure/http/response"
	"github.com/fleetadmin/fleetadmin/infrastructure/http/session"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/logger"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/metrics"
)

// Dependencies are the collaborators the HTTP surface is assembled from.
type Dependencies struct {
	Config        *config.Config
	Logger        logger.Logger
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
	TokenService  outbound.TokenService
	AuthUseCase   inbound.AuthUseCase
	UserDirectory inbound.UserDirectoryUseCase
	Limiter       inbound.RateLimiter
	DB            handler.Pinger
}

func LoginPolicy(cfg *config.Config) inbound.RateLimitPolicy {
	return inbound.RateLimitPolicy{
		Name:          "login",
		MaxAttempts:   cfg.RateLimitLoginAttempts,
		Window:        cfg.RateLimitLoginWindow,
		BlockDuration: cfg.RateLimitLoginBlock,
	}
}

func APIPolicy(cfg *config.Config) inbound.RateLimitPolicy {
	return inbound.RateLimitPolicy{
		Name:        "api",
		MaxAttempts: cfg.RateLimitAPIAttempts,
		Window:      cfg.RateLimitAPIWindow,
	}
}

// NewHandler builds the router and wraps it in the middleware chain:
// correlation id, client ip, panic recovery, request log, CORS, API rate
// limit, auth.
func NewHandler(d Dependencies) http.Handler {
	cfg := d.Config
	sessions := session.NewManager(cfg, d.Logger)

	authHandler := handler.NewAuthHandler(d.AuthUseCase, sessions, LoginPolicy(cfg), cfg.BaseURL, cfg.SessionIdleTimeout, d.Logger)
	userHandler := handler.NewUserHandler(d.UserDirectory, d.Logger)
	healthHandler := handler.NewHealthHandler(d.DB, d.Logger)

	r := mux.NewRouter()
	r.Use(middleware.RequestMetrics(d.Metrics))

	// Flat on the root router; subrouter method mismatches come back as 404.
	r.HandleFunc("/api/auth/login", authHandler.Login).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", authHandler.Logout).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", authHandler.LogoutRedirect).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/me", authHandler.Me).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/refresh", authHandler.Refresh).Methods(http.MethodPost)
	r.HandleFunc("/api/admin/users", userHandler.ListUsers).Methods(http.MethodGet)

	r.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)
	if cfg.MetricsEnabled && d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if cfg.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.StaticDir))).Methods(http.MethodGet, http.MethodHead)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.MethodNotAllowed(w)
	})

	authMiddleware := middleware.NewAuthMiddleware(d.TokenService, sessions, middleware.DefaultAuthPolicy(), d.Logger, d.Metrics)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(d.Limiter, APIPolicy(cfg), "/api/", d.Logger)

	var h http.Handler = r
	h = authMiddleware.Handler(h)
	h = rateLimitMiddleware.RateLimit(h)
	if cfg.CORSEnabled && len(cfg.CORSAllowedOrigins) > 0 {
		h = middleware.CORSMiddleware(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials)(h)
	}
	h = middleware.RequestLogger(d.Logger)(h)
	h = middleware.Recovery(d.Logger)(h)
	h = middleware.NewClientIPResolver(cfg.TrustedProxies).Middleware(h)
	h = middleware.CorrelationIDMiddleware(h)
	return h
}

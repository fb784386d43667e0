package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/fleetadmin/fleetadmin/application/usecase"
	"github.com/fleetadmin/fleetadmin/infrastructure/adapter/postgres"
	"github.com/fleetadmin/fleetadmin/infrastructure/config"
	"github.com/fleetadmin/fleetadmin/infrastructure/http/server"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/jwt"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/logger"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/metrics"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/password"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/ratelimit"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	structuredLogger := logger.NewStructuredLogger(logger.LoggerConfig{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "fleetadmin",
	})
	structuredLogger.Info(ctx, "Application starting", map[string]interface{}{
		"env":               cfg.Environment,
		"rate_limit_store":  cfg.RateLimitBackend,
		"metrics_enabled":   cfg.MetricsEnabled,
		"static_dir":        cfg.StaticDir,
		"session_idle_secs": int(cfg.SessionIdleTimeout.Seconds()),
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(registry)

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		structuredLogger.Error(ctx, "Failed to connect to database", err, nil)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	structuredLogger.Info(ctx, "Database connection established", nil)

	userRepo := postgres.NewUserRepositoryAdapter(db)

	tokenService, err := jwt.NewJWTService(cfg)
	if err != nil {
		structuredLogger.Error(ctx, "Failed to initialize JWT service", err, nil)
		log.Fatalf("Failed to initialize JWT service: %v", err)
	}
	passwordService := password.NewBcryptPasswordService(cfg.BcryptCost)

	store, err := newRateLimitStore(ctx, cfg)
	if err != nil {
		structuredLogger.Error(ctx, "Failed to initialize rate limit store", err, map[string]interface{}{
			"backend": cfg.RateLimitBackend,
		})
		log.Fatalf("Failed to initialize rate limit store: %v", err)
	}
	limiter := ratelimit.NewLimiter(store,
		ratelimit.WithLogger(structuredLogger),
		ratelimit.WithMetrics(appMetrics),
	)
	sweeperDone := limiter.StartSweeper(ctx, cfg.RateLimitSweepInterval)

	authUseCase := usecase.NewAuthUseCase(
		userRepo,
		tokenService,
		passwordService,
		limiter,
		server.LoginPolicy(cfg),
		structuredLogger,
		appMetrics,
	)

	handler := server.NewHandler(server.Dependencies{
		Config:        cfg,
		Logger:        structuredLogger,
		Metrics:       appMetrics,
		Gatherer:      registry,
		TokenService:  tokenService,
		AuthUseCase:   authUseCase,
		UserDirectory: usecase.NewUserDirectory(userRepo),
		Limiter:       limiter,
		DB:            db,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		structuredLogger.Info(ctx, "Starting server", map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			structuredLogger.Error(ctx, "Server failed to start", err, map[string]interface{}{
				"host": cfg.ServerHost,
				"port": cfg.ServerPort,
			})
			cancel()
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	structuredLogger.Info(ctx, "Shutting down server...", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		structuredLogger.Error(shutdownCtx, "Server forced to shutdown", err, nil)
	}

	cancel()
	<-sweeperDone
	structuredLogger.Info(shutdownCtx, "Server exited", nil)
}

func newRateLimitStore(ctx context.Context, cfg *config.Config) (ratelimit.Store, error) {
	if cfg.RateLimitBackend != config.RateLimitBackendRedis {
		return ratelimit.NewMemoryStore(), nil
	}
	client, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return ratelimit.NewRedisStore(client), nil
}

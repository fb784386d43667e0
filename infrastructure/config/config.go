package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

type Config struct {
	Environment string
	ServerHost  string
	ServerPort  string
	BaseURL     string
	DatabaseURL string
	StaticDir   string
	BcryptCost  int

	// Token lifetimes (signed into the token)
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Cookie lifetimes, independent of the token lifetimes
	AccessCookieMaxAge  time.Duration
	RefreshCookieMaxAge time.Duration

	// Advisory client-side idle logout
	SessionIdleTimeout time.Duration

	RateLimitBackend       string
	RedisURL               string
	RateLimitLoginAttempts int
	RateLimitLoginWindow   time.Duration
	RateLimitLoginBlock    time.Duration
	RateLimitAPIAttempts   int
	RateLimitAPIWindow     time.Duration
	RateLimitSweepInterval time.Duration

	LogLevel  string
	LogFormat string

	CORSEnabled          bool
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	// Proxies whose X-Forwarded-For / X-Real-IP headers are believed. Empty
	// means every caller's forwarding headers are taken as-is.
	TrustedProxies []*net.IPNet

	MetricsEnabled bool
}

var (
	ErrMissingDatabaseURL  = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret    = errors.New("JWT_SECRET is required")
	ErrInvalidDuration     = errors.New("invalid duration format")
	ErrInvalidRateLimit    = errors.New("rate limit attempts and windows must be positive")
	ErrUnknownLimitBackend = errors.New("RATE_LIMIT_BACKEND must be memory or redis")
	ErrInvalidTrustedProxy = errors.New("TRUSTED_PROXIES entries must be IPs or CIDRs")
)

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnvOrDefault("ENV", EnvDevelopment),
		ServerHost:  getEnvOrDefault("SERVER_HOST", "localhost"),
		ServerPort:  getEnvOrDefault("SERVER_PORT", "8080"),
		BaseURL:     getEnvOrDefault("BASE_URL", "http://localhost:3000"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StaticDir:   os.Getenv("STATIC_DIR"),
		BcryptCost:  getEnvOrDefaultInt("BCRYPT_COST", 10),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		RateLimitBackend:       strings.ToLower(getEnvOrDefault("RATE_LIMIT_BACKEND", RateLimitBackendMemory)),
		RedisURL:               getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		RateLimitLoginAttempts: getEnvOrDefaultInt("RATE_LIMIT_LOGIN_ATTEMPTS", 5),
		RateLimitAPIAttempts:   getEnvOrDefaultInt("RATE_LIMIT_API_ATTEMPTS", 100),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),

		CORSEnabled:          getEnvOrDefaultBool("CORS_ENABLED", false),
		CORSAllowCredentials: getEnvOrDefaultBool("CORS_ALLOW_CREDENTIALS", true),
		CORSAllowedOrigins:   parseAllowedOrigins(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "")),

		MetricsEnabled: getEnvOrDefaultBool("METRICS_ENABLED", true),
	}

	trusted, err := parseTrustedProxies(os.Getenv("TRUSTED_PROXIES"))
	if err != nil {
		return nil, err
	}
	cfg.TrustedProxies = trusted

	if cfg.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	if cfg.JWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}

	durations := []struct {
		key      string
		fallback time.Duration
		target   *time.Duration
	}{
		{"JWT_ACCESS_TOKEN_TTL", time.Hour, &cfg.AccessTokenTTL},
		{"JWT_REFRESH_TOKEN_TTL", 7 * 24 * time.Hour, &cfg.RefreshTokenTTL},
		{"ACCESS_COOKIE_MAX_AGE", 30 * time.Minute, &cfg.AccessCookieMaxAge},
		{"REFRESH_COOKIE_MAX_AGE", 24 * time.Hour, &cfg.RefreshCookieMaxAge},
		{"SESSION_IDLE_TIMEOUT", 2 * time.Hour, &cfg.SessionIdleTimeout},
		{"RATE_LIMIT_LOGIN_WINDOW", 15 * time.Minute, &cfg.RateLimitLoginWindow},
		{"RATE_LIMIT_LOGIN_BLOCK", 30 * time.Minute, &cfg.RateLimitLoginBlock},
		{"RATE_LIMIT_API_WINDOW", time.Minute, &cfg.RateLimitAPIWindow},
		{"RATE_LIMIT_SWEEP_INTERVAL", 5 * time.Minute, &cfg.RateLimitSweepInterval},
	}
	for _, d := range durations {
		parsed, err := parseDuration(getEnvOrDefault(d.key, ""), d.fallback)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, ErrInvalidDuration)
		}
		*d.target = parsed
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that Load cannot default away.
func (c *Config) Validate() error {
	if c.RateLimitLoginAttempts <= 0 || c.RateLimitLoginWindow <= 0 ||
		c.RateLimitAPIAttempts <= 0 || c.RateLimitAPIWindow <= 0 {
		return ErrInvalidRateLimit
	}
	if c.RateLimitLoginBlock < 0 {
		return ErrInvalidRateLimit
	}
	if c.RateLimitBackend != RateLimitBackendMemory && c.RateLimitBackend != RateLimitBackendRedis {
		return ErrUnknownLimitBackend
	}
	return nil
}

// IsProduction decides whether cookies carry the Secure flag.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// parseDuration interprets a bare integer as seconds, anything else as a Go
// duration. Empty input yields the fallback.
func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(value)
}

func parseAllowedOrigins(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			res = append(res, trimmed)
		}
	}
	return res
}

// parseTrustedProxies accepts a comma separated list of CIDRs or bare IPs.
func parseTrustedProxies(value string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, entry := range parseAllowedOrigins(value) {
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("%q: %w", entry, ErrInvalidTrustedProxy)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", entry, ErrInvalidTrustedProxy)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

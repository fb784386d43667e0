package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the counters exported on /metrics. A nil *Metrics is valid and
// records nothing, so components can run without a registry.
type Metrics struct {
	// Traffic and latency per route template
	RequestDuration *prometheus.HistogramVec

	// Login outcomes: success, invalid_credentials, rate_limited, validation, error
	LoginAttempts *prometheus.CounterVec

	// Refresh outcomes: success, no_token, invalid_token, invalid_type, error
	TokenRefreshes *prometheus.CounterVec

	// Limiter decisions per policy: allowed, blocked, error
	RateLimitDecisions *prometheus.CounterVec

	// Middleware rejections: unauthenticated, forbidden
	AuthRejections *prometheus.CounterVec

	// Entries removed by the background sweep
	RateLimitSwept prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleetadmin_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route", "status"}),

		LoginAttempts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "fleetadmin_login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),

		TokenRefreshes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "fleetadmin_token_refreshes_total",
			Help: "Token refresh requests by outcome.",
		}, []string{"outcome"}),

		RateLimitDecisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "fleetadmin_rate_limit_decisions_total",
			Help: "Rate limiter decisions by policy and result.",
		}, []string{"policy", "result"}),

		AuthRejections: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "fleetadmin_auth_rejections_total",
			Help: "Requests rejected by the authorization middleware.",
		}, []string{"reason"}),

		RateLimitSwept: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "fleetadmin_rate_limit_swept_entries_total",
			Help: "Expired rate limit entries removed by the sweeper.",
		}),
	}
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func (m *Metrics) IncLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncRefresh(outcome string) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncRateLimit(policy, result string) {
	if m == nil {
		return
	}
	m.RateLimitDecisions.WithLabelValues(policy, result).Inc()
}

func (m *Metrics) IncAuthRejection(reason string) {
	if m == nil {
		return
	}
	m.AuthRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) AddSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RateLimitSwept.Add(float64(n))
}

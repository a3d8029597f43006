// Package metrics - Prometheus-коллекторы сервиса аутентификации.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты попыток входа.
const (
	LoginSuccess            = "success"
	LoginInvalidCredentials = "invalid_credentials"
	LoginError              = "error"
)

// Результаты проверки токена запроса.
const (
	TokenOK               = "ok"
	TokenMissing          = "missing"
	TokenMalformed        = "malformed"
	TokenInvalidSignature = "invalid_signature"
	TokenInvalidPayload   = "invalid_payload"
	TokenExpired          = "expired"
	TokenWrongType        = "wrong_type"
	TokenRevoked          = "revoked"
	TokenError            = "error"
)

// Metrics - набор счётчиков и гистограмм. Нулевое значение (nil) безопасно:
// все методы превращаются в no-op, что удобно в unit-тестах.
type Metrics struct {
	loginAttempts *prometheus.CounterVec
	tokenChecks   *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New создаёт коллекторы и регистрирует их в reg.
// В main передаётся prometheus.DefaultRegisterer, в тестах - prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		tokenChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_token_checks_total",
			Help: "Bearer token checks by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(m.loginAttempts, m.tokenChecks, m.httpRequests, m.httpDuration)

	return m
}

// LoginAttempt учитывает попытку входа.
func (m *Metrics) LoginAttempt(result string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(result).Inc()
}

// TokenCheck учитывает проверку bearer-токена.
func (m *Metrics) TokenCheck(result string) {
	if m == nil {
		return
	}
	m.tokenChecks.WithLabelValues(result).Inc()
}

// ObserveHTTP учитывает завершённый HTTP-запрос. route - шаблон маршрута chi,
// а не фактический путь, чтобы не раздувать кардинальность.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

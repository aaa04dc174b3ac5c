// Package metrics provides Prometheus metrics for the authorization server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grantd_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grantd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Grant processing metrics
	grantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grantd_grants_total",
			Help: "Total number of processed token grants",
		},
		[]string{"grant_type", "outcome"}, // outcome: "success", "failure"
	)

	tokensIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grantd_tokens_issued_total",
			Help: "Total number of tokens issued",
		},
		[]string{"type", "grant_type"}, // type: "access", "refresh", "id"
	)

	tokenIntrospectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grantd_token_introspections_total",
			Help: "Total number of token introspection requests",
		},
		[]string{"active"}, // "true" or "false"
	)

	tokenRevocationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grantd_token_revocations_total",
			Help: "Total number of token revocation requests",
		},
	)

	familyRevocationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grantd_token_family_revocations_total",
			Help: "Total number of token families revoked after refresh token reuse",
		},
	)

	signingFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grantd_signing_failures_total",
			Help: "Total number of failed signing operations",
		},
	)

	keyRotationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grantd_key_rotations_total",
			Help: "Total number of signing key rotations",
		},
	)

	rateLimitExceededTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grantd_rate_limit_exceeded_total",
			Help: "Total number of rate limit exceeded events",
		},
		[]string{"endpoint"},
	)

	lockoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grantd_lockouts_total",
			Help: "Total number of principal lockouts",
		},
	)
)

// RecordGrant records a processed grant by type and outcome.
func RecordGrant(grantType, outcome string) {
	grantsTotal.WithLabelValues(grantType, outcome).Inc()
}

// RecordTokenIssued records a token being issued.
func RecordTokenIssued(tokenType, grantType string) {
	tokensIssuedTotal.WithLabelValues(tokenType, grantType).Inc()
}

// RecordTokenIntrospection records a token introspection.
func RecordTokenIntrospection(active bool) {
	tokenIntrospectionsTotal.WithLabelValues(strconv.FormatBool(active)).Inc()
}

// RecordTokenRevocation records a token revocation.
func RecordTokenRevocation() {
	tokenRevocationsTotal.Inc()
}

// RecordFamilyRevocation records a token family revoked on reuse detection.
func RecordFamilyRevocation() {
	familyRevocationsTotal.Inc()
}

// RecordSigningFailure records a failed signing operation.
func RecordSigningFailure() {
	signingFailuresTotal.Inc()
}

// RecordKeyRotation records a signing key rotation.
func RecordKeyRotation() {
	keyRotationsTotal.Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event.
func RecordRateLimitExceeded(endpoint string) {
	rateLimitExceededTotal.WithLabelValues(endpoint).Inc()
}

// RecordLockout records a principal lockout.
func RecordLockout() {
	lockoutsTotal.Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes the path for metrics to avoid high cardinality.
func normalizePath(path string) string {
	knownPaths := []string{
		"/healthz",
		"/readyz",
		"/metrics",
		"/token",
		"/introspect",
		"/revoke",
		"/.well-known/openid-configuration",
		"/.well-known/jwks.json",
		"/jwks",
	}

	for _, known := range knownPaths {
		if path == known {
			return path
		}
	}

	return "/other"
}

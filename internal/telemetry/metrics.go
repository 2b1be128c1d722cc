// Package telemetry provides application-level observability for the backend.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<TE_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format (Content-Type: text/plain; version=0.0.4) and is intended to be scraped by
// a Prometheus server every 15–60 seconds.  It is NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Login and email verification counters
//   - Payment initiation and subscription activation counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/admin/users/:id)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments.
//
// # Usage
//
// Import the package for side effects so metrics are registered before the HTTP server
// starts listening, or import it directly and use an exported var:
//
//	telemetry.LoginsTotal.WithLabelValues("success").Inc()
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template (e.g. /api/admin/users/:id),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - Requests by route:                 sum by (path) (rate(http_requests_total[5m]))
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
//
// Example PromQL queries:
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
//   - Average latency:                   rate(http_request_duration_seconds_sum[5m]) / rate(http_request_duration_seconds_count[5m])
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Authentication metrics — recorded by the accounts and verification services.
//
// LoginsTotal is a CounterVec with label {result} ("success", "failure").
// Failed logins are not labelled by reason; the vague taxonomy is deliberate
// so the metric cannot be used to distinguish unknown emails from bad passwords.
//
// Example PromQL queries:
//   - Failed login rate:   rate(logins_total{result="failure"}[5m])
//   - Failure ratio (%):   sum(rate(logins_total{result="failure"}[15m])) / sum(rate(logins_total[15m])) * 100
//
// VerificationEmailsSentTotal counts codes successfully handed to the mailer.
// A stalled counter alongside new signups is an SMTP delivery alert signal.
//
// VerificationAttemptsTotal is a CounterVec with label {result}
// ("verified", "mismatch", "expired", "already_verified", "unknown").
//
// Example PromQL queries:
//   - Expired-code ratio:  sum(rate(verification_attempts_total{result="expired"}[1h])) / sum(rate(verification_attempts_total[1h]))
var (
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logins_total",
			Help: "Total number of login attempts, by result.",
		},
		[]string{"result"},
	)

	VerificationEmailsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "verification_emails_sent_total",
			Help: "Total number of verification code emails successfully sent.",
		},
	)

	VerificationAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_attempts_total",
			Help: "Total number of email verification attempts, by result.",
		},
		[]string{"result"},
	)
)

// Subscription metrics — recorded by the subscription service and expiry job.
//
// PaymentInitiationsTotal is a CounterVec with label {result} ("success", "failure")
// counting checkout sessions opened against the payment gateway.
//
// SubscriptionActivationsTotal counts subscriptions promoted to active by a
// verified payment callback. Duplicate callbacks do not increment it.
//
// SubscriptionExpirationsTotal counts subscriptions swept from active to
// expired by the background reconciler.
//
// Example PromQL queries:
//   - Gateway failure rate:  rate(payment_initiations_total{result="failure"}[1h])
//   - Activations per day:   increase(subscription_activations_total[24h])
var (
	PaymentInitiationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_initiations_total",
			Help: "Total number of payment gateway checkout initiations, by result.",
		},
		[]string{"result"},
	)

	SubscriptionActivationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_activations_total",
			Help: "Total number of subscriptions activated by a verified payment.",
		},
	)

	SubscriptionExpirationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_expirations_total",
			Help: "Total number of subscriptions expired by the background reconciler.",
		},
	)
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <TE_DATABASE_MAX_CONNECTIONS> * 100
//   - Alert on near-exhaustion: db_open_connections > 20  (for max_connections=25)
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}

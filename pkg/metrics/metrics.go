package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registrations counts registration submissions by variant (self|guardian) and result (accepted|rejected|error).
	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "get2knowme_registrations_total",
			Help: "Total number of registration submissions",
		},
		[]string{"variant", "result"},
	)

	// TokenRedemptions counts token follow-ups by action (confirm|approve|decline|cancel|reset) and result.
	TokenRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "get2knowme_token_redemptions_total",
			Help: "Total number of token redemption attempts",
		},
		[]string{"action", "result"},
	)

	// NotificationsSent counts outbound emails by template kind and result (sent|failed).
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "get2knowme_notifications_total",
			Help: "Total number of transactional emails dispatched",
		},
		[]string{"kind", "result"},
	)

	// ExpiredPurged counts pending records removed by the expiry sweep.
	ExpiredPurged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "get2knowme_expired_records_purged_total",
			Help: "Total number of expired pending records deleted by the sweep",
		},
		[]string{"kind"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "get2knowme_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

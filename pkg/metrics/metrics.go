package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classable_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// InvitesIssued counts issued invites by kind (teacher|student|class).
	InvitesIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classable_invites_issued_total",
			Help: "Total number of invites issued",
		},
		[]string{"kind"},
	)

	// InviteRedemptions counts redemption attempts by kind and outcome
	// (success|not_found|expired|exhausted|revoked|email_mismatch|conflict|error).
	InviteRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classable_invite_redemptions_total",
			Help: "Total number of invite redemption attempts",
		},
		[]string{"kind", "outcome"},
	)

	// CheckoutSessions counts Stripe checkout sessions created by plan.
	CheckoutSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classable_checkout_sessions_total",
			Help: "Total number of billing checkout sessions created",
		},
		[]string{"plan"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classable_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

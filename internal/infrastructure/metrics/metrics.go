package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_payment_attempts_total",
		Help: "Payment attempts by the state they ended in.",
	}, []string{"state"})

	DraftCleanups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_draft_cleanups_total",
		Help: "Temporary order cleanup requests by trigger and outcome.",
	}, []string{"reason", "outcome"})

	PointReclamps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_point_reclamps_total",
		Help: "Applied points reduced because a coupon change lowered the payable ceiling.",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checkout_active_sessions",
		Help: "Checkout sessions currently held in memory.",
	})

	// BreakerState is 0 closed, 1 half-open, 2 open.
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "checkout_circuit_breaker_state",
		Help: "State of the collaborator circuit breaker.",
	}, []string{"breaker"})
)

package circuitbreaker

import (
	"time"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/infrastructure/metrics"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// CreateCircuitBreaker guards the collaborator HTTP calls. It opens once
// 60% of at least three requests in a window failed and probes again after
// half a minute.
func CreateCircuitBreaker(name string) *gobreaker.CircuitBreaker[[]byte] {
	st := gobreaker.Settings{
		Name:     name,
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().Str("component", "CircuitBreaker").Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).Msg("state changed")
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	}

	return gobreaker.NewCircuitBreaker[[]byte](st)
}

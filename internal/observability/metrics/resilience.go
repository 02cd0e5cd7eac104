package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/agentic-rag/internal/infrastructure/resilience"
)

// NewResilienceHooks registers retry and circuit breaker series and returns executor hooks feeding them.
func NewResilienceHooks(registerer prometheus.Registerer, service string) resilience.Hooks {
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Total retried remote calls by operation.",
		},
		[]string{"service", "operation"},
	)
	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions by operation and target state.",
		},
		[]string{"service", "operation", "to"},
	)
	registerer.MustRegister(retries, transitions)

	return resilience.Hooks{
		OnRetry: func(operation string, _ int) {
			retries.WithLabelValues(service, operation).Inc()
		},
		OnStateChange: func(operation, _, to string) {
			transitions.WithLabelValues(service, operation, to).Inc()
		},
	}
}

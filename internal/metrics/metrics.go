package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PaymentsInitialized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_initialized_total",
			Help: "Gateway payment initializations by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	PaymentAmounts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_amounts",
			Help:    "Distribution of initialized payment amounts",
			Buckets: prometheus.ExponentialBuckets(1, 4, 12),
		},
		[]string{"currency"},
	)

	PaymentTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_status_transitions_total",
			Help: "Payment status changes applied to the ledger",
		},
		[]string{"provider", "status", "source"},
	)

	WebhooksReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhooks_total",
			Help: "Gateway webhooks by provider, event type and outcome",
		},
		[]string{"provider", "event_type", "outcome"},
	)

	WalletOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_operations_total",
			Help: "Wallet mutations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "code"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latency of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

var once sync.Once

// RegisterMetrics registers every collector with the default registry. It
// is safe to call more than once.
func RegisterMetrics() {
	once.Do(func() {
		prometheus.MustRegister(
			PaymentsInitialized,
			PaymentAmounts,
			PaymentTransitions,
			WebhooksReceived,
			WalletOperations,
			HTTPRequests,
			HTTPDuration,
		)
	})
}

func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

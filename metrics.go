package ledgerbridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the bridge's Prometheus collectors. All components
// treat a nil *Metrics as "metrics disabled".
type Metrics struct {
	QueueDepth           prometheus.Gauge
	Attempts             prometheus.Counter
	Retries              prometheus.Counter
	DeadLetters          prometheus.Counter
	Submissions          prometheus.Counter
	ConfirmationSeconds  prometheus.Histogram
	ConfirmationTimeouts prometheus.Counter
}

// NewMetrics registers the bridge collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledgerbridge",
			Name:      "queue_depth",
			Help:      "Operations waiting in the invocation queue.",
		}),
		Attempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ledgerbridge",
			Name:      "invoke_attempts_total",
			Help:      "Invoke attempts taken off the queue.",
		}),
		Retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ledgerbridge",
			Name:      "invoke_retries_total",
			Help:      "Operations re-appended to the queue tail after a failure.",
		}),
		DeadLetters: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ledgerbridge",
			Name:      "dead_letters_total",
			Help:      "Operations handed to the dead-letter sink.",
		}),
		Submissions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ledgerbridge",
			Name:      "submissions_total",
			Help:      "Transactions accepted by the ledger.",
		}),
		ConfirmationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ledgerbridge",
			Name:      "confirmation_seconds",
			Help:      "Time from submission to confirmation observation.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		ConfirmationTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ledgerbridge",
			Name:      "confirmation_timeouts_total",
			Help:      "Submitted transactions not observed within the confirmation window.",
		}),
	}
}

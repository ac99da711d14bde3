package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors of the staking dashboard.
type Metrics struct {
	// Reconciliation
	ReconcileDuration  *prometheus.HistogramVec
	ReconcileRuns      *prometheus.CounterVec
	ReconcileCoalesced prometheus.Counter
	ConnectionStatus   *prometheus.GaugeVec
	LastBlock          prometheus.Gauge
	BlockSubscriptions prometheus.Gauge
	ReadFailures       *prometheus.CounterVec
	PreviewPoolsServed prometheus.Counter

	// Actions
	ActionsTotal   *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec

	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	return &Metrics{
		ReconcileDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Time spent re-reading pool and position state.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"scope"}),

		ReconcileRuns: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Reconciliation runs, labeled by trigger.",
		}, []string{"trigger"}),

		ReconcileCoalesced: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_coalesced_total",
			Help:      "Triggers merged into an in-flight reconciliation instead of starting a new one.",
		}),

		ConnectionStatus: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_status",
			Help:      "1 for the current wallet connection status, 0 otherwise.",
		}, []string{"status"}),

		LastBlock: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_block_number",
			Help:      "Number of the last block that triggered a reconciliation.",
		}),

		BlockSubscriptions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "block_subscriptions_active",
			Help:      "Active new-block subscriptions. Never above 1.",
		}),

		ReadFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_failures_total",
			Help:      "Failed chain reads, labeled by reader.",
		}, []string{"reader"}),

		PreviewPoolsServed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preview_pools_served_total",
			Help:      "Pool reads answered with the preview set.",
		}),

		ActionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Staking actions, labeled by kind and outcome.",
		}, []string{"kind", "outcome"}),

		ActionDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Time from submission to confirmation of a staking action.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"kind"}),

		HTTPRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests, labeled by route and status code.",
		}, []string{"route", "code"}),

		HTTPDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// NewUnregistered is used where no registry is wired, e.g. in tests.
func NewUnregistered() *Metrics {
	return NewMetrics(prometheus.NewRegistry(), "oec")
}

// SetConnectionStatus flips the status gauge so that only current is 1.
func (m *Metrics) SetConnectionStatus(current string, all ...string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.ConnectionStatus.WithLabelValues(s).Set(v)
	}
}

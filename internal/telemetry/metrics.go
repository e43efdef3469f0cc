package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the Data Manager's Prometheus surface.
type Metrics struct {
	GetOpsInFlight    prometheus.Gauge
	GetOpsCompleted   *prometheus.CounterVec
	SyncPendingKeys   *prometheus.GaugeVec
	PlacementFailures prometheus.Counter
	IntegrityFailures prometheus.Counter
}

// NewMetrics registers and returns the Data Manager's metrics against
// reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		GetOpsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vault",
			Subsystem: "data_manager",
			Name:      "get_operations_in_flight",
			Help:      "Number of Get Operations currently awaiting responses.",
		}),
		GetOpsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vault",
			Subsystem: "data_manager",
			Name:      "get_operations_completed_total",
			Help:      "Get Operations completed, by outcome.",
		}, []string{"outcome"}),
		SyncPendingKeys: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vault",
			Subsystem: "data_manager",
			Name:      "sync_pending_keys",
			Help:      "Unresolved Sync Resolver keys, by action kind.",
		}, []string{"kind"}),
		PlacementFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vault",
			Subsystem: "data_manager",
			Name:      "placement_failures_total",
			Help:      "Placement Engine calls that exhausted their candidate search.",
		}),
		IntegrityFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vault",
			Subsystem: "data_manager",
			Name:      "integrity_failures_total",
			Help:      "Integrity challenges whose reported scalar disagreed with the reference.",
		}),
	}
	reg.MustRegister(m.GetOpsInFlight, m.GetOpsCompleted, m.SyncPendingKeys, m.PlacementFailures, m.IntegrityFailures)
	return m
}

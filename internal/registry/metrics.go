package registry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Operation names a registry operation for metric labeling.
type Operation string

const (
	OperationClear  Operation = "clear"
	OperationUpdate Operation = "update"
	OperationRemove Operation = "remove"
	OperationQuery  Operation = "query"
	OperationTotal  Operation = "total"
)

// Metric names as constants for consistency.
const (
	MetricOperationsTotal  = "registry_operations_total"
	MetricQuerySourceCount = "registry_query_source_count"
	MetricSourceCount      = "registry_source_count"
)

// Metrics contains Prometheus metrics for registry operations.
// All operations are thread-safe.
type Metrics struct {
	operationsTotal  *prometheus.CounterVec
	querySourceCount prometheus.Histogram
	sourceCount      prometheus.Gauge
}

// NewMetrics creates and returns a new Metrics instance with all
// collectors initialized. The metrics are not registered; call Register
// to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricOperationsTotal,
				Help: "Total number of registry operations by kind",
			},
			[]string{"operation"},
		),
		querySourceCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricQuerySourceCount,
				Help:    "Number of known sources resolved for a query",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
			},
		),
		sourceCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricSourceCount,
				Help: "Current number of distinct sources held by the registry",
			},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncOperation increments the operations counter for the given kind.
func (m *Metrics) IncOperation(op Operation) {
	m.operationsTotal.WithLabelValues(string(op)).Inc()
}

// ObserveQuerySourceCount records how many known sources a query touched.
func (m *Metrics) ObserveQuerySourceCount(n int) {
	m.querySourceCount.Observe(float64(n))
}

// SetSourceCount sets the current number of distinct sources.
func (m *Metrics) SetSourceCount(n int) {
	m.sourceCount.Set(float64(n))
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.operationsTotal,
		m.querySourceCount,
		m.sourceCount,
	}
}

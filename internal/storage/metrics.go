package storage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records every backend call made through a BlobStore.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "towerdocs_storage_operations_total",
				Help: "Total number of storage backend operations.",
			},
			[]string{"backend", "operation", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "towerdocs_storage_operation_duration_seconds",
				Help:    "Duration of storage backend operations in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "operation"},
		),
	}
	if err := reg.Register(m.operations); err != nil {
		return nil, err
	}
	if err := reg.Register(m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observe(backend, operation, status string, start time.Time) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(backend, operation, status).Inc()
	m.duration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}

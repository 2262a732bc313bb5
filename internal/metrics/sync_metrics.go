package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics содержит метрики синхронизации заказов.
type SyncMetrics struct {
	passes       prometheus.Counter
	delivered    prometheus.Counter
	failed       prometheus.Counter
	passDuration prometheus.Histogram
	pending      prometheus.Gauge
}

// NewSyncMetrics регистрирует метрики в DefaultRegisterer.
func NewSyncMetrics() *SyncMetrics {
	return NewSyncMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewSyncMetricsWithRegisterer регистрирует метрики в указанном registerer.
func NewSyncMetricsWithRegisterer(registerer prometheus.Registerer) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SyncMetrics{
		passes: registerCounter(registerer, prometheus.CounterOpts{
			Name: "foodies_sync_passes_total",
			Help: "Total number of sync passes executed while online",
		}),
		delivered: registerCounter(registerer, prometheus.CounterOpts{
			Name: "foodies_sync_orders_delivered_total",
			Help: "Total number of orders confirmed by the remote endpoint",
		}),
		failed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "foodies_sync_orders_failed_total",
			Help: "Total number of order deliveries that failed and stay pending",
		}),
		passDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "foodies_sync_pass_duration_seconds",
			Help:    "Duration of a sync pass in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		pending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "foodies_sync_pending_orders",
			Help: "Pending orders observed at the start of the last sync pass",
		}),
	}
}

// RecordPass фиксирует один проход синхронизации.
func (m *SyncMetrics) RecordPass(pending, delivered, failed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.passes.Inc()
	m.pending.Set(float64(pending))
	m.delivered.Add(float64(delivered))
	m.failed.Add(float64(failed))
	m.passDuration.Observe(duration.Seconds())
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics содержит метрики кеш-менеджера ресурсов.
type CacheMetrics struct {
	// Маршрутизация запросов: route = api|cache|network|fallback|passthrough.
	requests *prometheus.CounterVec

	revalidations    *prometheus.CounterVec
	cacheWriteErrors prometheus.Counter

	installDuration    prometheus.Histogram
	generationsDeleted prometheus.Counter
	active             prometheus.Gauge
}

// NewCacheMetrics регистрирует метрики в DefaultRegisterer.
func NewCacheMetrics() *CacheMetrics {
	return NewCacheMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCacheMetricsWithRegisterer регистрирует метрики в указанном registerer.
func NewCacheMetricsWithRegisterer(registerer prometheus.Registerer) *CacheMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CacheMetrics{
		requests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "foodies_cache_requests_total",
			Help: "Total number of intercepted requests by route",
		}, []string{"route"}),
		revalidations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "foodies_cache_revalidations_total",
			Help: "Total number of background revalidations by result",
		}, []string{"result"}),
		cacheWriteErrors: registerCounter(registerer, prometheus.CounterOpts{
			Name: "foodies_cache_write_errors_total",
			Help: "Total number of failed cache writes",
		}),
		installDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "foodies_cache_install_duration_seconds",
			Help:    "Duration of static cache installation in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		generationsDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "foodies_cache_generations_deleted_total",
			Help: "Total number of stale cache generations deleted on activation",
		}),
		active: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "foodies_cache_manager_active",
			Help: "1 when the cache manager controls page requests",
		}),
	}
}

// RecordRequest увеличивает счётчик запросов по маршруту.
func (m *CacheMetrics) RecordRequest(route string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route).Inc()
}

// RecordRevalidation фиксирует результат фонового обновления (updated|skipped|failed).
func (m *CacheMetrics) RecordRevalidation(result string) {
	if m == nil {
		return
	}
	m.revalidations.WithLabelValues(result).Inc()
}

// RecordCacheWriteError увеличивает счётчик ошибок записи в кеш.
func (m *CacheMetrics) RecordCacheWriteError() {
	if m == nil {
		return
	}
	m.cacheWriteErrors.Inc()
}

// RecordInstall записывает длительность установки.
func (m *CacheMetrics) RecordInstall(duration time.Duration) {
	if m == nil {
		return
	}
	m.installDuration.Observe(duration.Seconds())
}

// RecordGenerationsDeleted добавляет число удалённых поколений.
func (m *CacheMetrics) RecordGenerationsDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.generationsDeleted.Add(float64(n))
}

// SetActive выставляет gauge активности менеджера.
func (m *CacheMetrics) SetActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.active.Set(1)
		return
	}
	m.active.Set(0)
}

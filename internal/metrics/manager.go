package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sharegate/sharegate/internal/config"
)

// Manager defines the interface for metrics management
type Manager interface {
	// Share engine metrics
	RecordEvaluation(operation, outcome string, duration time.Duration)
	RecordAccessEvent(action string, ok bool)

	// Statistics cache metrics
	RecordStatsLookup(hit bool)
	RecordStatsRefresh(shares int, duration time.Duration, success bool)

	// HTTP metrics
	RecordHTTPRequest(method, path, status string, duration time.Duration)

	// Host metrics
	UpdateSystemMetrics(stats *SystemStats)

	// Export
	GetMetricsHandler() http.Handler
	Middleware() func(http.Handler) http.Handler
}

const namespace = "sharegate"

// metricsManager implements the Manager interface using Prometheus
type metricsManager struct {
	registry *prometheus.Registry

	// Share engine
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	accessEventsTotal  *prometheus.CounterVec

	// Statistics cache
	statsLookupsTotal   *prometheus.CounterVec
	statsRefreshTotal   *prometheus.CounterVec
	statsRefreshShares  prometheus.Gauge
	statsRefreshSeconds prometheus.Histogram

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Host
	cpuUsagePercent  prometheus.Gauge
	memoryUsageBytes *prometheus.GaugeVec
	memoryPercent    prometheus.Gauge
	diskUsageBytes   *prometheus.GaugeVec
	diskPercent      prometheus.Gauge
}

// NewManager creates a new metrics manager. A disabled configuration yields a
// manager that records nothing.
func NewManager(cfg config.MetricsConfig) Manager {
	if !cfg.Enable {
		return &noopManager{}
	}

	manager := &metricsManager{
		registry: prometheus.NewRegistry(),
	}
	manager.initializeMetrics()
	manager.registerMetrics()
	return manager
}

// initializeMetrics sets up all Prometheus metrics
func (m *metricsManager) initializeMetrics() {
	m.evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "share",
			Name:      "evaluations_total",
			Help:      "Total number of share evaluations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	m.evaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "share",
			Name:      "evaluation_duration_seconds",
			Help:      "Share evaluation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	m.accessEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "share",
			Name:      "access_events_total",
			Help:      "Total number of recorded share access events",
		},
		[]string{"action", "status"},
	)

	m.statsLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "cache_lookups_total",
			Help:      "Statistics cache lookups by result",
		},
		[]string{"result"},
	)

	m.statsRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "refresh_runs_total",
			Help:      "Statistics refresh runs by status",
		},
		[]string{"status"},
	)

	m.statsRefreshShares = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "refresh_last_shares",
			Help:      "Number of shares recomputed by the last refresh run",
		},
	)

	m.statsRefreshSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "refresh_duration_seconds",
			Help:      "Statistics refresh duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.cpuUsagePercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "cpu_usage_percent",
			Help:      "Host CPU usage percentage",
		},
	)

	m.memoryUsageBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_bytes",
			Help:      "Host memory in bytes by type",
		},
		[]string{"type"},
	)

	m.memoryPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_usage_percent",
			Help:      "Host memory usage percentage",
		},
	)

	m.diskUsageBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "disk_bytes",
			Help:      "Data directory filesystem size in bytes by type",
		},
		[]string{"type"},
	)

	m.diskPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "disk_usage_percent",
			Help:      "Data directory filesystem usage percentage",
		},
	)
}

func (m *metricsManager) registerMetrics() {
	metrics := []prometheus.Collector{
		// Share
		m.evaluationsTotal,
		m.evaluationDuration,
		m.accessEventsTotal,

		// Stats
		m.statsLookupsTotal,
		m.statsRefreshTotal,
		m.statsRefreshShares,
		m.statsRefreshSeconds,

		// HTTP
		m.httpRequestsTotal,
		m.httpRequestDuration,

		// Host
		m.cpuUsagePercent,
		m.memoryUsageBytes,
		m.memoryPercent,
		m.diskUsageBytes,
		m.diskPercent,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	}

	for _, metric := range metrics {
		m.registry.MustRegister(metric)
	}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func (m *metricsManager) RecordEvaluation(operation, outcome string, duration time.Duration) {
	m.evaluationsTotal.WithLabelValues(operation, outcome).Inc()
	m.evaluationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *metricsManager) RecordAccessEvent(action string, ok bool) {
	m.accessEventsTotal.WithLabelValues(action, statusLabel(ok)).Inc()
}

func (m *metricsManager) RecordStatsLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.statsLookupsTotal.WithLabelValues(result).Inc()
}

func (m *metricsManager) RecordStatsRefresh(shares int, duration time.Duration, success bool) {
	m.statsRefreshTotal.WithLabelValues(statusLabel(success)).Inc()
	m.statsRefreshSeconds.Observe(duration.Seconds())
	if success {
		m.statsRefreshShares.Set(float64(shares))
	}
}

func (m *metricsManager) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *metricsManager) UpdateSystemMetrics(stats *SystemStats) {
	if stats == nil {
		return
	}
	m.cpuUsagePercent.Set(stats.CPUPercent)
	m.memoryPercent.Set(stats.MemoryUsedPercent)
	m.memoryUsageBytes.WithLabelValues("used").Set(float64(stats.MemoryUsedBytes))
	m.memoryUsageBytes.WithLabelValues("total").Set(float64(stats.MemoryTotalBytes))
	m.diskPercent.Set(stats.DiskUsedPercent)
	m.diskUsageBytes.WithLabelValues("used").Set(float64(stats.DiskUsedBytes))
	m.diskUsageBytes.WithLabelValues("total").Set(float64(stats.DiskTotalBytes))
}

func (m *metricsManager) GetMetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency for every request it wraps
func (m *metricsManager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriterWrapper{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			next.ServeHTTP(wrapped, r)

			m.RecordHTTPRequest(r.Method, r.URL.Path, fmt.Sprintf("%d", wrapped.statusCode), time.Since(start))
		})
	}
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// noopManager is a no-op implementation when metrics are disabled
type noopManager struct{}

// NewNoop returns a Manager that discards everything
func NewNoop() Manager { return &noopManager{} }

func (n *noopManager) RecordEvaluation(operation, outcome string, duration time.Duration)  {}
func (n *noopManager) RecordAccessEvent(action string, ok bool)                            {}
func (n *noopManager) RecordStatsLookup(hit bool)                                          {}
func (n *noopManager) RecordStatsRefresh(shares int, duration time.Duration, success bool) {}
func (n *noopManager) RecordHTTPRequest(method, path, status string, duration time.Duration) {}
func (n *noopManager) UpdateSystemMetrics(stats *SystemStats)                              {}
func (n *noopManager) GetMetricsHandler() http.Handler                                     { return http.NotFoundHandler() }
func (n *noopManager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}

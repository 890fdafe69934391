// Package metrics holds the Prometheus instruments of shadow-sync. A nil *Metrics is valid
// and records nothing, so components can be built without instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shadow_sync"

type Metrics struct {
	registry *prometheus.Registry

	syncAttempts       *prometheus.CounterVec
	syncDuration       *prometheus.HistogramVec
	syncInProgress     prometheus.Gauge
	lastDumpSize       prometheus.Gauge
	lastSuccess        prometheus.Gauge
	replicationLag     *prometheus.GaugeVec
	replicationActive  *prometheus.GaugeVec
	replicationChecks  *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpRequestSeconds *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		syncAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_attempts_total",
			Help:      "Sync attempts by strategy and outcome.",
		}, []string{"strategy", "status"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of finished sync attempts.",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"strategy", "status"}),
		syncInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_in_progress",
			Help:      "1 while this process holds the sync lock.",
		}),
		lastDumpSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_dump_size_bytes",
			Help:      "Size of the last successfully restored dump.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful sync.",
		}),
		replicationLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "replication_lag_bytes",
			Help:      "WAL distance between the current position and the slot's confirmed flush position.",
		}, []string{"slot"}),
		replicationActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "replication_slot_active",
			Help:      "1 when the replication slot is active.",
		}, []string{"slot"}),
		replicationChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replication_health_checks_total",
			Help:      "Replication health checks by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Gateway requests by route, method and status code.",
		}, []string{"route", "method", "status_code"}),
		httpRequestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Gateway request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.syncAttempts,
		m.syncDuration,
		m.syncInProgress,
		m.lastDumpSize,
		m.lastSuccess,
		m.replicationLag,
		m.replicationActive,
		m.replicationChecks,
		m.httpRequests,
		m.httpRequestSeconds,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SyncStarted() {
	if m == nil {
		return
	}
	m.syncInProgress.Set(1)
}

func (m *Metrics) SyncFinished(strategy, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.syncInProgress.Set(0)
	m.syncAttempts.WithLabelValues(strategy, status).Inc()
	if status != "skipped" {
		m.syncDuration.WithLabelValues(strategy, status).Observe(duration.Seconds())
	}
}

func (m *Metrics) SyncSkipped(strategy string) {
	if m == nil {
		return
	}
	m.syncAttempts.WithLabelValues(strategy, "skipped").Inc()
}

func (m *Metrics) SyncSucceeded(at time.Time, dumpSizeBytes *int64) {
	if m == nil {
		return
	}
	m.lastSuccess.Set(float64(at.Unix()))
	if dumpSizeBytes != nil {
		m.lastDumpSize.Set(float64(*dumpSizeBytes))
	}
}

// ReplicationObserved records a health check. lagBytes is ignored when the slot was not found.
func (m *Metrics) ReplicationObserved(slot string, found, active, healthy bool, lagBytes int64) {
	if m == nil {
		return
	}
	result := "healthy"
	if !healthy {
		result = "unhealthy"
	}
	m.replicationChecks.WithLabelValues(result).Inc()

	if !found {
		m.replicationActive.WithLabelValues(slot).Set(0)
		return
	}
	activeValue := 0.0
	if active {
		activeValue = 1
	}
	m.replicationActive.WithLabelValues(slot).Set(activeValue)
	m.replicationLag.WithLabelValues(slot).Set(float64(lagBytes))
}

// Middleware records request counts and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := routePattern(r)
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		m.httpRequestSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// routePattern keeps label cardinality bounded by never using the raw URL.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return "unknown_route"
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.SyncStarted()
		m.SyncFinished("dump_restore", "success", time.Second)
		m.SyncSkipped("dump_restore")
		m.SyncSucceeded(time.Now(), nil)
		m.ReplicationObserved("slot", true, true, true, 10)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncMetrics(t *testing.T) {
	m := New()

	m.SyncStarted()
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.syncInProgress), 0)

	m.SyncFinished("dump_restore", "failed", 3*time.Second)
	m.SyncSkipped("dump_restore")
	size := int64(2048)
	m.SyncSucceeded(time.Unix(1700000000, 0), &size)

	assert.InDelta(t, 0.0, testutil.ToFloat64(m.syncInProgress), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.syncAttempts.WithLabelValues("dump_restore", "failed")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.syncAttempts.WithLabelValues("dump_restore", "skipped")), 0)
	assert.InDelta(t, 2048.0, testutil.ToFloat64(m.lastDumpSize), 0)
	assert.InDelta(t, 1700000000.0, testutil.ToFloat64(m.lastSuccess), 0)
}

func TestReplicationMetrics(t *testing.T) {
	m := New()

	m.ReplicationObserved("hidden_instance_sub", true, true, true, 5000)
	m.ReplicationObserved("hidden_instance_sub", true, false, false, 7000)

	assert.InDelta(t, 7000.0, testutil.ToFloat64(m.replicationLag.WithLabelValues("hidden_instance_sub")), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.replicationActive.WithLabelValues("hidden_instance_sub")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.replicationChecks.WithLabelValues("healthy")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.replicationChecks.WithLabelValues("unhealthy")), 0)
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
	}

	assert.InDelta(t, 3.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/items/{id}", "GET", "418")), 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shadow_sync_http_requests_total")
}

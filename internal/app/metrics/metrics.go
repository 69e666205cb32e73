// Package metrics exposes Prometheus instrumentation for the HTTP API and
// the sync engine.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service's collectors around one registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	syncCycles *prometheus.CounterVec
	syncJars   *prometheus.CounterVec
	jarsClosed prometheus.Counter
}

// New creates a registry with the standard process and Go collectors plus
// the service's own metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jar_service_http_requests_total",
			Help: "HTTP requests processed, by method, path and status code.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jar_service_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		syncCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jar_service_sync_cycles_total",
			Help: "Completed sync cycles, by outcome.",
		}, []string{"outcome"}),
		syncJars: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jar_service_sync_jars_total",
			Help: "Per-jar sync results, by outcome.",
		}, []string{"outcome"}),
		jarsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jar_service_jars_closed_total",
			Help: "Jars closed by the sync engine.",
		}),
	}
	reg.MustRegister(m.httpRequests, m.httpDuration, m.syncCycles, m.syncJars, m.jarsClosed)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSyncCycle records the outcome of one sync cycle.
func (m *Metrics) ObserveSyncCycle(synced, failed, closed int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.syncCycles.WithLabelValues(outcome).Inc()
	m.syncJars.WithLabelValues("synced").Add(float64(synced))
	m.syncJars.WithLabelValues("failed").Add(float64(failed))
	m.jarsClosed.Add(float64(closed))
}

// InstrumentHandler wraps an HTTP handler with request counting and latency
// observation. Paths are canonicalised so ids do not explode cardinality.
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := canonicalPath(r.URL.Path)
		m.httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// canonicalPath collapses resource ids into a placeholder segment.
func canonicalPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 {
		return "/"
	}
	switch parts[0] {
	case "jars", "tags", "volunteers":
		if len(parts) > 1 {
			parts[1] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

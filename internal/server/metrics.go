// metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler is the "handler" label value used to partition metrics by
// the logical endpoint name rather than the raw URL path.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec

	// signalsRouted counts routed signals, partitioned by selected agent.
	signalsRouted *prometheus.CounterVec

	// trustFlags counts scoring outcomes, partitioned by trust flag.
	trustFlags *prometheus.CounterVec

	// escalationsTotal counts signals whose drift score crossed the
	// escalation threshold.
	escalationsTotal prometheus.Counter
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) registers into the provided
// registry rather than the global default, which keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sme",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sme",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),

		signalsRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sme",
			Subsystem: "routing",
			Name:      "signals_total",
			Help:      "Total number of routed signals, partitioned by selected agent.",
		}, []string{"agent"}),

		trustFlags: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sme",
			Subsystem: "scoring",
			Name:      "flags_total",
			Help:      "Total number of scoring decisions, partitioned by trust flag.",
		}, []string{"flag"}),

		escalationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sme",
			Subsystem: "routing",
			Name:      "escalations_total",
			Help:      "Total number of signals whose drift score crossed the escalation threshold.",
		}),
	}
}

// instrument wraps a handler to record request count and latency under the
// given logical handler name.
func (s *Server) instrument(name string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw, ok := w.(*responseWriter)
		if !ok {
			rw = &responseWriter{ResponseWriter: w, status: http.StatusOK}
		}

		start := time.Now()
		next.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(elapsed.Seconds())
	})
}

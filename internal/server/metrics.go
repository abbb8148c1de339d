// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Question outcome label values.
const (
	// outcomeOK marks a synthesised answer.
	outcomeOK = "ok"
	// outcomeRejected marks an out-of-scope question (rejection answer).
	outcomeRejected = "rejected"
	// outcomeError marks a pipeline failure surfaced as a 502.
	outcomeError = "error"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// questionsTotal counts completed /api/question requests, partitioned by
	// outcome: "ok", "rejected", or "error".
	questionsTotal *prometheus.CounterVec

	// questionDurationSeconds records the wall-clock duration of each
	// /api/question request, partitioned by outcome.
	questionDurationSeconds *prometheus.HistogramVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler name, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		questionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docsqa",
			Subsystem: "question",
			Name:      "requests_total",
			Help:      "Total number of /api/question requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		questionDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docsqa",
			Subsystem: "question",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/question requests, gate to synthesis.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"outcome"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docsqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", "handler", "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docsqa",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "handler"}),
	}
}

// observeQuestion records the outcome and duration of one /api/question request.
func (s *Server) observeQuestion(outcome string, start time.Time) {
	s.metrics.questionsTotal.WithLabelValues(outcome).Inc()
	s.metrics.questionDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// instrument wraps next with per-handler HTTP request counting and latency
// observation, using the logical handler name rather than the raw URL path.
func (s *Server) instrument(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
	})
}

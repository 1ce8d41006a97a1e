package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentrt_http_requests_total",
		Help: "Total HTTP requests processed, by route and status.",
	}, []string{"route", "method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentrt_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds, by route and method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// requestMetrics records a Prometheus counter and histogram per request,
// keyed by the matched chi route pattern (not the raw path, to avoid
// unbounded cardinality from path parameters).
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		requestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).Inc()
		requestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// handleMetrics exposes the Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// handleMetricsJSON exposes a small JSON summary, for callers that would
// rather not parse the Prometheus text format (spec §6.1).
func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	metricFamilies, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to gather metrics")
		return
	}
	out := make(map[string]float64, len(metricFamilies))
	for _, mf := range metricFamilies {
		var total float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
		out[mf.GetName()] = total
	}
	writeJSON(w, http.StatusOK, out)
}

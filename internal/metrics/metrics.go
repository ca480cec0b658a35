// Package metrics exposes Prometheus instruments for the service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	RiskFindings   *prometheus.CounterVec
	ReadinessPolls *prometheus.CounterVec
	UpstreamErrors *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the process-wide instruments, registering them on first use.
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "legal_rag_http_requests_total",
					Help: "HTTP requests by route, method and status code",
				},
				[]string{"route", "method", "status"},
			),
			HTTPDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "legal_rag_http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
				},
				[]string{"route"},
			),
			RiskFindings: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "legal_rag_risk_findings_total",
					Help: "Risk findings produced by the rule evaluator, by severity",
				},
				[]string{"severity"},
			),
			ReadinessPolls: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "legal_rag_readiness_polls_total",
					Help: "Corpus readiness polls by observed outcome",
				},
				[]string{"outcome"},
			),
			UpstreamErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "legal_rag_upstream_errors_total",
					Help: "Failed calls to external services",
				},
				[]string{"component"},
			),
			CacheLookups: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "legal_rag_summary_cache_lookups_total",
					Help: "Summary cache lookups by result",
				},
				[]string{"result"},
			),
		}
	})
	return instance
}

// Handler serves the default registry in the exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency keyed by the chi route pattern,
// so path parameters do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	m := Get()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

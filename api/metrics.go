package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seenimoa/finmarket/internal/feed"
)

// Metrics holds the Prometheus collectors exposed at /metrics.
type Metrics struct {
	registry *prometheus.Registry

	Retrievals      *prometheus.CounterVec
	Toggles         *prometheus.CounterVec
	WSClients       prometheus.Gauge
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the finmarket collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Retrievals: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "finmarket",
				Name:      "feed_retrievals_total",
				Help:      "Completed feed retrievals by terminal phase and data source",
			},
			[]string{"phase", "source"},
		),
		Toggles: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "finmarket",
				Name:      "favorites_toggles_total",
				Help:      "Favorite toggles by result",
			},
			[]string{"result"},
		),
		WSClients: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "finmarket",
				Name:      "ws_clients",
				Help:      "Connected WebSocket clients",
			},
		),
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "finmarket",
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "finmarket",
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

// ObserveRetrieval records a terminal feed state. It is meant to be passed
// to feed.WithObserver.
func (m *Metrics) ObserveRetrieval(st feed.State) {
	m.Retrievals.WithLabelValues(st.Phase.String(), string(st.Source)).Inc()
}

// RecordToggle records a favorites toggle result: "added", "removed" or
// "failed".
func (m *Metrics) RecordToggle(result string) {
	m.Toggles.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// instrument counts requests by their chi route pattern.
func (m *Metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

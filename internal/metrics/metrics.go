package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the terminal's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	backendRequests *prometheus.HistogramVec
	sales           *prometheus.CounterVec
	stockFailures   prometheus.Counter
	breakerState    *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		backendRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pos_backend_request_duration_seconds",
			Help:    "Latency of calls to the retail backend.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		sales: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_sales_submitted_total",
			Help: "Sale submissions by outcome.",
		}, []string{"result"}),
		stockFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pos_stock_decrement_failures_total",
			Help: "Stock decrement calls that failed after a sale was created.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pos_backend_breaker_open",
			Help: "1 while the backend circuit breaker is open.",
		}, []string{"name"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.backendRequests,
		m.sales,
		m.stockFailures,
		m.breakerState,
	)
	return m
}

// ObserveBackend records one backend call. Nil receivers are no-ops so
// components can run without metrics in tests.
func (m *Metrics) ObserveBackend(method string, route string, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(method, route, status).Observe(took.Seconds())
}

func (m *Metrics) SaleSubmitted(result string) {
	if m == nil {
		return
	}
	m.sales.WithLabelValues(result).Inc()
}

func (m *Metrics) StockDecrementFailed() {
	if m == nil {
		return
	}
	m.stockFailures.Inc()
}

func (m *Metrics) BreakerOpen(name string, open bool) {
	if m == nil {
		return
	}
	val := 0.0
	if open {
		val = 1
	}
	m.breakerState.WithLabelValues(name).Set(val)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

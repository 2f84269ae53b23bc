package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus collectors of the forecasting service.
// Each Metrics owns its registry so tests and multiple servers do not collide.
type Metrics struct {
	registry *prometheus.Registry

	predictionsTotal   *prometheus.CounterVec
	predictionDuration *prometheus.HistogramVec
	degradedTotal      *prometheus.CounterVec
	batchesTotal       prometheus.Counter
	batchDays          prometheus.Histogram
	httpRequestsTotal  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them, plus Go runtime collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		predictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "covercast_predictions_total",
				Help: "Total number of predictions served, by method and cache outcome",
			},
			[]string{"method", "cached"},
		),
		predictionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "covercast_prediction_duration_seconds",
				Help:    "Duration of prediction requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
			},
			[]string{"method"},
		),
		degradedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "covercast_collaborator_degraded_total",
				Help: "Total number of collaborator failures absorbed by the fallback policy",
			},
			[]string{"collaborator"},
		),
		batchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "covercast_batches_total",
				Help: "Total number of batch forecasts served",
			},
		),
		batchDays: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "covercast_batch_days",
				Help:    "Number of dates per batch forecast",
				Buckets: []float64{1, 7, 14, 31, 62},
			},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "covercast_http_requests_total",
				Help: "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}

	m.registry.MustRegister(
		m.predictionsTotal,
		m.predictionDuration,
		m.degradedTotal,
		m.batchesTotal,
		m.batchDays,
		m.httpRequestsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry to expose on /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObservePrediction records one served prediction.
func (m *Metrics) ObservePrediction(method string, cached bool, duration time.Duration) {
	m.predictionsTotal.WithLabelValues(method, strconv.FormatBool(cached)).Inc()
	m.predictionDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveDegradation records a collaborator failure that was absorbed.
func (m *Metrics) ObserveDegradation(collaborator string) {
	m.degradedTotal.WithLabelValues(collaborator).Inc()
}

// ObserveBatch records one batch forecast over days dates.
func (m *Metrics) ObserveBatch(days int) {
	m.batchesTotal.Inc()
	m.batchDays.Observe(float64(days))
}

// ObserveHTTPRequest records one HTTP request.
func (m *Metrics) ObserveHTTPRequest(route string, code int) {
	m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

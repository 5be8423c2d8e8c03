package health

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/searcher/pkg/network"
)

// OutcomeSuccess labels requests that resolved without an error. Failures
// are labelled with their network.Kind.
const OutcomeSuccess = "success"

// Metrics holds all Prometheus metrics for searcher.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ResponseBytes    *prometheus.CounterVec
	RequestsInFlight prometheus.Gauge
	QueuedRequests   prometheus.Gauge
	CurrentRate      prometheus.Gauge
	TargetRate       prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "searcher",
				Name:      "requests_total",
				Help:      "Total number of requests by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "searcher",
				Name:      "request_duration_seconds",
				Help:      "Request latency histogram",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"endpoint"},
		),
		ResponseBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "searcher",
				Name:      "response_bytes_total",
				Help:      "Response body bytes received, including bodies of HTTP errors",
			},
			[]string{"endpoint"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "searcher",
				Name:      "requests_in_flight",
				Help:      "Current number of requests being processed",
			},
		),
		QueuedRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "searcher",
				Name:      "queued_requests",
				Help:      "Number of requests waiting in queue",
			},
		),
		CurrentRate: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "searcher",
				Name:      "current_rate",
				Help:      "Requests completed during the last second",
			},
		),
		TargetRate: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "searcher",
				Name:      "target_rate",
				Help:      "Rate limit set by the traffic shape",
			},
		),
	}
}

// Outcome returns the metric label for a request error.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return network.KindOf(err).String()
}

// RecordRequest records metrics for a completed request.
func (m *Metrics) RecordRequest(endpoint string, data []byte, err error, durationSeconds float64) {
	m.RequestsTotal.WithLabelValues(endpoint, Outcome(err)).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(durationSeconds)

	size := len(data)
	var nerr *network.Error
	if errors.As(err, &nerr) && nerr.Kind == network.KindHTTP {
		size = len(nerr.Data)
	}
	m.ResponseBytes.WithLabelValues(endpoint).Add(float64(size))
}

// SetQueuedRequests updates the queued requests metric.
func (m *Metrics) SetQueuedRequests(count int) {
	m.QueuedRequests.Set(float64(count))
}

// SetCurrentRate updates the completed-per-second metric.
func (m *Metrics) SetCurrentRate(rate float64) {
	m.CurrentRate.Set(rate)
}

// SetTargetRate updates the shaped rate limit metric.
func (m *Metrics) SetTargetRate(rate float64) {
	m.TargetRate.Set(rate)
}

// IncRequestsInFlight increments the in-flight requests counter.
func (m *Metrics) IncRequestsInFlight() {
	m.RequestsInFlight.Inc()
}

// DecRequestsInFlight decrements the in-flight requests counter.
func (m *Metrics) DecRequestsInFlight() {
	m.RequestsInFlight.Dec()
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the outbound fetch queue and the inbound per-IP limiter.
type Metrics struct {
	QueueDepth      prometheus.Gauge
	QueueWait       prometheus.Histogram
	QueueRejected   *prometheus.CounterVec
	QueueExecuted   *prometheus.CounterVec
	InboundRejected *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "paymail_bridge_fetch_queue_depth",
			Help: "Number of outbound chain-data fetches waiting for their turn",
		}),
		QueueWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "paymail_bridge_fetch_queue_wait_seconds",
			Help:    "Time a fetch spent queued before it started",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		QueueRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paymail_bridge_fetch_queue_rejected_total",
			Help: "Fetches rejected without running, by reason",
		}, []string{"reason"}),
		QueueExecuted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paymail_bridge_fetch_queue_executed_total",
			Help: "Fetches executed by the queue worker, by outcome",
		}, []string{"outcome"}),
		InboundRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paymail_bridge_inbound_rate_limited_total",
			Help: "Inbound requests rejected by the per-IP limiter, by endpoint class",
		}, []string{"class"}),
	}
}

func (m *Metrics) IncQueued() {
	m.QueueDepth.Inc()
}

// ObserveDequeued records that a fetch left the queue after waiting since enqueued.
func (m *Metrics) ObserveDequeued(enqueued time.Time) {
	m.QueueDepth.Dec()
	m.QueueWait.Observe(time.Since(enqueued).Seconds())
}

func (m *Metrics) IncRejected(reason string) {
	m.QueueRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncExecuted(outcome string) {
	m.QueueExecuted.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncInboundRejected(class string) {
	m.InboundRejected.WithLabelValues(class).Inc()
}

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejected       *prometheus.CounterVec
	VerifyDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paymail_bridge_auth_rejections_total",
			Help: "Signed requests rejected by the authentication guard, by reason",
		}, []string{"reason"}),
		VerifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "paymail_bridge_auth_verify_duration_ms",
			Help:    "Latency of signature authentication checks in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}),
	}
}

func (m *Metrics) IncRejected(reason string) {
	m.Rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveVerify(start time.Time) {
	m.VerifyDuration.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}

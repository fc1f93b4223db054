package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process-wide HTTP and registry metrics.
type Metrics struct {
	RequestDuration    *prometheus.HistogramVec
	AliasesRegistered  prometheus.Counter
	AliasesDeleted     prometheus.Counter
	DestinationsIssued *prometheus.CounterVec
	ReceiptsCollected  prometheus.Counter
	ReceiptsAcked      prometheus.Counter
}

// New registers the metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the metrics with reg; tests pass a fresh prometheus.NewRegistry().
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paymail_bridge_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route pattern, method and status",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"route", "method", "status"}),
		AliasesRegistered: f.NewCounter(prometheus.CounterOpts{
			Name: "paymail_bridge_aliases_registered_total",
			Help: "Total number of aliases registered",
		}),
		AliasesDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "paymail_bridge_aliases_deleted_total",
			Help: "Total number of aliases deleted by their owner",
		}),
		DestinationsIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paymail_bridge_destinations_issued_total",
			Help: "Total number of payment destinations issued by derivation variant",
		}, []string{"variant"}),
		ReceiptsCollected: f.NewCounter(prometheus.CounterOpts{
			Name: "paymail_bridge_receipts_collected_total",
			Help: "Total number of unacknowledged receipts handed to wallets",
		}),
		ReceiptsAcked: f.NewCounter(prometheus.CounterOpts{
			Name: "paymail_bridge_receipts_acknowledged_total",
			Help: "Total number of receipts marked acknowledged",
		}),
	}
}

// ObserveRequest records the duration of one HTTP request.
// Call with time.Now() at the start of the request.
func (m *Metrics) ObserveRequest(route, method, status string, start time.Time) {
	m.RequestDuration.WithLabelValues(route, method, status).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementAliasesRegistered() {
	m.AliasesRegistered.Inc()
}

func (m *Metrics) IncrementAliasesDeleted() {
	m.AliasesDeleted.Inc()
}

func (m *Metrics) IncrementDestinationsIssued(variant string) {
	m.DestinationsIssued.WithLabelValues(variant).Inc()
}

func (m *Metrics) AddReceiptsCollected(n int) {
	m.ReceiptsCollected.Add(float64(n))
}

func (m *Metrics) AddReceiptsAcked(n int) {
	m.ReceiptsAcked.Add(float64(n))
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

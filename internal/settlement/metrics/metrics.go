package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes recorded by IncrementOutcome.
const (
	OutcomeRecorded        = "recorded"
	OutcomeDuplicate       = "duplicate"
	OutcomeTermsNotMet     = "terms_not_met"
	OutcomeBroadcastFailed = "broadcast_failed"
	OutcomeProofInvalid    = "proof_invalid"
	OutcomeConflict        = "conflict"
	OutcomePersistFailed   = "persist_failed"
)

type Metrics struct {
	Settlements        *prometheus.CounterVec
	ProofSources       *prometheus.CounterVec
	SettlementDuration prometheus.Histogram
	SatoshisReceived   prometheus.Counter
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Settlements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paymail_bridge_settlements_total",
			Help: "Settlement attempts by outcome",
		}, []string{"outcome"}),
		ProofSources: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paymail_bridge_settlement_proof_source_total",
			Help: "Where the stored proof bundle of a recorded settlement came from",
		}, []string{"source"}),
		SettlementDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "paymail_bridge_settlement_duration_seconds",
			Help:    "Time from receiving a transaction to recording it",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		SatoshisReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "paymail_bridge_satoshis_received_total",
			Help: "Satoshis paid to recorded destinations",
		}),
	}
}

func (m *Metrics) IncrementOutcome(outcome string) {
	m.Settlements.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementProofSource(source string) {
	m.ProofSources.WithLabelValues(source).Inc()
}

// ObserveSettlement records a completed settlement. Call with time.Now() at the start.
func (m *Metrics) ObserveSettlement(start time.Time, satoshis uint64) {
	m.SettlementDuration.Observe(time.Since(start).Seconds())
	m.SatoshisReceived.Add(float64(satoshis))
}

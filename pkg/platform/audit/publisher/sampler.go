package publisher

import (
	"math/rand/v2"
	"sync"

	audit "paymail-bridge/pkg/platform/audit"
)

// Sampler thins out operations events. Compliance and security events are always kept.
type Sampler struct {
	mu           sync.RWMutex
	defaultRate  float64
	rateByAction map[string]float64
	roll         func() float64
}

// NewSampler keeps operations events with probability defaultRate, clamped to [0, 1].
func NewSampler(defaultRate float64) *Sampler {
	return &Sampler{
		defaultRate:  clamp(defaultRate),
		rateByAction: make(map[string]float64),
		roll:         rand.Float64,
	}
}

// SetRate overrides the rate for one action, such as destination issuance.
func (s *Sampler) SetRate(action audit.AuditEvent, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateByAction[string(action)] = clamp(rate)
}

// Keep reports whether event should be written.
func (s *Sampler) Keep(event audit.Event) bool {
	if event.Category != audit.CategoryOperations {
		return true
	}
	s.mu.RLock()
	rate, ok := s.rateByAction[event.Action]
	if !ok {
		rate = s.defaultRate
	}
	s.mu.RUnlock()
	switch rate {
	case 0:
		return false
	case 1:
		return true
	}
	return s.roll() < rate //nolint:gosec // sampling does not need crypto rand
}

func clamp(rate float64) float64 {
	switch {
	case rate < 0:
		return 0
	case rate > 1:
		return 1
	}
	return rate
}

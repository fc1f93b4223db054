package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type BreakerSuite struct {
	suite.Suite
	now time.Time
}

func TestBreakerSuite(t *testing.T) {
	suite.Run(t, new(BreakerSuite))
}

func (s *BreakerSuite) SetupTest() {
	s.now = time.Unix(1_700_000_000, 0)
}

func (s *BreakerSuite) breaker(opts ...Option) *Breaker {
	base := []Option{
		WithFailureThreshold(2),
		WithSuccessThreshold(2),
		WithCooldown(10 * time.Second),
		WithClock(func() time.Time { return s.now }),
	}
	return New("whatsonchain", append(base, opts...)...)
}

func (s *BreakerSuite) TestDefaults() {
	b := New("ratelimit")
	s.Equal("ratelimit", b.Name())
	s.Equal(StateClosed, b.State())
	s.Equal("closed", b.State().String())
	for range 4 {
		useFallback, _ := b.RecordFailure()
		s.False(useFallback)
	}
	useFallback, change := b.RecordFailure()
	s.True(useFallback)
	s.True(change.Opened)
	s.Equal("open", b.State().String())
}

func (s *BreakerSuite) TestUpstreamOutageAndRecovery() {
	b := s.breaker()

	useFallback, change := b.RecordFailure()
	s.False(useFallback)
	s.False(change.Opened)
	useFallback, change = b.RecordFailure()
	s.True(useFallback)
	s.True(change.Opened)

	useFallback, change = b.RecordFailure()
	s.True(useFallback)
	s.False(change.Opened, "already open")

	usePrimary, change := b.RecordSuccess()
	s.False(usePrimary)
	s.False(change.Closed)
	usePrimary, change = b.RecordSuccess()
	s.True(usePrimary)
	s.True(change.Closed)
	s.False(b.IsOpen())
}

func (s *BreakerSuite) TestIntermittentFailuresDoNotOpen() {
	b := s.breaker()
	for range 5 {
		b.RecordFailure()
		b.RecordSuccess()
	}
	s.False(b.IsOpen())
}

func (s *BreakerSuite) TestFailedProbeRestartsRecovery() {
	b := s.breaker(WithSuccessThreshold(3))
	b.RecordFailure()
	b.RecordFailure()

	b.RecordSuccess()
	b.RecordSuccess()
	b.RecordFailure()
	s.True(b.IsOpen())

	b.RecordSuccess()
	b.RecordSuccess()
	s.True(b.IsOpen())
	b.RecordSuccess()
	s.False(b.IsOpen())
}

func (s *BreakerSuite) TestAllowProbesOncePerCooldown() {
	b := s.breaker(WithFailureThreshold(1))
	s.True(b.Allow())

	b.RecordFailure()
	s.False(b.Allow())

	s.now = s.now.Add(9 * time.Second)
	s.False(b.Allow())

	s.now = s.now.Add(time.Second)
	s.True(b.Allow(), "probe")
	s.False(b.Allow(), "second call in the same cooldown")

	s.now = s.now.Add(10 * time.Second)
	s.True(b.Allow())
}

func (s *BreakerSuite) TestReset() {
	b := s.breaker(WithFailureThreshold(1))
	b.RecordFailure()
	s.True(b.IsOpen())

	b.Reset()
	s.Equal(StateClosed, b.State())
	s.True(b.Allow())

	useFallback, _ := b.RecordFailure()
	s.True(useFallback, "counters cleared, threshold of one applies again")
}

func (s *BreakerSuite) TestIgnoresNonPositiveThresholds() {
	b := New("x", WithFailureThreshold(0), WithSuccessThreshold(-1), WithClock(nil))
	s.Equal(5, b.failureThreshold)
	s.Equal(3, b.successThreshold)
	s.NotNil(b.now)
}

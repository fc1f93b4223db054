package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"paymail-bridge/internal/auth"
	"paymail-bridge/internal/auth/store/replay"
	"paymail-bridge/internal/keys"
	"paymail-bridge/internal/keys/keystest"
	dErrors "paymail-bridge/pkg/domain-errors"
	audit "paymail-bridge/pkg/platform/audit"
	"paymail-bridge/pkg/platform/audit/store/memory"
	"paymail-bridge/pkg/requestcontext"
)

var authProtocol = keys.Protocol{SecurityLevel: 2, Name: "paymail bridge auth"}

type GuardSuite struct {
	suite.Suite
	provider *keys.SDKProvider
	signer   *keystest.Signer
	now      time.Time
	audit    *memory.InMemoryStore
	metrics  *auth.Metrics
	guard    *auth.Guard
}

func TestGuardSuite(t *testing.T) {
	suite.Run(t, new(GuardSuite))
}

func (s *GuardSuite) SetupTest() {
	var err error
	s.provider, err = keys.NewSDKProvider(true)
	s.Require().NoError(err)
	s.signer = keystest.NewSigner(s.T())
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.audit = memory.NewInMemoryStore()
	s.metrics = auth.NewMetrics(prometheus.NewRegistry())
	s.guard, err = auth.NewGuard(s.provider,
		auth.WithAuditor(syncEmitter{s.audit}),
		auth.WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
}

type syncEmitter struct{ store audit.Store }

func (e syncEmitter) Emit(ctx context.Context, event audit.Event) error {
	return e.store.Append(ctx, event)
}

func (s *GuardSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *GuardSuite) envelope(message string, signedAt time.Time) auth.Envelope {
	keyID := signedAt.UTC().Format(time.RFC3339Nano)
	return auth.Envelope{
		Data:        []byte(message),
		IdentityKey: s.signer.IdentityKey(),
		ProtocolID:  authProtocol,
		KeyID:       keyID,
		Signature:   s.signer.Sign(s.T(), []byte(message), authProtocol, keyID),
	}
}

func (s *GuardSuite) TestNewGuard() {
	_, err := auth.NewGuard(nil)
	s.ErrorContains(err, "verifier is required")
}

func (s *GuardSuite) TestReplayWindow() {
	cases := []struct {
		name    string
		age     time.Duration
		wantErr error
	}{
		{name: "signed just now", age: 0},
		{name: "signed 5 seconds ago", age: 5 * time.Second},
		{name: "signed just inside the window", age: 9*time.Second + 999*time.Millisecond},
		{name: "signed exactly 10 seconds ago", age: 10 * time.Second, wantErr: auth.ErrExpiredOrFutureTimestamp},
		{name: "signed 11 seconds ago", age: 11 * time.Second, wantErr: auth.ErrExpiredOrFutureTimestamp},
		{name: "signed in the future", age: -time.Second, wantErr: auth.ErrExpiredOrFutureTimestamp},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			env := s.envelope(auth.MessageCollect, s.now.Add(-tc.age))
			res, err := s.guard.Authenticate(s.ctx(), env, auth.MessageCollect)
			if tc.wantErr != nil {
				s.ErrorIs(err, tc.wantErr)
				s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
				return
			}
			s.Require().NoError(err)
			s.Equal(s.signer.IdentityKey(), res.IdentityKey)
		})
	}
}

func (s *GuardSuite) TestMalformedTimestamp() {
	env := s.envelope(auth.MessageCollect, s.now)
	env.KeyID = "not a timestamp"
	_, err := s.guard.Authenticate(s.ctx(), env, auth.MessageCollect)
	s.ErrorIs(err, auth.ErrExpiredOrFutureTimestamp)
}

func (s *GuardSuite) TestMessageBinding() {
	s.Run("signature for another action is rejected", func() {
		env := s.envelope(auth.MessageListAliases, s.now)
		_, err := s.guard.Authenticate(s.ctx(), env, auth.MessageCollect)
		s.ErrorIs(err, auth.ErrMessageMismatch)
	})

	s.Run("delete binds the alias", func() {
		env := s.envelope(auth.DeleteAliasMessage("bob"), s.now)
		_, err := s.guard.Authenticate(s.ctx(), env, auth.DeleteAliasMessage("alice"))
		s.ErrorIs(err, auth.ErrMessageMismatch)

		_, err = s.guard.Authenticate(s.ctx(), env, auth.DeleteAliasMessage("bob"))
		s.NoError(err)
	})

	s.Run("empty expectation skips the binding", func() {
		env := s.envelope("anything the wallet chose", s.now)
		_, err := s.guard.Authenticate(s.ctx(), env, "")
		s.NoError(err)
	})
}

func (s *GuardSuite) TestSignatureChecks() {
	s.Run("signature from another key", func() {
		env := s.envelope(auth.MessageCollect, s.now)
		env.IdentityKey = keystest.NewSigner(s.T()).IdentityKey()
		_, err := s.guard.Authenticate(s.ctx(), env, auth.MessageCollect)
		s.ErrorIs(err, auth.ErrInvalidSignature)
	})

	s.Run("signature under another protocol", func() {
		env := s.envelope(auth.MessageCollect, s.now)
		env.ProtocolID = keys.Protocol{SecurityLevel: 2, Name: "other bridge auth"}
		_, err := s.guard.Authenticate(s.ctx(), env, auth.MessageCollect)
		s.ErrorIs(err, auth.ErrInvalidSignature)
	})

	s.Run("garbage signature bytes", func() {
		env := s.envelope(auth.MessageCollect, s.now)
		env.Signature = []byte{1, 2, 3}
		_, err := s.guard.Authenticate(s.ctx(), env, auth.MessageCollect)
		s.ErrorIs(err, auth.ErrInvalidSignature)
	})

	s.Run("identity key that does not parse", func() {
		env := s.envelope(auth.MessageCollect, s.now)
		env.IdentityKey = "zz"
		_, err := s.guard.Authenticate(s.ctx(), env, auth.MessageCollect)
		s.ErrorIs(err, auth.ErrInvalidSignature)
	})
}

func (s *GuardSuite) TestReplayCache() {
	guard, err := auth.NewGuard(s.provider, auth.WithReplayCache(replay.NewInMemoryStore()))
	s.Require().NoError(err)

	env := s.envelope(auth.MessageCollect, s.now)
	_, err = guard.Authenticate(s.ctx(), env, auth.MessageCollect)
	s.Require().NoError(err)

	_, err = guard.Authenticate(s.ctx(), env, auth.MessageCollect)
	s.ErrorIs(err, auth.ErrReplayDetected)

	// a fresh signature from the same wallet is still accepted
	next := s.envelope(auth.MessageCollect, s.now.Add(-time.Millisecond))
	_, err = guard.Authenticate(s.ctx(), next, auth.MessageCollect)
	s.NoError(err)
}

func (s *GuardSuite) TestReplayCacheFailure() {
	guard, err := auth.NewGuard(s.provider, auth.WithReplayCache(failingCache{}))
	s.Require().NoError(err)

	_, err = guard.Authenticate(s.ctx(), s.envelope(auth.MessageCollect, s.now), auth.MessageCollect)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *GuardSuite) TestRejectionsAreAuditedAndCounted() {
	env := s.envelope(auth.MessageCollect, s.now.Add(-time.Minute))
	_, err := s.guard.Authenticate(s.ctx(), env, auth.MessageCollect)
	s.Require().Error(err)

	events, err := s.audit.ListByIdentity(context.Background(), s.signer.IdentityKey())
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventAuthFailed), events[0].Action)
	s.Equal("outside_window", events[0].Reason)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Rejected.WithLabelValues("outside_window")))
}

func (s *GuardSuite) TestEnvelopeValidate() {
	valid := s.envelope(auth.MessageCollect, s.now)
	s.NoError(valid.Validate())

	missingKey := valid
	missingKey.IdentityKey = ""
	s.True(dErrors.HasCode(missingKey.Validate(), dErrors.CodeValidation))

	missingSig := valid
	missingSig.Signature = nil
	s.True(dErrors.HasCode(missingSig.Validate(), dErrors.CodeValidation))

	badProtocol := valid
	badProtocol.ProtocolID = keys.Protocol{SecurityLevel: 7, Name: "x"}
	s.True(dErrors.HasCode(badProtocol.Validate(), dErrors.CodeValidation))
}

type failingCache struct{}

func (failingCache) Claim(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func (s *GuardSuite) TestUnverifiableInputIsInvalidSignature() {
	env := s.envelope(auth.MessageCollect, s.now)
	env.ProtocolID = keys.Protocol{SecurityLevel: 2, Name: "x"}
	_, err := s.guard.Authenticate(s.ctx(), env, auth.MessageCollect)
	s.ErrorIs(err, auth.ErrInvalidSignature)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Rejected.WithLabelValues("unverifiable")))
}

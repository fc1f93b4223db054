// Package auth holds the signature authentication guard that fronts every
// identity-scoped operation.
//
// A request proves control of an identity key by signing Data under ProtocolID and a
// KeyID that is an RFC 3339 timestamp. The guard verifies the signature with the
// well-known "anyone" key as verifier and the claimed identity key as counterparty,
// rejects timestamps outside a 10 second window, and optionally binds the signed
// bytes to a literal message naming the operation.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"paymail-bridge/internal/keys"
	dErrors "paymail-bridge/pkg/domain-errors"
	audit "paymail-bridge/pkg/platform/audit"
	"paymail-bridge/pkg/requestcontext"
)

// ReplayWindow is how long a signed request stays acceptable after its keyID timestamp.
const ReplayWindow = 10 * time.Second

// Literal messages binding a signature to one operation.
const (
	MessageCollect     = "please give me my transactions"
	MessageListAliases = "list my aliases"
)

// DeleteAliasMessage is the literal a wallet signs to delete alias.
func DeleteAliasMessage(alias string) string {
	return "delete alias " + alias
}

// Rejections. All of them surface as 400.
var (
	ErrExpiredOrFutureTimestamp = dErrors.New(dErrors.CodeUnauthorized, "Request expired or invalid timestamp")
	ErrMessageMismatch          = dErrors.New(dErrors.CodeUnauthorized, "Invalid message")
	ErrInvalidSignature         = dErrors.New(dErrors.CodeUnauthorized, "Invalid signature")
	ErrReplayDetected           = dErrors.New(dErrors.CodeUnauthorized, "Signature already used")
)

// Verifier checks counterparty-bound signatures.
type Verifier interface {
	VerifySignature(ctx context.Context, req keys.VerifyRequest) (bool, error)
}

// ReplayCache remembers accepted signatures for the length of the window.
type ReplayCache interface {
	// Claim records key and reports false if it was already claimed within ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Authenticated is the outcome of a successful check.
type Authenticated struct {
	IdentityKey string
	SignedAt    time.Time
}

// Guard implements Authenticate.
type Guard struct {
	verifier Verifier
	replay   ReplayCache
	auditor  audit.Emitter
	metrics  *Metrics
	logger   *slog.Logger
	window   time.Duration
}

type Option func(*Guard)

// WithReplayCache rejects a signature that is presented twice inside the window.
func WithReplayCache(cache ReplayCache) Option {
	return func(g *Guard) {
		g.replay = cache
	}
}

func WithAuditor(auditor audit.Emitter) Option {
	return func(g *Guard) {
		g.auditor = auditor
	}
}

func WithMetrics(m *Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

func NewGuard(verifier Verifier, opts ...Option) (*Guard, error) {
	if verifier == nil {
		return nil, errors.New("signature verifier is required")
	}
	g := &Guard{
		verifier: verifier,
		logger:   slog.Default(),
		window:   ReplayWindow,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Authenticate checks env and returns the proven identity key. An empty expected
// message skips the literal binding.
func (g *Guard) Authenticate(ctx context.Context, env Envelope, expected string) (Authenticated, error) {
	start := time.Now()
	defer func() {
		if g.metrics != nil {
			g.metrics.ObserveVerify(start)
		}
	}()

	signedAt, err := time.Parse(time.RFC3339Nano, env.KeyID)
	if err != nil {
		return Authenticated{}, g.reject(ctx, env, ErrExpiredOrFutureTimestamp, "unparsable_timestamp")
	}
	delta := requestcontext.Now(ctx).Sub(signedAt)
	if delta < 0 || delta >= g.window {
		return Authenticated{}, g.reject(ctx, env, ErrExpiredOrFutureTimestamp, "outside_window")
	}

	if expected != "" && string(env.Data) != expected {
		return Authenticated{}, g.reject(ctx, env, ErrMessageMismatch, "message_mismatch")
	}

	valid, err := g.verifier.VerifySignature(ctx, keys.VerifyRequest{
		Data:         env.Data,
		Signature:    env.Signature,
		Protocol:     env.ProtocolID,
		KeyID:        env.KeyID,
		Counterparty: env.IdentityKey,
	})
	if err != nil {
		// every verifier error traces back to caller input: key, protocol name or keyID
		reason := "unverifiable"
		if errors.Is(err, keys.ErrInvalidKey) {
			reason = "invalid_identity_key"
		}
		g.logger.DebugContext(ctx, "signature could not be verified", "error", err)
		return Authenticated{}, g.reject(ctx, env, ErrInvalidSignature, reason)
	}
	if !valid {
		return Authenticated{}, g.reject(ctx, env, ErrInvalidSignature, "invalid_signature")
	}

	if g.replay != nil {
		fresh, err := g.replay.Claim(ctx, replayKey(env), g.window)
		if err != nil {
			return Authenticated{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check replay cache")
		}
		if !fresh {
			return Authenticated{}, g.reject(ctx, env, ErrReplayDetected, "replayed")
		}
	}

	return Authenticated{IdentityKey: env.IdentityKey, SignedAt: signedAt}, nil
}

func (g *Guard) reject(ctx context.Context, env Envelope, err error, reason string) error {
	requestID := requestcontext.RequestID(ctx)
	g.logger.WarnContext(ctx, "signature authentication rejected",
		"request_id", requestID,
		"identity_key", env.IdentityKey,
		"key_id", env.KeyID,
		"reason", reason,
	)
	if g.metrics != nil {
		g.metrics.IncRejected(reason)
	}
	if g.auditor != nil {
		if auditErr := g.auditor.Emit(ctx, audit.Event{
			Action:      string(audit.EventAuthFailed),
			IdentityKey: env.IdentityKey,
			Reason:      reason,
			IP:          requestcontext.ClientIP(ctx),
			RequestID:   requestID,
		}); auditErr != nil {
			g.logger.WarnContext(ctx, "failed to emit audit event", "request_id", requestID, "error", auditErr)
		}
	}
	return err
}

// replayKey digests the tuple so raw signatures never reach the cache.
func replayKey(env Envelope) string {
	h := sha256.New()
	h.Write([]byte(env.IdentityKey))
	h.Write([]byte{0})
	h.Write([]byte(env.KeyID))
	h.Write([]byte{0})
	h.Write(env.Signature)
	return hex.EncodeToString(h.Sum(nil))
}

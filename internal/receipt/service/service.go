// Package service lets the owner of an identity key collect the payments settled to
// its destinations and acknowledge the ones its wallet has internalized.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"paymail-bridge/internal/auth"
	"paymail-bridge/internal/platform/metrics"
	"paymail-bridge/internal/receipt/models"
	dErrors "paymail-bridge/pkg/domain-errors"
	audit "paymail-bridge/pkg/platform/audit"
	"paymail-bridge/pkg/requestcontext"
)

// MaxAcknowledge caps the txids accepted in one acknowledgment.
const MaxAcknowledge = 1000

// Store reads and acknowledges receipts.
type Store interface {
	ListByIdentity(ctx context.Context, identityKey string, unacknowledgedOnly bool) ([]*models.TransactionRecord, error)
	Acknowledge(ctx context.Context, txids []string, at time.Time) (int, error)
}

// Authenticator is the signature guard.
type Authenticator interface {
	Authenticate(ctx context.Context, env auth.Envelope, expected string) (auth.Authenticated, error)
}

var (
	ErrNoTxIDs      = dErrors.New(dErrors.CodeValidation, "txids must be a non-empty array")
	ErrTooManyTxIDs = dErrors.New(dErrors.CodeValidation, "too many txids")
	ErrInvalidTxID  = dErrors.New(dErrors.CodeValidation, "txids must be 64 character hex strings")
)

type Service struct {
	store   Store
	guard   Authenticator
	auditor audit.Emitter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Service)

func WithAuditor(auditor audit.Emitter) Option {
	return func(s *Service) {
		s.auditor = auditor
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, guard Authenticator, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("receipt store is required")
	}
	if guard == nil {
		return nil, errors.New("authenticator is required")
	}
	s := &Service{
		store:  store,
		guard:  guard,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Collect returns the caller's unacknowledged receipts, newest first. It does not
// mark them; the wallet acknowledges what it has internalized.
func (s *Service) Collect(ctx context.Context, env auth.Envelope) ([]*models.TransactionRecord, error) {
	caller, err := s.guard.Authenticate(ctx, env, auth.MessageCollect)
	if err != nil {
		return nil, err
	}
	records, err := s.list(ctx, caller.IdentityKey, true)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.AddReceiptsCollected(len(records))
	}
	if len(records) > 0 {
		s.emit(ctx, audit.EventReceiptsCollected, caller.IdentityKey, len(records))
	}
	return records, nil
}

// ListAll returns every receipt of the caller, acknowledged or not, newest first.
func (s *Service) ListAll(ctx context.Context, env auth.Envelope) ([]*models.TransactionRecord, error) {
	caller, err := s.guard.Authenticate(ctx, env, "")
	if err != nil {
		return nil, err
	}
	return s.list(ctx, caller.IdentityKey, false)
}

func (s *Service) list(ctx context.Context, identityKey string, unacknowledgedOnly bool) ([]*models.TransactionRecord, error) {
	records, err := s.store.ListByIdentity(ctx, identityKey, unacknowledgedOnly)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Failed to load transactions")
	}
	if records == nil {
		records = []*models.TransactionRecord{}
	}
	s.logger.InfoContext(ctx, "receipts listed",
		"request_id", requestcontext.RequestID(ctx),
		"identity_key", identityKey,
		"unacknowledged_only", unacknowledgedOnly,
		"count", len(records),
	)
	return records, nil
}

// Acknowledge marks txids as internalized. Unknown and already acknowledged txids
// are ignored, so repeating a call is harmless.
func (s *Service) Acknowledge(ctx context.Context, txids []string) error {
	switch {
	case len(txids) == 0:
		return ErrNoTxIDs
	case len(txids) > MaxAcknowledge:
		return ErrTooManyTxIDs
	}
	for _, txid := range txids {
		if !models.ValidTxID(txid) {
			return ErrInvalidTxID
		}
	}
	changed, err := s.store.Acknowledge(ctx, txids, requestcontext.Now(ctx))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "Failed to acknowledge transactions")
	}
	s.logger.InfoContext(ctx, "receipts acknowledged",
		"request_id", requestcontext.RequestID(ctx),
		"requested", len(txids),
		"changed", changed,
	)
	if s.metrics != nil {
		s.metrics.AddReceiptsAcked(changed)
	}
	if changed > 0 {
		s.emit(ctx, audit.EventReceiptsAcknowledged, "", changed)
	}
	return nil
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, identityKey string, count int) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Emit(ctx, audit.Event{
		Action:      string(action),
		IdentityKey: identityKey,
		Reason:      strconv.Itoa(count) + " receipts",
		IP:          requestcontext.ClientIP(ctx),
		RequestID:   requestcontext.RequestID(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"request_id", requestcontext.RequestID(ctx),
			"action", action,
			"error", err,
		)
	}
}

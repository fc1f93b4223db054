// Package service issues single-use payment destinations for an alias.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	aliasmodels "paymail-bridge/internal/alias/models"
	"paymail-bridge/internal/destination/models"
	"paymail-bridge/internal/keys"
	"paymail-bridge/internal/platform/metrics"
	dErrors "paymail-bridge/pkg/domain-errors"
	audit "paymail-bridge/pkg/platform/audit"
	"paymail-bridge/pkg/platform/sentinel"
	"paymail-bridge/pkg/requestcontext"
)

// maxReferenceAttempts bounds retries when two issuances for one alias land on
// the same timestamp.
const maxReferenceAttempts = 3

type Store interface {
	Create(ctx context.Context, record *models.DestinationRecord) error
	FindByReference(ctx context.Context, reference string) (*models.DestinationRecord, error)
}

// AliasResolver looks up the owner of an alias.
type AliasResolver interface {
	Resolve(ctx context.Context, alias string) (*aliasmodels.AliasRecord, error)
}

// Deriver derives payment keys on behalf of the bridge.
type Deriver interface {
	DeriveDestination(protocol keys.Protocol, keyID, counterparty string) (keys.Destination, error)
	IdentityKey() string
}

var (
	ErrInvalidSatoshis     = dErrors.New(dErrors.CodeValidation, "satoshis must be a positive integer")
	ErrDestinationNotFound = dErrors.New(dErrors.CodeNotFound, "Destination not found")
)

type Service struct {
	store   Store
	aliases AliasResolver
	deriver Deriver
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

func New(store Store, aliases AliasResolver, deriver Deriver, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("destination store is required")
	}
	if aliases == nil {
		return nil, errors.New("alias resolver is required")
	}
	if deriver == nil {
		return nil, errors.New("key deriver is required")
	}
	s := &Service{
		store:   store,
		aliases: aliases,
		deriver: deriver,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue derives a fresh payment key for alias, stores the destination and returns
// its terms. Terms are only returned once the record is stored.
func (s *Service) Issue(ctx context.Context, variant models.Variant, alias string, satoshis uint64) (*models.Terms, error) {
	if !variant.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown destination variant")
	}
	if satoshis == 0 || satoshis > models.MaxSatoshis {
		return nil, ErrInvalidSatoshis
	}
	owner, err := s.aliases.Resolve(ctx, alias)
	if err != nil {
		return nil, err
	}

	at := requestcontext.Now(ctx).UTC()
	var record *models.DestinationRecord
	for attempt := 1; ; attempt++ {
		record, err = s.build(variant, owner, satoshis, at)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive payment key")
		}
		err = s.store.Create(ctx, record)
		if err == nil {
			break
		}
		if !errors.Is(err, sentinel.ErrConflict) || attempt == maxReferenceAttempts {
			s.logger.ErrorContext(ctx, "failed to store destination",
				"request_id", requestcontext.RequestID(ctx),
				"alias", alias,
				"reference", record.Reference,
				"error", err,
			)
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Failed to register destination")
		}
		at = at.Add(time.Nanosecond)
	}

	s.logger.InfoContext(ctx, "destination issued",
		"request_id", requestcontext.RequestID(ctx),
		"alias", alias,
		"reference", record.Reference,
		"variant", variant,
		"satoshis", satoshis,
	)
	if s.metrics != nil {
		s.metrics.IncrementDestinationsIssued(string(variant))
	}
	if s.auditor != nil {
		if err := s.auditor.Emit(ctx, audit.Event{
			Action:      string(audit.EventDestinationIssued),
			IdentityKey: record.IdentityKey,
			Alias:       record.Alias,
			Reference:   record.Reference,
			Satoshis:    record.Satoshis,
			IP:          requestcontext.ClientIP(ctx),
			RequestID:   requestcontext.RequestID(ctx),
		}); err != nil {
			s.logger.WarnContext(ctx, "failed to emit audit event", "error", err)
		}
	}
	return models.TermsFor(record), nil
}

func (s *Service) build(variant models.Variant, owner *aliasmodels.AliasRecord, satoshis uint64, at time.Time) (*models.DestinationRecord, error) {
	stamp := at.Format(time.RFC3339Nano)
	record := &models.DestinationRecord{
		Alias:       owner.Alias,
		IdentityKey: owner.IdentityKey,
		Satoshis:    satoshis,
		CreatedAt:   at,
	}
	switch variant {
	case models.VariantBRC29:
		record.ProtocolID = keys.PaymentProtocol
		record.DerivationPrefix = base64.StdEncoding.EncodeToString([]byte(owner.Alias))
		record.DerivationSuffix = base64.StdEncoding.EncodeToString([]byte(stamp))
		record.KeyID = record.DerivationPrefix + " " + record.DerivationSuffix
		record.SenderIdentityKey = s.deriver.IdentityKey()
	case models.VariantSimple:
		record.ProtocolID = keys.DestinationProtocol
		record.KeyID = stamp
	}
	record.Reference = record.KeyID

	dest, err := s.deriver.DeriveDestination(record.ProtocolID, record.KeyID, owner.IdentityKey)
	if err != nil {
		return nil, err
	}
	record.PublicKey = dest.PublicKey
	record.Script = dest.Script
	return record, nil
}

// Lookup returns the destination issued under reference.
func (s *Service) Lookup(ctx context.Context, reference string) (*models.DestinationRecord, error) {
	record, err := s.store.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, ErrDestinationNotFound
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load destination")
	}
	return record, nil
}

// Package service is the settlement engine. It checks a submitted transaction
// against the terms of an issued destination, broadcasts it, assembles a proof
// bundle and records a receipt for the destination's owner to collect.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/bsv-blockchain/go-sdk/transaction/chaintracker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	destmodels "paymail-bridge/internal/destination/models"
	"paymail-bridge/internal/receipt/models"
	"paymail-bridge/internal/settlement/metrics"
	dErrors "paymail-bridge/pkg/domain-errors"
	audit "paymail-bridge/pkg/platform/audit"
	"paymail-bridge/pkg/platform/sentinel"
	"paymail-bridge/pkg/requestcontext"
)

const (
	defaultTimeout = 2 * time.Minute
	// persistTimeout bounds the final write, which runs even if the settlement
	// deadline has passed.
	persistTimeout = 15 * time.Second
)

var tracer = otel.Tracer("paymail-bridge/settlement")

// Store records receipts. Insert fails with models.ErrTxIDExists or
// models.ErrReferenceSettled on a unique-key conflict.
type Store interface {
	Insert(ctx context.Context, record *models.TransactionRecord) error
	FindByTxID(ctx context.Context, txid string) (*models.TransactionRecord, error)
	FindByReference(ctx context.Context, reference string) (*models.TransactionRecord, error)
}

// Destinations looks up issued destinations by reference.
type Destinations interface {
	Lookup(ctx context.Context, reference string) (*destmodels.DestinationRecord, error)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, tx *transaction.Transaction) (string, error)
}

// ChainData serves proof material. Missing data is reported as sentinel.ErrNotFound.
type ChainData interface {
	BEEF(ctx context.Context, txid string) ([]byte, error)
	RawTx(ctx context.Context, txid string) ([]byte, error)
	MerklePath(ctx context.Context, txid string) (*transaction.MerklePath, error)
}

// Format is the encoding of a submitted transaction.
type Format string

const (
	FormatRaw  Format = "raw"
	FormatBEEF Format = "beef"
)

var (
	ErrAliasMismatch       = dErrors.New(dErrors.CodeBadRequest, "Alias mismatch")
	ErrInvalidTransaction  = dErrors.New(dErrors.CodeValidation, "Invalid transaction")
	ErrTermsNotMet         = dErrors.New(dErrors.CodeTermsNotMet, "This tx does not pay the required destination the agreed amount.")
	ErrAlreadySettled      = dErrors.New(dErrors.CodeConflict, "Destination already settled by another transaction")
	ErrTxRecordedElsewhere = dErrors.New(dErrors.CodeConflict, "Transaction already recorded for another destination")
	ErrProofInvalid        = dErrors.New(dErrors.CodeProofInvalid, "Transaction is not valid")
)

// SettleCommand is one settlement submission. Payload is hex in Format.
type SettleCommand struct {
	Alias     string
	Reference string
	Format    Format
	Payload   string
	Metadata  map[string]any
}

type SettleResult struct {
	TxID string
	Note string
}

type Service struct {
	store        Store
	destinations Destinations
	broadcaster  Broadcaster
	chain        ChainData
	tracker      chaintracker.ChainTracker
	host         string
	timeout      time.Duration
	fetches      singleflight.Group

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

// WithTimeout bounds broadcast and proof assembly once a settlement has started.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New builds the engine. host is the paymail domain written to receipts and the
// pickup note.
func New(store Store, destinations Destinations, broadcaster Broadcaster, chain ChainData, tracker chaintracker.ChainTracker, host string, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("receipt store is required")
	}
	if destinations == nil {
		return nil, errors.New("destination lookup is required")
	}
	if broadcaster == nil {
		return nil, errors.New("broadcaster is required")
	}
	if chain == nil || tracker == nil {
		return nil, errors.New("chain data client and chain tracker are required")
	}
	s := &Service{
		store:        store,
		destinations: destinations,
		broadcaster:  broadcaster,
		chain:        chain,
		tracker:      tracker,
		host:         host,
		timeout:      defaultTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Settle records a payment to the destination issued under cmd.Reference. A
// transaction that was already recorded for that reference is returned as is,
// without a second broadcast. Once the checks pass the work continues even if
// ctx is cancelled, since a broadcast cannot be taken back.
func (s *Service) Settle(ctx context.Context, cmd SettleCommand) (*SettleResult, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "settlement.settle")
	defer span.End()
	span.SetAttributes(attribute.String("reference", cmd.Reference), attribute.String("format", string(cmd.Format)))

	dest, err := s.destinations.Lookup(ctx, cmd.Reference)
	if err != nil {
		return nil, err
	}
	if dest.Alias != cmd.Alias {
		return nil, ErrAliasMismatch
	}

	sub, err := parseSubmission(cmd.Format, cmd.Payload)
	if err != nil {
		s.logger.InfoContext(ctx, "unparseable settlement payload",
			"request_id", requestcontext.RequestID(ctx),
			"reference", cmd.Reference,
			"error", err,
		)
		return nil, ErrInvalidTransaction
	}
	outputIndex, ok := matchOutput(sub.tx, dest)
	txid := sub.tx.TxID().String()
	span.SetAttributes(attribute.String("txid", txid))
	if !ok {
		s.observe(metrics.OutcomeTermsNotMet)
		s.emit(ctx, audit.EventSettlementFailed, dest, txid, "terms not met")
		return nil, ErrTermsNotMet
	}

	if done, err := s.alreadyRecorded(ctx, dest, txid); done != nil || err != nil {
		return done, err
	}

	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.broadcast(work, sub.tx, dest); err != nil {
		span.SetStatus(codes.Error, "broadcast failed")
		return nil, err
	}

	bundle, err := s.assembleProof(work, sub)
	if err != nil {
		s.logger.ErrorContext(ctx, "broadcast transaction failed proof verification",
			"request_id", requestcontext.RequestID(ctx),
			"reference", dest.Reference,
			"txid", txid,
			"alias", dest.Alias,
			"identity_key", dest.IdentityKey,
			"error", err,
		)
		s.observe(metrics.OutcomeProofInvalid)
		s.emit(ctx, audit.EventSettlementFailed, dest, txid, "proof invalid")
		span.SetStatus(codes.Error, "proof invalid")
		return nil, ErrProofInvalid
	}

	record := &models.TransactionRecord{
		TxID:              txid,
		Reference:         dest.Reference,
		Alias:             dest.Alias,
		Domain:            s.host,
		Satoshis:          dest.Satoshis,
		Script:            dest.Script,
		PublicKey:         dest.PublicKey,
		IdentityKey:       dest.IdentityKey,
		KeyID:             dest.KeyID,
		DerivationPrefix:  dest.DerivationPrefix,
		DerivationSuffix:  dest.DerivationSuffix,
		SenderIdentityKey: dest.SenderIdentityKey,
		Beef:              bundle.bytes,
		ProofKind:         bundle.kind,
		OutputIndex:       outputIndex,
		Metadata:          cmd.Metadata,
		CreatedAt:         requestcontext.Now(ctx),
	}
	if err := s.persist(ctx, record); err != nil {
		span.SetStatus(codes.Error, "persist failed")
		return nil, err
	}

	s.logger.InfoContext(ctx, "settlement recorded",
		"request_id", requestcontext.RequestID(ctx),
		"reference", record.Reference,
		"txid", txid,
		"alias", record.Alias,
		"proof_source", bundle.source,
		"satoshis", record.Satoshis,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if s.metrics != nil {
		s.metrics.IncrementOutcome(metrics.OutcomeRecorded)
		s.metrics.IncrementProofSource(bundle.source)
		s.metrics.ObserveSettlement(start, record.Satoshis)
	}
	s.emit(ctx, audit.EventSettlementRecorded, dest, txid, "")
	return s.result(txid), nil
}

// alreadyRecorded returns a result when txid was recorded for dest before, and a
// conflict when either side of the pair is taken by something else.
func (s *Service) alreadyRecorded(ctx context.Context, dest *destmodels.DestinationRecord, txid string) (*SettleResult, error) {
	existing, err := s.store.FindByTxID(ctx, txid)
	switch {
	case err == nil && existing.Reference == dest.Reference:
		s.logger.InfoContext(ctx, "settlement already recorded",
			"request_id", requestcontext.RequestID(ctx),
			"reference", dest.Reference,
			"txid", txid,
		)
		s.observe(metrics.OutcomeDuplicate)
		return s.result(txid), nil
	case err == nil:
		s.observe(metrics.OutcomeConflict)
		return nil, ErrTxRecordedElsewhere
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load receipt")
	}

	_, err = s.store.FindByReference(ctx, dest.Reference)
	switch {
	case err == nil:
		s.observe(metrics.OutcomeConflict)
		return nil, ErrAlreadySettled
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load receipt")
	}
	return nil, nil
}

func (s *Service) broadcast(ctx context.Context, tx *transaction.Transaction, dest *destmodels.DestinationRecord) error {
	ctx, span := tracer.Start(ctx, "settlement.broadcast")
	defer span.End()
	txid := tx.TxID().String()
	if _, err := s.broadcaster.Broadcast(ctx, tx); err != nil {
		span.RecordError(err)
		s.logger.WarnContext(ctx, "broadcast failed",
			"request_id", requestcontext.RequestID(ctx),
			"reference", dest.Reference,
			"txid", txid,
			"error", err,
		)
		s.observe(metrics.OutcomeBroadcastFailed)
		s.emit(ctx, audit.EventSettlementFailed, dest, txid, "broadcast failed")
		return dErrors.Wrap(err, dErrors.CodeUpstream, "Failed to broadcast transaction")
	}
	return nil
}

// persist writes record on a fresh deadline. A txid conflict means a concurrent
// submission of the same transaction won and is success; anything else leaves a
// broadcast payment without a receipt and is logged for reconciliation.
func (s *Service) persist(ctx context.Context, record *models.TransactionRecord) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "settlement.persist")
	defer span.End()

	err := s.store.Insert(ctx, record)
	if err == nil || errors.Is(err, models.ErrTxIDExists) {
		return nil
	}
	span.RecordError(err)
	s.logger.ErrorContext(ctx, "broadcast payment not recorded",
		"request_id", requestcontext.RequestID(ctx),
		"reference", record.Reference,
		"txid", record.TxID,
		"alias", record.Alias,
		"identity_key", record.IdentityKey,
		"script", record.Script,
		"satoshis", record.Satoshis,
		"error", err,
	)
	s.emit(ctx, audit.EventSettlementFailed, &destmodels.DestinationRecord{
		Reference:   record.Reference,
		Alias:       record.Alias,
		IdentityKey: record.IdentityKey,
		Satoshis:    record.Satoshis,
	}, record.TxID, "not recorded")
	if errors.Is(err, models.ErrReferenceSettled) {
		s.observe(metrics.OutcomeConflict)
		return ErrAlreadySettled
	}
	s.observe(metrics.OutcomePersistFailed)
	return dErrors.Wrap(err, dErrors.CodeInternal, "Failed to save transaction")
}

func (s *Service) result(txid string) *SettleResult {
	return &SettleResult{TxID: txid, Note: fmt.Sprintf("Stored for retreival at %s", s.host)}
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementOutcome(outcome)
	}
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, dest *destmodels.DestinationRecord, txid, reason string) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Emit(ctx, audit.Event{
		Action:      string(action),
		IdentityKey: dest.IdentityKey,
		Alias:       dest.Alias,
		Reference:   dest.Reference,
		TxID:        txid,
		Satoshis:    dest.Satoshis,
		Reason:      reason,
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

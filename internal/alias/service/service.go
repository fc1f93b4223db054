// Package service implements the alias registry: registering an alias for an
// identity key, listing and deleting an owner's aliases, and resolving an alias for
// the paymail endpoints.
package service

import (
	"context"
	"errors"
	"log/slog"

	"paymail-bridge/internal/alias/models"
	"paymail-bridge/internal/auth"
	"paymail-bridge/internal/keys"
	"paymail-bridge/internal/platform/metrics"
	dErrors "paymail-bridge/pkg/domain-errors"
	audit "paymail-bridge/pkg/platform/audit"
	"paymail-bridge/pkg/platform/sentinel"
	"paymail-bridge/pkg/requestcontext"
)

// Store persists alias records. Create must fail with sentinel.ErrConflict when the
// alias exists; DeleteOwned with sentinel.ErrNotFound when the caller does not own it.
type Store interface {
	Create(ctx context.Context, record *models.AliasRecord) error
	FindByAlias(ctx context.Context, alias string) (*models.AliasRecord, error)
	ListByIdentity(ctx context.Context, identityKey string) ([]*models.AliasRecord, error)
	DeleteOwned(ctx context.Context, alias, identityKey string) error
}

// Authenticator is the signature guard.
type Authenticator interface {
	Authenticate(ctx context.Context, env auth.Envelope, expected string) (auth.Authenticated, error)
}

// Crypto verifies registration proofs and derives identity-key aliases.
type Crypto interface {
	VerifyMessage(message, signature []byte, identityKey string) (bool, error)
	AddressFor(identityKey string) (string, error)
}

var (
	ErrInvalidAlias          = dErrors.New(dErrors.CodeValidation, "Invalid alias format")
	ErrInvalidIdentityKey    = dErrors.New(dErrors.CodeValidation, "Invalid identity key format")
	ErrAliasTaken            = dErrors.New(dErrors.CodeConflict, "Alias already exists")
	ErrIdentityKeyRegistered = dErrors.New(dErrors.CodeConflict, "This identity key is already registered")
	ErrAliasNotFound         = dErrors.New(dErrors.CodeNotFound, "Alias not found")
	ErrNotFoundOrForbidden   = dErrors.New(dErrors.CodeNotFound, "Alias not found or you do not have permission to delete it")
)

// RegisterCommand carries a registration request. Signature is a DER ECDSA
// signature by IdentityKey over sha256(Alias).
type RegisterCommand struct {
	Alias       string
	IdentityKey string
	Signature   []byte
	ProtocolID  *keys.Protocol
	KeyID       string
}

type RegisterResult struct {
	Alias  string
	Handle string
}

type Service struct {
	store   Store
	guard   Authenticator
	crypto  Crypto
	domain  string
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

// New builds the registry. domain is the paymail host used in handles.
func New(store Store, guard Authenticator, crypto Crypto, domain string, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("alias store is required")
	}
	if guard == nil {
		return nil, errors.New("authenticator is required")
	}
	if crypto == nil {
		return nil, errors.New("crypto provider is required")
	}
	s := &Service{
		store:  store,
		guard:  guard,
		crypto: crypto,
		domain: domain,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register claims cmd.Alias for cmd.IdentityKey after checking the proof signature.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*RegisterResult, error) {
	if !models.ValidAlias(cmd.Alias) {
		return nil, ErrInvalidAlias
	}
	valid, err := s.crypto.VerifyMessage([]byte(cmd.Alias), cmd.Signature, cmd.IdentityKey)
	if err != nil {
		if errors.Is(err, keys.ErrInvalidKey) {
			return nil, ErrInvalidIdentityKey
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify registration signature")
	}
	if !valid {
		return nil, auth.ErrInvalidSignature
	}

	record := &models.AliasRecord{
		Alias:       cmd.Alias,
		IdentityKey: cmd.IdentityKey,
		Data:        []byte(cmd.Alias),
		Signature:   cmd.Signature,
		ProtocolID:  cmd.ProtocolID,
		KeyID:       cmd.KeyID,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if err := s.create(ctx, record, ErrAliasTaken); err != nil {
		return nil, err
	}
	return &RegisterResult{Alias: record.Alias, Handle: models.Handle(record.Alias, s.domain)}, nil
}

// RegisterIdentityKey registers the base58 address of identityKey as its alias.
// A second call for the same key is a conflict.
func (s *Service) RegisterIdentityKey(ctx context.Context, identityKey string) (*RegisterResult, error) {
	if identityKey == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "Identity key is required")
	}
	address, err := s.crypto.AddressFor(identityKey)
	if err != nil {
		return nil, ErrInvalidIdentityKey
	}
	record := &models.AliasRecord{
		Alias:       address,
		IdentityKey: identityKey,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if err := s.create(ctx, record, ErrIdentityKeyRegistered); err != nil {
		return nil, err
	}
	return &RegisterResult{Alias: address, Handle: models.Handle(address, s.domain)}, nil
}

func (s *Service) create(ctx context.Context, record *models.AliasRecord, onConflict error) error {
	if err := s.store.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return onConflict
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register alias")
	}
	s.logger.InfoContext(ctx, "alias registered",
		"request_id", requestcontext.RequestID(ctx),
		"alias", record.Alias,
		"identity_key", record.IdentityKey,
	)
	if s.metrics != nil {
		s.metrics.IncrementAliasesRegistered()
	}
	s.emit(ctx, audit.EventAliasRegistered, record)
	return nil
}

// ListAliases returns the aliases owned by the authenticated identity key.
func (s *Service) ListAliases(ctx context.Context, env auth.Envelope) ([]string, error) {
	caller, err := s.guard.Authenticate(ctx, env, auth.MessageListAliases)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListByIdentity(ctx, caller.IdentityKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list aliases")
	}
	aliases := make([]string, 0, len(records))
	for _, record := range records {
		aliases = append(aliases, record.Alias)
	}
	return aliases, nil
}

// DeleteAlias removes alias when the authenticated caller owns it. Destinations and
// receipts issued under the alias are left alone.
func (s *Service) DeleteAlias(ctx context.Context, env auth.Envelope, alias string) error {
	if !models.ValidAlias(alias) {
		return ErrInvalidAlias
	}
	caller, err := s.guard.Authenticate(ctx, env, auth.DeleteAliasMessage(alias))
	if err != nil {
		return err
	}
	if err := s.store.DeleteOwned(ctx, alias, caller.IdentityKey); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return ErrNotFoundOrForbidden
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete alias")
	}
	s.logger.InfoContext(ctx, "alias deleted",
		"request_id", requestcontext.RequestID(ctx),
		"alias", alias,
		"identity_key", caller.IdentityKey,
	)
	if s.metrics != nil {
		s.metrics.IncrementAliasesDeleted()
	}
	s.emit(ctx, audit.EventAliasDeleted, &models.AliasRecord{Alias: alias, IdentityKey: caller.IdentityKey})
	return nil
}

// Resolve returns the record for alias.
func (s *Service) Resolve(ctx context.Context, alias string) (*models.AliasRecord, error) {
	record, err := s.store.FindByAlias(ctx, alias)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, ErrAliasNotFound
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve alias")
	}
	return record, nil
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, record *models.AliasRecord) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Emit(ctx, audit.Event{
		Action:      string(action),
		IdentityKey: record.IdentityKey,
		Alias:       record.Alias,
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

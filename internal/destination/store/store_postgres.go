package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"paymail-bridge/internal/destination/models"
	"paymail-bridge/internal/platform/postgres"
	"paymail-bridge/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, record *models.DestinationRecord) error {
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO destinations (
			reference, alias, identity_key, public_key, script, satoshis, key_id,
			protocol_level, protocol_name, derivation_prefix, derivation_suffix,
			sender_identity_key, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, record.Reference, record.Alias, record.IdentityKey, record.PublicKey, record.Script,
		int64(record.Satoshis), record.KeyID, record.ProtocolID.SecurityLevel, record.ProtocolID.Name,
		record.DerivationPrefix, record.DerivationSuffix, record.SenderIdentityKey, record.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("destination %q: %w", record.Reference, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert destination: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByReference(ctx context.Context, reference string) (*models.DestinationRecord, error) {
	var (
		record   models.DestinationRecord
		satoshis int64
	)
	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT reference, alias, identity_key, public_key, script, satoshis, key_id,
			protocol_level, protocol_name, derivation_prefix, derivation_suffix,
			sender_identity_key, created_at
		FROM destinations WHERE reference = $1
	`, reference).Scan(&record.Reference, &record.Alias, &record.IdentityKey, &record.PublicKey,
		&record.Script, &satoshis, &record.KeyID, &record.ProtocolID.SecurityLevel, &record.ProtocolID.Name,
		&record.DerivationPrefix, &record.DerivationSuffix, &record.SenderIdentityKey, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find destination: %w", err)
	}
	record.Satoshis = uint64(satoshis)
	return &record, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"paymail-bridge/internal/alias/models"
	"paymail-bridge/internal/keys"
	"paymail-bridge/internal/platform/postgres"
	"paymail-bridge/pkg/platform/sentinel"
)

// PostgresStore persists aliases in the aliases table. The primary key on alias is
// the uniqueness guarantee.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const aliasColumns = `alias, identity_key, data, signature, protocol_level, protocol_name, key_id, created_at`

func (s *PostgresStore) Create(ctx context.Context, record *models.AliasRecord) error {
	var level sql.NullInt16
	var name sql.NullString
	if record.ProtocolID != nil {
		level = sql.NullInt16{Int16: int16(record.ProtocolID.SecurityLevel), Valid: true}
		name = sql.NullString{String: record.ProtocolID.Name, Valid: true}
	}
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO aliases (`+aliasColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, record.Alias, record.IdentityKey, record.Data, record.Signature, level, name,
		sql.NullString{String: record.KeyID, Valid: record.KeyID != ""}, record.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("alias %q: %w", record.Alias, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert alias: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByAlias(ctx context.Context, alias string) (*models.AliasRecord, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+aliasColumns+` FROM aliases WHERE alias = $1`, alias)
	record, err := scanAlias(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find alias: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListByIdentity(ctx context.Context, identityKey string) ([]*models.AliasRecord, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+aliasColumns+` FROM aliases WHERE identity_key = $1 ORDER BY created_at, alias`, identityKey)
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}
	defer rows.Close()

	var out []*models.AliasRecord
	for rows.Next() {
		record, err := scanAlias(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aliases: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteOwned(ctx context.Context, alias, identityKey string) error {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx,
		`DELETE FROM aliases WHERE alias = $1 AND identity_key = $2`, alias, identityKey)
	if err != nil {
		return fmt.Errorf("delete alias: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete alias rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlias(row rowScanner) (*models.AliasRecord, error) {
	var (
		record models.AliasRecord
		level  sql.NullInt16
		name   sql.NullString
		keyID  sql.NullString
	)
	if err := row.Scan(&record.Alias, &record.IdentityKey, &record.Data, &record.Signature,
		&level, &name, &keyID, &record.CreatedAt); err != nil {
		return nil, err
	}
	if level.Valid && name.Valid {
		record.ProtocolID = &keys.Protocol{SecurityLevel: int(level.Int16), Name: name.String}
	}
	record.KeyID = keyID.String
	return &record, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"paymail-bridge/internal/platform/postgres"
	"paymail-bridge/internal/receipt/models"
	"paymail-bridge/pkg/platform/sentinel"
)

// PostgresStore persists records in the transactions table. txid is the primary
// key and reference is UNIQUE; seq orders records by insertion.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const receiptColumns = `txid, reference, alias, domain, satoshis, script, public_key, identity_key,
	key_id, derivation_prefix, derivation_suffix, sender_identity_key, beef, proof_kind,
	output_index, metadata, acknowledged, created_at, acknowledged_at`

// Insert writes record unless its txid or reference is already recorded. The
// conflict check and the classification run in one transaction.
func (s *PostgresStore) Insert(ctx context.Context, record *models.TransactionRecord) error {
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if record.Metadata == nil {
		metadata = []byte("{}")
	}
	return postgres.WithinTx(ctx, s.db, func(ctx context.Context) error {
		conn := postgres.Conn(ctx, s.db)
		res, err := conn.ExecContext(ctx, `
			INSERT INTO transactions (`+receiptColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
			ON CONFLICT DO NOTHING
		`, record.TxID, record.Reference, record.Alias, record.Domain, int64(record.Satoshis),
			record.Script, record.PublicKey, record.IdentityKey, record.KeyID, record.DerivationPrefix,
			record.DerivationSuffix, record.SenderIdentityKey, record.Beef, string(record.ProofKind),
			int64(record.OutputIndex), metadata, record.Acknowledged, record.CreatedAt, record.AcknowledgedAt)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert transaction rows affected: %w", err)
		}
		if n == 1 {
			return nil
		}
		var exists bool
		if err := conn.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM transactions WHERE txid = $1)`, record.TxID).Scan(&exists); err != nil {
			return fmt.Errorf("classify transaction conflict: %w", err)
		}
		if exists {
			return models.ErrTxIDExists
		}
		return models.ErrReferenceSettled
	})
}

func (s *PostgresStore) FindByTxID(ctx context.Context, txid string) (*models.TransactionRecord, error) {
	return s.findOne(ctx, `SELECT `+receiptColumns+` FROM transactions WHERE txid = $1`, txid)
}

func (s *PostgresStore) FindByReference(ctx context.Context, reference string) (*models.TransactionRecord, error) {
	return s.findOne(ctx, `SELECT `+receiptColumns+` FROM transactions WHERE reference = $1`, reference)
}

func (s *PostgresStore) findOne(ctx context.Context, query, arg string) (*models.TransactionRecord, error) {
	record, err := scanReceipt(postgres.Conn(ctx, s.db).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListByIdentity(ctx context.Context, identityKey string, unacknowledgedOnly bool) ([]*models.TransactionRecord, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT `+receiptColumns+` FROM transactions
		WHERE identity_key = $1 AND (NOT $2 OR NOT acknowledged)
		ORDER BY seq DESC
	`, identityKey, unacknowledgedOnly)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.TransactionRecord
	for rows.Next() {
		record, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// Acknowledge flips acknowledged for the listed txids that are still pending.
func (s *PostgresStore) Acknowledge(ctx context.Context, txids []string, at time.Time) (int, error) {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE transactions SET acknowledged = true, acknowledged_at = $2
		WHERE txid = ANY($1) AND NOT acknowledged
	`, pq.Array(txids), at)
	if err != nil {
		return 0, fmt.Errorf("acknowledge transactions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("acknowledge rows affected: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (*models.TransactionRecord, error) {
	var (
		record      models.TransactionRecord
		satoshis    int64
		outputIndex int64
		proofKind   string
		metadata    []byte
		ackAt       sql.NullTime
	)
	err := row.Scan(&record.TxID, &record.Reference, &record.Alias, &record.Domain, &satoshis,
		&record.Script, &record.PublicKey, &record.IdentityKey, &record.KeyID, &record.DerivationPrefix,
		&record.DerivationSuffix, &record.SenderIdentityKey, &record.Beef, &proofKind, &outputIndex,
		&metadata, &record.Acknowledged, &record.CreatedAt, &ackAt)
	if err != nil {
		return nil, err
	}
	record.Satoshis = uint64(satoshis)
	record.OutputIndex = uint32(outputIndex)
	record.ProofKind = models.ProofKind(proofKind)
	if len(metadata) > 0 && string(metadata) != "{}" {
		if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if ackAt.Valid {
		at := ackAt.Time
		record.AcknowledgedAt = &at
	}
	return &record, nil
}

package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"paymail-bridge/internal/receipt/models"
	"paymail-bridge/internal/storage"
	"paymail-bridge/pkg/platform/sentinel"
)

// Key layout:
//
//	rcpt/tx/<txid>                   -> TransactionRecord JSON
//	rcpt/ref/<reference>             -> txid
//	rcpt/idx/<identityKey>/<seq BE8> -> txid
const (
	txPrefix  = "rcpt/tx"
	refPrefix = "rcpt/ref"
	idxPrefix = "rcpt/idx"
)

var seqKey = []byte("rcpt/seq")

type BadgerStore struct {
	db  *storage.BadgerDB
	seq *badger.Sequence
}

func NewBadger(db *storage.BadgerDB) (*BadgerStore, error) {
	seq, err := db.Sequence(seqKey)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

// Close returns unused sequence numbers.
func (s *BadgerStore) Close() error {
	return s.seq.Release()
}

func (s *BadgerStore) Insert(_ context.Context, record *models.TransactionRecord) error {
	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next receipt sequence: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if exists, err := storage.Has(txn, storage.Key(txPrefix, record.TxID)); err != nil {
			return err
		} else if exists {
			return models.ErrTxIDExists
		}
		if exists, err := storage.Has(txn, storage.Key(refPrefix, record.Reference)); err != nil {
			return err
		} else if exists {
			return models.ErrReferenceSettled
		}
		if err := storage.SetJSON(txn, storage.Key(txPrefix, record.TxID), record); err != nil {
			return err
		}
		if err := txn.Set(storage.Key(refPrefix, record.Reference), []byte(record.TxID)); err != nil {
			return err
		}
		return txn.Set(indexKey(record.IdentityKey, n), []byte(record.TxID))
	})
}

func (s *BadgerStore) FindByTxID(_ context.Context, txid string) (*models.TransactionRecord, error) {
	var record models.TransactionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return storage.GetJSON(txn, storage.Key(txPrefix, txid), &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *BadgerStore) FindByReference(_ context.Context, reference string) (*models.TransactionRecord, error) {
	var record models.TransactionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storage.Key(refPrefix, reference))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("badger get: %w", err)
		}
		txid, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return storage.GetJSON(txn, storage.Key(txPrefix, string(txid)), &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *BadgerStore) ListByIdentity(_ context.Context, identityKey string, unacknowledgedOnly bool) ([]*models.TransactionRecord, error) {
	var out []*models.TransactionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return storage.ForEach(txn, identityPrefix(identityKey), true, func(_, txid []byte) error {
			var record models.TransactionRecord
			if err := storage.GetJSON(txn, storage.Key(txPrefix, string(txid)), &record); err != nil {
				return fmt.Errorf("load receipt %s: %w", txid, err)
			}
			if unacknowledgedOnly && record.Acknowledged {
				return nil
			}
			out = append(out, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Acknowledge(_ context.Context, txids []string, at time.Time) (int, error) {
	var changed int
	err := s.db.Update(func(txn *badger.Txn) error {
		changed = 0
		for _, txid := range txids {
			key := storage.Key(txPrefix, txid)
			var record models.TransactionRecord
			err := storage.GetJSON(txn, key, &record)
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if record.Acknowledged {
				continue
			}
			ackAt := at
			record.Acknowledged = true
			record.AcknowledgedAt = &ackAt
			if err := storage.SetJSON(txn, key, &record); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	return changed, err
}

func identityPrefix(identityKey string) []byte {
	return append(storage.Key(idxPrefix, identityKey), '/')
}

func indexKey(identityKey string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(identityPrefix(identityKey), seq)
}

package store

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"paymail-bridge/internal/destination/models"
	"paymail-bridge/internal/storage"
	"paymail-bridge/pkg/platform/sentinel"
)

const destinationPrefix = "dest"

// BadgerStore keeps destinations under dest/<reference>.
type BadgerStore struct {
	db *storage.BadgerDB
}

func NewBadger(db *storage.BadgerDB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) Create(_ context.Context, record *models.DestinationRecord) error {
	key := storage.Key(destinationPrefix, record.Reference)
	return s.db.Update(func(txn *badger.Txn) error {
		exists, err := storage.Has(txn, key)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("destination %q: %w", record.Reference, sentinel.ErrConflict)
		}
		return storage.SetJSON(txn, key, record)
	})
}

func (s *BadgerStore) FindByReference(_ context.Context, reference string) (*models.DestinationRecord, error) {
	var record models.DestinationRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return storage.GetJSON(txn, storage.Key(destinationPrefix, reference), &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

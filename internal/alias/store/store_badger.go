package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"paymail-bridge/internal/alias/models"
	"paymail-bridge/internal/storage"
	"paymail-bridge/pkg/platform/sentinel"
)

// Key layout:
//
//	alias/<alias>                     -> AliasRecord JSON
//	alias-owner/<identityKey>/<alias> -> empty
const (
	aliasPrefix = "alias"
	ownerPrefix = "alias-owner"
)

// BadgerStore persists aliases in Badger. Create reads and writes the alias key in
// one transaction; a concurrent create of the same alias fails with a Badger
// conflict, is retried, and then sees the alias taken.
type BadgerStore struct {
	db *storage.BadgerDB
}

func NewBadger(db *storage.BadgerDB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) Create(_ context.Context, record *models.AliasRecord) error {
	return s.db.Update(func(txn *badger.Txn) error {
		exists, err := storage.Has(txn, storage.Key(aliasPrefix, record.Alias))
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("alias %q: %w", record.Alias, sentinel.ErrConflict)
		}
		if err := storage.SetJSON(txn, storage.Key(aliasPrefix, record.Alias), record); err != nil {
			return err
		}
		return txn.Set(storage.Key(ownerPrefix, record.IdentityKey, record.Alias), nil)
	})
}

func (s *BadgerStore) FindByAlias(_ context.Context, alias string) (*models.AliasRecord, error) {
	var record models.AliasRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return storage.GetJSON(txn, storage.Key(aliasPrefix, alias), &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *BadgerStore) ListByIdentity(_ context.Context, identityKey string) ([]*models.AliasRecord, error) {
	var out []*models.AliasRecord
	prefix := append(storage.Key(ownerPrefix, identityKey), '/')
	err := s.db.View(func(txn *badger.Txn) error {
		return storage.ForEach(txn, prefix, false, func(key, _ []byte) error {
			alias := string(key[len(prefix):])
			var record models.AliasRecord
			if err := storage.GetJSON(txn, storage.Key(aliasPrefix, alias), &record); err != nil {
				return fmt.Errorf("load alias %q: %w", alias, err)
			}
			out = append(out, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortByCreation(out)
	return out, nil
}

func (s *BadgerStore) DeleteOwned(_ context.Context, alias, identityKey string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(storage.Key(aliasPrefix, alias))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("badger get: %w", err)
		}
		var record models.AliasRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		}); err != nil {
			return err
		}
		if record.IdentityKey != identityKey {
			return sentinel.ErrNotFound
		}
		if err := txn.Delete(storage.Key(aliasPrefix, alias)); err != nil {
			return err
		}
		return txn.Delete(storage.Key(ownerPrefix, identityKey, alias))
	})
}

// Package storage wraps Badger as the embedded document store behind the
// STORE_DRIVER=badger stores. Values are JSON; uniqueness is checked and written in
// one serializable transaction.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"paymail-bridge/pkg/platform/sentinel"
)

// maxConflictRetries bounds how often Update re-runs a transaction that lost a
// write-write race.
const maxConflictRetries = 5

// BadgerDB is a Badger database shared by the alias, destination and receipt stores.
type BadgerDB struct {
	db *badger.DB
}

// NewBadger opens (or creates) a database at path.
func NewBadger(path string) (*BadgerDB, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "Cannot acquire directory lock") ||
			strings.Contains(errMsg, "resource temporarily unavailable") {
			return nil, fmt.Errorf("database at %s is locked by another process (is another bridge instance running?): %w", path, err)
		}
		return nil, fmt.Errorf("open database at %s: %w", path, err)
	}
	return &BadgerDB{db: db}, nil
}

// NewInMemoryBadger opens a Badger database that lives only in memory. Tests use it.
func NewInMemoryBadger() (*BadgerDB, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	return &BadgerDB{db: db}, nil
}

// View runs fn in a read-only transaction.
func (b *BadgerDB) View(fn func(txn *badger.Txn) error) error {
	return b.db.View(fn)
}

// Update runs fn in a read-write transaction, retrying when a concurrent transaction
// committed a conflicting write first. fn must be safe to run more than once.
func (b *BadgerDB) Update(fn func(txn *badger.Txn) error) error {
	var err error
	for range maxConflictRetries {
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("badger update: %w", err)
}

// Sequence returns a monotonically increasing counter persisted under key.
func (b *BadgerDB) Sequence(key []byte) (*badger.Sequence, error) {
	seq, err := b.db.GetSequence(key, 100)
	if err != nil {
		return nil, fmt.Errorf("badger sequence: %w", err)
	}
	return seq, nil
}

// Close closes the database.
func (b *BadgerDB) Close() error {
	return b.db.Close()
}

// GetJSON decodes the value at key into v. A missing key is sentinel.ErrNotFound.
func GetJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("badger get: %w", err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// SetJSON encodes v at key.
func SetJSON(txn *badger.Txn, key []byte, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	if err := txn.Set(key, val); err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

// Has checks if a key exists.
func Has(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("badger has: %w", err)
	}
	return true, nil
}

// ForEach iterates over all keys with the given prefix, in key order or reversed.
func ForEach(txn *badger.Txn, prefix []byte, reverse bool, fn func(key, value []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.Reverse = reverse
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := prefix
	if reverse {
		seek = append(append([]byte{}, prefix...), 0xFF)
	}
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		err := item.Value(func(val []byte) error {
			return fn(key, val)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Key joins parts with '/' into a key.
func Key(parts ...string) []byte {
	return []byte(strings.Join(parts, "/"))
}

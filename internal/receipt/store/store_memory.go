package store

import (
	"context"
	"maps"
	"sync"
	"time"

	"paymail-bridge/internal/receipt/models"
	"paymail-bridge/pkg/platform/sentinel"
)

// InMemoryStore keeps records in insertion order with txid and reference indexes.
type InMemoryStore struct {
	mu          sync.RWMutex
	records     []*models.TransactionRecord
	byTxID      map[string]*models.TransactionRecord
	byReference map[string]*models.TransactionRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byTxID:      make(map[string]*models.TransactionRecord),
		byReference: make(map[string]*models.TransactionRecord),
	}
}

func (s *InMemoryStore) Insert(_ context.Context, record *models.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byTxID[record.TxID]; ok {
		return models.ErrTxIDExists
	}
	if _, ok := s.byReference[record.Reference]; ok {
		return models.ErrReferenceSettled
	}
	stored := clone(record)
	s.records = append(s.records, stored)
	s.byTxID[stored.TxID] = stored
	s.byReference[stored.Reference] = stored
	return nil
}

func (s *InMemoryStore) FindByTxID(_ context.Context, txid string) (*models.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.byTxID[txid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(record), nil
}

func (s *InMemoryStore) FindByReference(_ context.Context, reference string) (*models.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.byReference[reference]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(record), nil
}

// ListByIdentity returns identityKey's records newest first.
func (s *InMemoryStore) ListByIdentity(_ context.Context, identityKey string, unacknowledgedOnly bool) ([]*models.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.TransactionRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		record := s.records[i]
		if record.IdentityKey != identityKey {
			continue
		}
		if unacknowledgedOnly && record.Acknowledged {
			continue
		}
		out = append(out, clone(record))
	}
	return out, nil
}

// Acknowledge marks the unacknowledged records among txids and returns how many
// changed.
func (s *InMemoryStore) Acknowledge(_ context.Context, txids []string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for _, txid := range txids {
		record, ok := s.byTxID[txid]
		if !ok || record.Acknowledged {
			continue
		}
		ackAt := at
		record.Acknowledged = true
		record.AcknowledgedAt = &ackAt
		changed++
	}
	return changed, nil
}

func clone(record *models.TransactionRecord) *models.TransactionRecord {
	c := *record
	c.Beef = append([]byte(nil), record.Beef...)
	c.Metadata = maps.Clone(record.Metadata)
	if record.AcknowledgedAt != nil {
		at := *record.AcknowledgedAt
		c.AcknowledgedAt = &at
	}
	return &c
}

package store

import (
	"context"
	"fmt"
	"sync"

	"paymail-bridge/internal/destination/models"
	"paymail-bridge/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu           sync.RWMutex
	destinations map[string]*models.DestinationRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{destinations: make(map[string]*models.DestinationRecord)}
}

func (s *InMemoryStore) Create(_ context.Context, record *models.DestinationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.destinations[record.Reference]; exists {
		return fmt.Errorf("destination %q: %w", record.Reference, sentinel.ErrConflict)
	}
	stored := *record
	s.destinations[record.Reference] = &stored
	return nil
}

func (s *InMemoryStore) FindByReference(_ context.Context, reference string) (*models.DestinationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.destinations[reference]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	found := *record
	return &found, nil
}

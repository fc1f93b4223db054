package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"paymail-bridge/internal/alias/models"
	"paymail-bridge/pkg/platform/sentinel"
)

// InMemoryStore keeps aliases in a map. Check and insert happen under one lock, so
// concurrent registrations of the same alias admit exactly one.
type InMemoryStore struct {
	mu      sync.RWMutex
	aliases map[string]*models.AliasRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{aliases: make(map[string]*models.AliasRecord)}
}

func (s *InMemoryStore) Create(_ context.Context, record *models.AliasRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.aliases[record.Alias]; exists {
		return fmt.Errorf("alias %q: %w", record.Alias, sentinel.ErrConflict)
	}
	stored := *record
	s.aliases[record.Alias] = &stored
	return nil
}

func (s *InMemoryStore) FindByAlias(_ context.Context, alias string) (*models.AliasRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.aliases[alias]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	found := *record
	return &found, nil
}

func (s *InMemoryStore) ListByIdentity(_ context.Context, identityKey string) ([]*models.AliasRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AliasRecord
	for _, record := range s.aliases {
		if record.IdentityKey == identityKey {
			r := *record
			out = append(out, &r)
		}
	}
	sortByCreation(out)
	return out, nil
}

// DeleteOwned removes alias only when identityKey owns it. A missing alias and a
// foreign one are the same ErrNotFound.
func (s *InMemoryStore) DeleteOwned(_ context.Context, alias, identityKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.aliases[alias]
	if !ok || record.IdentityKey != identityKey {
		return sentinel.ErrNotFound
	}
	delete(s.aliases, alias)
	return nil
}

func sortByCreation(records []*models.AliasRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].Alias < records[j].Alias
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}

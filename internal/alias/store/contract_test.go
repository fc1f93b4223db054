package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paymail-bridge/internal/alias/models"
	"paymail-bridge/internal/keys"
	"paymail-bridge/pkg/platform/sentinel"
)

type aliasStore interface {
	Create(ctx context.Context, record *models.AliasRecord) error
	FindByAlias(ctx context.Context, alias string) (*models.AliasRecord, error)
	ListByIdentity(ctx context.Context, identityKey string) ([]*models.AliasRecord, error)
	DeleteOwned(ctx context.Context, alias, identityKey string) error
}

// runStoreContract exercises the behaviour every alias store shares. newStore must
// return an empty store.
func runStoreContract(t *testing.T, newStore func(t *testing.T) aliasStore) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("create then find", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		proto := keys.Protocol{SecurityLevel: 2, Name: "alias registration"}
		record := &models.AliasRecord{
			Alias:       "alice",
			IdentityKey: "02aa",
			Signature:   []byte{0x30, 0x44},
			ProtocolID:  &proto,
			KeyID:       "1",
			CreatedAt:   base,
		}
		require.NoError(t, s.Create(ctx, record))

		found, err := s.FindByAlias(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "02aa", found.IdentityKey)
		assert.Equal(t, []byte{0x30, 0x44}, found.Signature)
		require.NotNil(t, found.ProtocolID)
		assert.Equal(t, proto, *found.ProtocolID)
		assert.True(t, base.Equal(found.CreatedAt))
	})

	t.Run("unknown alias is not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindByAlias(context.Background(), "nobody")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("duplicate alias conflicts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, &models.AliasRecord{Alias: "alice", IdentityKey: "02aa", CreatedAt: base}))

		err := s.Create(ctx, &models.AliasRecord{Alias: "alice", IdentityKey: "02bb", CreatedAt: base})
		assert.ErrorIs(t, err, sentinel.ErrConflict)

		found, err := s.FindByAlias(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "02aa", found.IdentityKey, "first registration wins")
	})

	t.Run("concurrent registration admits one", func(t *testing.T) {
		s := newStore(t)
		const goroutines = 16
		var wg sync.WaitGroup
		var wins atomic.Int32
		for i := range goroutines {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Create(context.Background(), &models.AliasRecord{
					Alias:       "contested",
					IdentityKey: string(rune('a' + i)),
					CreatedAt:   base,
				})
				if err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("list returns only the owner's aliases in creation order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, &models.AliasRecord{Alias: "second", IdentityKey: "02aa", CreatedAt: base.Add(time.Minute)}))
		require.NoError(t, s.Create(ctx, &models.AliasRecord{Alias: "first", IdentityKey: "02aa", CreatedAt: base}))
		require.NoError(t, s.Create(ctx, &models.AliasRecord{Alias: "other", IdentityKey: "02bb", CreatedAt: base}))

		records, err := s.ListByIdentity(ctx, "02aa")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "first", records[0].Alias)
		assert.Equal(t, "second", records[1].Alias)

		none, err := s.ListByIdentity(ctx, "02cc")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("delete is scoped to the owner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, &models.AliasRecord{Alias: "alice", IdentityKey: "02aa", CreatedAt: base}))

		assert.ErrorIs(t, s.DeleteOwned(ctx, "alice", "02bb"), sentinel.ErrNotFound)
		assert.ErrorIs(t, s.DeleteOwned(ctx, "missing", "02aa"), sentinel.ErrNotFound)

		_, err := s.FindByAlias(ctx, "alice")
		require.NoError(t, err, "foreign delete must not remove the alias")

		require.NoError(t, s.DeleteOwned(ctx, "alice", "02aa"))
		_, err = s.FindByAlias(ctx, "alice")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		records, err := s.ListByIdentity(ctx, "02aa")
		require.NoError(t, err)
		assert.Empty(t, records)

		require.NoError(t, s.Create(ctx, &models.AliasRecord{Alias: "alice", IdentityKey: "02bb", CreatedAt: base}),
			"a deleted alias can be registered again")
	})
}

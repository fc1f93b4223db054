package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"paymail-bridge/internal/storage"
)

func TestBadgerStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) aliasStore {
		db, err := storage.NewInMemoryBadger()
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return NewBadger(db)
	})
}

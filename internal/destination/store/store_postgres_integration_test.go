//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"paymail-bridge/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)

	runStoreContract(t, func(t *testing.T) destinationStore {
		require.NoError(t, pg.TruncateTables(context.Background(), "destinations"))
		return NewPostgres(pg.DB)
	})
}

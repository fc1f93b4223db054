package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "paymail-bridge/pkg/platform/audit"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	for _, e := range []audit.Event{
		{Action: "alias_registered", IdentityKey: "a"},
		{Action: "destination_issued", IdentityKey: "b"},
		{Action: "settlement_recorded", IdentityKey: "a"},
	} {
		require.NoError(t, store.Append(ctx, e))
	}

	byA, err := store.ListByIdentity(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, byA, 2)

	recent, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "settlement_recorded", recent[0].Action)
	assert.Equal(t, "destination_issued", recent[1].Action)

	store.Clear()
	all, err := store.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "paymail-bridge/pkg/platform/audit"
	"paymail-bridge/pkg/platform/audit/store/memory"
)

const testIdentity = "02a1633cafcc01ebfb6d78e39f687a1f0995c62fc95f51ead10a02ee0be551b5dc"

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		IdentityKey: testIdentity,
		Action:      string(audit.EventAliasRegistered),
		Alias:       "alice",
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), testIdentity)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventAliasRegistered), events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.NotEmpty(t, events[0].ID)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		IdentityKey: testIdentity,
		Action:      string(audit.EventDestinationIssued),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		events, err := pub.List(context.Background(), testIdentity)
		return err == nil && len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			IdentityKey: testIdentity,
			Action:      string(audit.EventSettlementRecorded),
		})
		require.NoError(t, err)
	}

	pub.Close()

	events, err := store.ListByIdentity(context.Background(), testIdentity)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_EmitAfterCloseWritesThrough(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	pub.Close()
	pub.Close()

	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		IdentityKey: testIdentity,
		Action:      string(audit.EventAliasDeleted),
	}))

	events, err := store.ListByIdentity(context.Background(), testIdentity)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestPublisher_ConcurrentEmit(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1000))

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pub.Emit(context.Background(), audit.Event{
				IdentityKey: testIdentity,
				Action:      string(audit.EventAuthFailed),
			})
		}()
	}
	wg.Wait()
	pub.Close()

	events, err := store.ListByIdentity(context.Background(), testIdentity)
	require.NoError(t, err)
	assert.Len(t, events, 50)
	assert.Zero(t, pub.Dropped())
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	err := pub.Emit(context.Background(), audit.Event{
		IdentityKey: testIdentity,
		Action:      string(audit.EventAliasRegistered),
		Timestamp:   customTime,
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), testIdentity)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, customTime, events[0].Timestamp)
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	before := time.Now()
	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		IdentityKey: testIdentity,
		Action:      string(audit.EventReceiptsAcknowledged),
	}))
	after := time.Now()

	events, err := pub.List(context.Background(), testIdentity)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.Before(before))
	assert.False(t, events[0].Timestamp.After(after))
	assert.Equal(t, audit.CategoryOperations, events[0].Category)
}

func TestRingBuffer_DropsOldest(t *testing.T) {
	b := NewRingBuffer(3)
	for _, action := range []string{"a", "b", "c", "d", "e"} {
		b.Enqueue(audit.Event{Action: action})
	}

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, int64(2), b.Dropped())

	batch := b.DequeueBatch(10)
	require.Len(t, batch, 3)
	assert.Equal(t, "c", batch[0].Action)
	assert.Equal(t, "e", batch[2].Action)
	assert.Nil(t, b.DequeueBatch(1))
}

func TestPublisher_SamplesOperationsOnly(t *testing.T) {
	store := memory.NewInMemoryStore()
	sampler := NewSampler(0)
	sampler.SetRate(audit.EventReceiptsCollected, 1)
	pub := NewPublisher(store, WithSampler(sampler))
	ctx := context.Background()

	for _, action := range []audit.AuditEvent{
		audit.EventDestinationIssued,
		audit.EventReceiptsCollected,
		audit.EventAuthFailed,
		audit.EventSettlementRecorded,
	} {
		require.NoError(t, pub.Emit(ctx, audit.Event{IdentityKey: testIdentity, Action: string(action)}))
	}

	events, err := pub.List(ctx, testIdentity)
	require.NoError(t, err)
	var actions []string
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	assert.ElementsMatch(t, []string{
		string(audit.EventReceiptsCollected),
		string(audit.EventAuthFailed),
		string(audit.EventSettlementRecorded),
	}, actions)
}

func TestSampler_Rate(t *testing.T) {
	s := NewSampler(0.5)
	rolls := []float64{0.2, 0.7}
	s.roll = func() float64 {
		r := rolls[0]
		rolls = rolls[1:]
		return r
	}
	op := audit.Event{Action: string(audit.EventDestinationIssued), Category: audit.CategoryOperations}
	assert.True(t, s.Keep(op))
	assert.False(t, s.Keep(op))

	assert.Equal(t, 1.0, clamp(3))
	assert.Equal(t, 0.0, clamp(-1))
}

package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paymail-bridge/internal/receipt/models"
	"paymail-bridge/pkg/platform/sentinel"
)

type receiptStore interface {
	Insert(ctx context.Context, record *models.TransactionRecord) error
	FindByTxID(ctx context.Context, txid string) (*models.TransactionRecord, error)
	FindByReference(ctx context.Context, reference string) (*models.TransactionRecord, error)
	ListByIdentity(ctx context.Context, identityKey string, unacknowledgedOnly bool) ([]*models.TransactionRecord, error)
	Acknowledge(ctx context.Context, txids []string, at time.Time) (int, error)
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleReceipt(txid, reference, identityKey string) *models.TransactionRecord {
	return &models.TransactionRecord{
		TxID:              txid,
		Reference:         reference,
		Alias:             "alice",
		Domain:            "bridge.example",
		Satoshis:          5000,
		Script:            "76a914000000000000000000000000000000000000000088ac",
		PublicKey:         "03bb",
		IdentityKey:       identityKey,
		KeyID:             reference,
		DerivationPrefix:  "YWxpY2U=",
		DerivationSuffix:  "MjAyNg==",
		SenderIdentityKey: "0279be",
		Beef:              []byte{0x01, 0x00, 0xbe, 0xef},
		ProofKind:         models.ProofBEEF,
		OutputIndex:       1,
		Metadata:          map[string]any{"note": "coffee"},
		CreatedAt:         base,
	}
}

func runStoreContract(t *testing.T, newStore func(t *testing.T) receiptStore) {
	t.Run("insert then find by txid and reference", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		want := sampleReceipt("tx1", "ref1", "02aa")
		require.NoError(t, s.Insert(ctx, want))

		got, err := s.FindByTxID(ctx, "tx1")
		require.NoError(t, err)
		assert.Equal(t, want.Beef, got.Beef)
		assert.Equal(t, want.Metadata, got.Metadata)
		assert.Equal(t, uint32(1), got.OutputIndex)
		assert.Equal(t, models.ProofBEEF, got.ProofKind)
		assert.False(t, got.Acknowledged)
		assert.Nil(t, got.AcknowledgedAt)

		byRef, err := s.FindByReference(ctx, "ref1")
		require.NoError(t, err)
		assert.Equal(t, "tx1", byRef.TxID)

		_, err = s.FindByTxID(ctx, "missing")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		_, err = s.FindByReference(ctx, "missing")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("returned records do not alias stored state", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		in := sampleReceipt("tx1", "ref1", "02aa")
		require.NoError(t, s.Insert(ctx, in))
		in.Metadata["note"] = "changed after insert"

		got, err := s.FindByTxID(ctx, "tx1")
		require.NoError(t, err)
		got.Metadata["note"] = "changed by caller"
		got.Metadata["extra"] = true
		got.Beef[0] = 0xff

		again, err := s.FindByTxID(ctx, "tx1")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"note": "coffee"}, again.Metadata)
		assert.Equal(t, byte(0x01), again.Beef[0])

		listed, err := s.ListByIdentity(ctx, "02aa", false)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, "coffee", listed[0].Metadata["note"])
	})

	t.Run("one record per txid and per reference", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, sampleReceipt("tx1", "ref1", "02aa")))

		err := s.Insert(ctx, sampleReceipt("tx1", "ref2", "02aa"))
		assert.ErrorIs(t, err, models.ErrTxIDExists)
		assert.ErrorIs(t, err, sentinel.ErrConflict)

		err = s.Insert(ctx, sampleReceipt("tx2", "ref1", "02aa"))
		assert.ErrorIs(t, err, models.ErrReferenceSettled)
	})

	t.Run("concurrent inserts of one txid record once", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		var wins atomic.Int32
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.Insert(context.Background(), sampleReceipt("tx1", "ref1", "02aa")); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("list is newest first and filters acknowledged", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, sampleReceipt("tx1", "ref1", "02aa")))
		require.NoError(t, s.Insert(ctx, sampleReceipt("tx2", "ref2", "02bb")))
		require.NoError(t, s.Insert(ctx, sampleReceipt("tx3", "ref3", "02aa")))

		all, err := s.ListByIdentity(ctx, "02aa", false)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "tx3", all[0].TxID)
		assert.Equal(t, "tx1", all[1].TxID)

		n, err := s.Acknowledge(ctx, []string{"tx3"}, base.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		pending, err := s.ListByIdentity(ctx, "02aa", true)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "tx1", pending[0].TxID)

		all, err = s.ListByIdentity(ctx, "02aa", false)
		require.NoError(t, err)
		assert.Len(t, all, 2, "acknowledged records stay listed in history")
	})

	t.Run("acknowledge is idempotent and ignores unknown txids", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, sampleReceipt("tx1", "ref1", "02aa")))

		first := base.Add(time.Hour)
		n, err := s.Acknowledge(ctx, []string{"tx1", "unknown"}, first)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = s.Acknowledge(ctx, []string{"tx1"}, first.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		got, err := s.FindByTxID(ctx, "tx1")
		require.NoError(t, err)
		assert.True(t, got.Acknowledged)
		require.NotNil(t, got.AcknowledgedAt)
		assert.True(t, first.Equal(*got.AcknowledgedAt), "first acknowledgement time is kept")
	})
}

func TestInMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) receiptStore {
		return NewInMemoryStore()
	})
}

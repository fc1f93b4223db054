package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paymail-bridge/internal/chain/chaintest"
	"paymail-bridge/pkg/platform/sentinel"
)

// gatedChain serves one raw transaction, holding every fetch until release is closed.
type gatedChain struct {
	raw     []byte
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
	once    sync.Once
}

func (c *gatedChain) BEEF(context.Context, string) ([]byte, error) {
	return nil, sentinel.ErrNotFound
}

func (c *gatedChain) RawTx(ctx context.Context, _ string) ([]byte, error) {
	c.calls.Add(1)
	c.once.Do(func() { close(c.started) })
	select {
	case <-c.release:
		return c.raw, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *gatedChain) MerklePath(context.Context, string) (*transaction.MerklePath, error) {
	return nil, sentinel.ErrNotFound
}

func TestSourceTxSharedFetchOutlivesFirstCaller(t *testing.T) {
	parent := chaintest.Funding(t, 10000, 7)
	chain := &gatedChain{raw: parent.Bytes(), started: make(chan struct{}), release: make(chan struct{})}
	s := &Service{chain: chain, timeout: 5 * time.Second}
	txid := parent.TxID().String()

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.sourceTx(firstCtx, txid)
		firstErr <- err
	}()
	<-chain.started

	type result struct {
		tx  *transaction.Transaction
		err error
	}
	second := make(chan result, 1)
	go func() {
		tx, err := s.sourceTx(context.Background(), txid)
		second <- result{tx, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(chain.release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, txid, got.tx.TxID().String())
	assert.Equal(t, int32(1), chain.calls.Load(), "both callers share one fetch")
}

func TestSourceTxFetchIsBounded(t *testing.T) {
	parent := chaintest.Funding(t, 10000, 8)
	chain := &gatedChain{raw: parent.Bytes(), started: make(chan struct{}), release: make(chan struct{})}
	s := &Service{chain: chain, timeout: 20 * time.Millisecond}

	_, err := s.sourceTx(context.Background(), parent.TxID().String())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

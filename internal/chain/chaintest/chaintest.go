// Package chaintest builds transactions and an in-memory network for tests.
package chaintest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"testing"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/stretchr/testify/require"

	"paymail-bridge/pkg/platform/sentinel"
)

// changeScript is an arbitrary OP_RETURN output used for change and funding.
const changeScript = "006a0474657374"

// Output builds an output paying sats to the hex locking script.
func Output(t *testing.T, scriptHex string, sats uint64) *transaction.TransactionOutput {
	t.Helper()
	s, err := script.NewFromHex(scriptHex)
	require.NoError(t, err)
	return &transaction.TransactionOutput{Satoshis: sats, LockingScript: s}
}

// Funding returns a transaction with one output of sats that spends a made-up outpoint.
// seed keeps funding transactions distinct.
func Funding(t *testing.T, sats uint64, seed byte) *transaction.Transaction {
	t.Helper()
	prev := chainhash.Hash{seed, 0xfe}
	return &transaction.Transaction{
		Version: 1,
		Inputs: []*transaction.TransactionInput{{
			SourceTXID:       &prev,
			SourceTxOutIndex: 0,
			UnlockingScript:  &script.Script{},
			SequenceNumber:   0xffffffff,
		}},
		Outputs: []*transaction.TransactionOutput{Output(t, changeScript, sats)},
	}
}

// Pay spends output 0 of parent, paying sats to scriptHex plus a change output.
// The parent is linked as the input's source transaction.
func Pay(t *testing.T, parent *transaction.Transaction, scriptHex string, sats uint64) *transaction.Transaction {
	t.Helper()
	tx := &transaction.Transaction{
		Version: 1,
		Inputs: []*transaction.TransactionInput{{
			SourceTXID:        parent.TxID(),
			SourceTxOutIndex:  0,
			SourceTransaction: parent,
			UnlockingScript:   &script.Script{},
			SequenceNumber:    0xffffffff,
		}},
		Outputs: []*transaction.TransactionOutput{
			Output(t, changeScript, 1),
			Output(t, scriptHex, sats),
		},
	}
	return tx
}

// Strip returns tx reparsed from its raw bytes, without source transactions or proofs.
func Strip(t *testing.T, tx *transaction.Transaction) *transaction.Transaction {
	t.Helper()
	out, err := transaction.NewTransactionFromBytes(tx.Bytes())
	require.NoError(t, err)
	return out
}

// MerkleParent hashes two nodes given in internal byte order.
func MerkleParent(left, right chainhash.Hash) chainhash.Hash {
	first := sha256.Sum256(append(left[:], right[:]...))
	return chainhash.Hash(sha256.Sum256(first[:]))
}

// Network is an in-memory stand-in for the broadcaster and the chain-data service.
type Network struct {
	mu         sync.Mutex
	txs        map[string]*transaction.Transaction
	paths      map[string]*transaction.MerklePath
	roots      map[uint32]chainhash.Hash
	beefs      map[string][]byte
	broadcasts []string
	height     uint32

	// BroadcastErr and FetchErr make the corresponding calls fail when set.
	BroadcastErr error
	FetchErr     error
}

func NewNetwork() *Network {
	return &Network{
		txs:    make(map[string]*transaction.Transaction),
		paths:  make(map[string]*transaction.MerklePath),
		roots:  make(map[uint32]chainhash.Hash),
		beefs:  make(map[string][]byte),
		height: 800000,
	}
}

// Mine confirms tx in a new two-transaction block and attaches its merkle path.
func (n *Network) Mine(t *testing.T, tx *transaction.Transaction) *transaction.MerklePath {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.height++
	txid := tx.TxID()
	filler := chainhash.Hash{0xaa, byte(n.height)}
	path := transaction.NewMerklePath(n.height, [][]*transaction.PathElement{{
		{Offset: 0, Hash: txid, Txid: ptr(true)},
		{Offset: 1, Hash: &filler},
	}})
	n.roots[n.height] = MerkleParent(*txid, filler)
	n.paths[txid.String()] = path
	n.txs[txid.String()] = tx
	tx.MerklePath = path
	return path
}

// Forget drops the block root recorded for tx, so proofs for it stop verifying.
func (n *Network) Forget(tx *transaction.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if path, ok := n.paths[tx.TxID().String()]; ok {
		delete(n.roots, path.BlockHeight)
	}
}

// ServeBEEF makes BEEF return beef for txid.
func (n *Network) ServeBEEF(txid string, beef []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.beefs[txid] = beef
}

// Broadcasts returns the txids broadcast so far.
func (n *Network) Broadcasts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.broadcasts...)
}

func (n *Network) Broadcast(_ context.Context, tx *transaction.Transaction) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.BroadcastErr != nil {
		return "", n.BroadcastErr
	}
	txid := tx.TxID().String()
	n.broadcasts = append(n.broadcasts, txid)
	n.txs[txid] = tx
	return txid, nil
}

func (n *Network) BEEF(_ context.Context, txid string) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.FetchErr != nil {
		return nil, n.FetchErr
	}
	beef, ok := n.beefs[txid]
	if !ok {
		return nil, fmt.Errorf("beef %s: %w", txid, sentinel.ErrNotFound)
	}
	return beef, nil
}

func (n *Network) RawTx(_ context.Context, txid string) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.FetchErr != nil {
		return nil, n.FetchErr
	}
	tx, ok := n.txs[txid]
	if !ok {
		return nil, fmt.Errorf("raw tx %s: %w", txid, sentinel.ErrNotFound)
	}
	return tx.Bytes(), nil
}

func (n *Network) MerklePath(_ context.Context, txid string) (*transaction.MerklePath, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.FetchErr != nil {
		return nil, n.FetchErr
	}
	path, ok := n.paths[txid]
	if !ok {
		return nil, fmt.Errorf("merkle path %s: %w", txid, sentinel.ErrNotFound)
	}
	return path, nil
}

func (n *Network) IsValidRootForHeight(_ context.Context, root *chainhash.Hash, height uint32) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	known, ok := n.roots[height]
	return ok && known.IsEqual(root), nil
}

func (n *Network) CurrentHeight(context.Context) (uint32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.height, nil
}

func ptr[T any](v T) *T {
	return &v
}

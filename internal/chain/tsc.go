package chain

import (
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/transaction"
)

// duplicateNode marks a level where the node is paired with itself.
const duplicateNode = "*"

// TSCProof is a merkle proof in the TSC format served by WhatsOnChain.
type TSCProof struct {
	Index  int      `json:"index"`
	TxOrID string   `json:"txOrId"`
	Target string   `json:"target"`
	Nodes  []string `json:"nodes"`
}

// MerklePathFromTSC converts a TSC proof for txid into a BUMP. Each node is the
// sibling at its level, so its offset is the running index with the low bit flipped.
func MerklePathFromTSC(txid string, proof TSCProof, blockHeight uint32) (*transaction.MerklePath, error) {
	if len(proof.Nodes) == 0 {
		return nil, fmt.Errorf("tsc proof for %s has no nodes", txid)
	}
	if proof.Index < 0 {
		return nil, fmt.Errorf("tsc proof for %s has negative index %d", txid, proof.Index)
	}
	txHash, err := chainhash.NewHashFromHex(txid)
	if err != nil {
		return nil, fmt.Errorf("invalid txid %q: %w", txid, err)
	}

	path := make([][]*transaction.PathElement, len(proof.Nodes))
	index := uint64(proof.Index)
	for level, node := range proof.Nodes {
		sibling, err := pathElement(node, index^1, level == 0 && node == txid)
		if err != nil {
			return nil, fmt.Errorf("level %d of tsc proof for %s: %w", level, txid, err)
		}
		if level == 0 {
			leaf := &transaction.PathElement{Offset: index, Hash: txHash, Txid: ptr(true)}
			if index%2 == 1 {
				path[0] = []*transaction.PathElement{sibling, leaf}
			} else {
				path[0] = []*transaction.PathElement{leaf, sibling}
			}
		} else {
			path[level] = []*transaction.PathElement{sibling}
		}
		index >>= 1
	}
	return transaction.NewMerklePath(blockHeight, path), nil
}

func pathElement(node string, offset uint64, selfPaired bool) (*transaction.PathElement, error) {
	element := &transaction.PathElement{Offset: offset}
	if node == duplicateNode || selfPaired {
		element.Duplicate = ptr(true)
		return element, nil
	}
	hash, err := chainhash.NewHashFromHex(node)
	if err != nil {
		return nil, fmt.Errorf("invalid node hash %q: %w", node, err)
	}
	element.Hash = hash
	return element, nil
}

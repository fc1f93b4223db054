package models

import (
	"encoding/hex"
	"fmt"
	"time"

	"paymail-bridge/pkg/platform/sentinel"
)

// ProofKind says what Beef holds.
type ProofKind string

const (
	// ProofBEEF means Beef is an SPV-checked BEEF bundle.
	ProofBEEF ProofKind = "beef"
	// ProofRaw means no bundle could be assembled and Beef holds the raw transaction.
	ProofRaw ProofKind = "raw"
)

// Unique-key violations reported by Insert. Both wrap sentinel.ErrConflict.
var (
	ErrTxIDExists       = fmt.Errorf("txid already recorded: %w", sentinel.ErrConflict)
	ErrReferenceSettled = fmt.Errorf("reference already settled: %w", sentinel.ErrConflict)
)

// TransactionRecord is a settled payment waiting for its owner to collect it. It
// carries everything the owning wallet needs to internalize the output.
type TransactionRecord struct {
	TxID              string         `json:"txid"`
	Reference         string         `json:"reference"`
	Alias             string         `json:"alias"`
	Domain            string         `json:"domain"`
	Satoshis          uint64         `json:"satoshis"`
	Script            string         `json:"script"`
	PublicKey         string         `json:"publicKey"`
	IdentityKey       string         `json:"identityKey"`
	KeyID             string         `json:"keyID"`
	DerivationPrefix  string         `json:"derivationPrefix"`
	DerivationSuffix  string         `json:"derivationSuffix"`
	SenderIdentityKey string         `json:"senderIdentityKey"`
	Beef              []byte         `json:"beef,omitempty"`
	ProofKind         ProofKind      `json:"proofKind"`
	OutputIndex       uint32         `json:"outputIndex"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	Acknowledged      bool           `json:"acknowledged"`
	CreatedAt         time.Time      `json:"createdAt"`
	AcknowledgedAt    *time.Time     `json:"acknowledgedAt,omitempty"`
}

// ValidTxID reports whether txid is 32 bytes of hex.
func ValidTxID(txid string) bool {
	if len(txid) != 64 {
		return false
	}
	_, err := hex.DecodeString(txid)
	return err == nil
}

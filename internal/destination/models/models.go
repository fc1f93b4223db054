package models

import (
	"time"

	"paymail-bridge/internal/keys"
)

// MaxSatoshis is the total supply. Larger amounts cannot be paid.
const MaxSatoshis uint64 = 21_000_000 * 100_000_000

// Variant selects how the payment key is derived.
type Variant string

const (
	// VariantBRC29 derives with the BRC-29 payment protocol and records the
	// derivation prefix, suffix and sender identity a wallet needs to internalize
	// the output.
	VariantBRC29 Variant = "brc29"
	// VariantSimple derives with the "paymail destination" protocol and a bare
	// timestamp keyID.
	VariantSimple Variant = "simple"
)

func (v Variant) Valid() bool {
	return v == VariantBRC29 || v == VariantSimple
}

// DestinationRecord is an issued payment agreement: pay exactly Satoshis to Script.
// It is immutable and settles at most once.
type DestinationRecord struct {
	Reference         string        `json:"reference"`
	Alias             string        `json:"alias"`
	IdentityKey       string        `json:"identityKey"`
	PublicKey         string        `json:"publicKey"`
	Script            string        `json:"script"`
	Satoshis          uint64        `json:"satoshis"`
	KeyID             string        `json:"keyID"`
	ProtocolID        keys.Protocol `json:"protocolID"`
	DerivationPrefix  string        `json:"derivationPrefix,omitempty"`
	DerivationSuffix  string        `json:"derivationSuffix,omitempty"`
	SenderIdentityKey string        `json:"senderIdentityKey,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
}

// Output is one payment output of the terms handed to the payer.
type Output struct {
	Satoshis uint64 `json:"satoshis"`
	Script   string `json:"script"`
}

// Terms is what the payer receives for a destination.
type Terms struct {
	Reference string   `json:"reference"`
	Outputs   []Output `json:"outputs"`
}

// TermsFor returns the single-output terms of record.
func TermsFor(record *DestinationRecord) *Terms {
	return &Terms{
		Reference: record.Reference,
		Outputs:   []Output{{Satoshis: record.Satoshis, Script: record.Script}},
	}
}

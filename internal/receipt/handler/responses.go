package handler

import (
	"time"

	"paymail-bridge/internal/keys"
	"paymail-bridge/internal/receipt/models"
)

// TransactionResponse is a receipt as handed to a wallet. Beef travels as a byte
// array so it can be passed straight to internalizeAction.
type TransactionResponse struct {
	TxID              string         `json:"txid"`
	Reference         string         `json:"reference"`
	Alias             string         `json:"alias"`
	Domain            string         `json:"domain"`
	Satoshis          uint64         `json:"satoshis"`
	Script            string         `json:"script"`
	PublicKey         string         `json:"publicKey"`
	IdentityKey       string         `json:"identityKey"`
	KeyID             string         `json:"keyID"`
	DerivationPrefix  string         `json:"derivationPrefix,omitempty"`
	DerivationSuffix  string         `json:"derivationSuffix,omitempty"`
	SenderIdentityKey string         `json:"senderIdentityKey,omitempty"`
	Beef              keys.Bytes     `json:"beef"`
	ProofKind         string         `json:"proofKind"`
	OutputIndex       uint32         `json:"outputIndex"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	Acknowledged      bool           `json:"acknowledged"`
	CreatedAt         time.Time      `json:"createdAt"`
	AcknowledgedAt    *time.Time     `json:"acknowledgedAt,omitempty"`
}

type TransactionsResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

type AcknowledgeResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

func toTransactionsResponse(records []*models.TransactionRecord) TransactionsResponse {
	out := make([]TransactionResponse, 0, len(records))
	for _, r := range records {
		out = append(out, TransactionResponse{
			TxID:              r.TxID,
			Reference:         r.Reference,
			Alias:             r.Alias,
			Domain:            r.Domain,
			Satoshis:          r.Satoshis,
			Script:            r.Script,
			PublicKey:         r.PublicKey,
			IdentityKey:       r.IdentityKey,
			KeyID:             r.KeyID,
			DerivationPrefix:  r.DerivationPrefix,
			DerivationSuffix:  r.DerivationSuffix,
			SenderIdentityKey: r.SenderIdentityKey,
			Beef:              keys.Bytes(r.Beef),
			ProofKind:         string(r.ProofKind),
			OutputIndex:       r.OutputIndex,
			Metadata:          r.Metadata,
			Acknowledged:      r.Acknowledged,
			CreatedAt:         r.CreatedAt,
			AcknowledgedAt:    r.AcknowledgedAt,
		})
	}
	return TransactionsResponse{Transactions: out}
}

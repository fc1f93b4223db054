package handler

// SettleResponse acknowledges a recorded payment.
type SettleResponse struct {
	TxID string `json:"txid"`
	Note string `json:"note"`
}

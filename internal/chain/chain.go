// Package chain holds the bridge's clients for the BSV network: an ARC broadcaster
// and a WhatsOnChain client that serves proof bundles, source transactions, merkle
// proofs and block headers. Every WhatsOnChain call goes through the outbound fetch
// queue and a circuit breaker.
package chain

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
)

const wocRoot = "https://api.whatsonchain.com/v1/bsv"

var tracer = otel.Tracer("paymail-bridge/chain")

var (
	// ErrBroadcastRejected is returned when ARC answers but does not accept the transaction.
	ErrBroadcastRejected = errors.New("transaction rejected by broadcaster")
	// ErrMalformedResponse is returned when an upstream body cannot be decoded.
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// WhatsOnChainURL returns the API root for network ("main" or "test").
func WhatsOnChainURL(network string) string {
	return fmt.Sprintf("%s/%s", wocRoot, network)
}

func ptr[T any](v T) *T {
	return &v
}

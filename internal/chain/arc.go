package chain

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// arcAccepted lists the ARC statuses that mean the network has the transaction.
var arcAccepted = map[string]bool{
	"RECEIVED":             true,
	"STORED":               true,
	"ANNOUNCED_TO_NETWORK": true,
	"REQUESTED_BY_NETWORK": true,
	"SENT_TO_NETWORK":      true,
	"ACCEPTED_BY_NETWORK":  true,
	"SEEN_ON_NETWORK":      true,
	"MINED":                true,
}

type arcRequest struct {
	// RawTx may hold raw or extended-format hex.
	RawTx string `json:"rawTx"`
}

type arcResponse struct {
	TxID      string `json:"txid"`
	TxStatus  string `json:"txStatus"`
	Status    int    `json:"status"`
	Title     string `json:"title"`
	Detail    string `json:"detail"`
	ExtraInfo string `json:"extraInfo"`
}

// ARC broadcasts transactions to an ARC endpoint.
type ARC struct {
	client *resty.Client
	logger *slog.Logger
}

// NewARC builds a broadcaster for baseURL. apiKey is sent as a bearer token when set.
func NewARC(baseURL, apiKey string, logger *slog.Logger) *ARC {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(defaultTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ARC{client: client, logger: logger}
}

// Broadcast submits tx and returns its txid once ARC reports an accepted status.
// Extended format is sent when every input carries its source output.
func (a *ARC) Broadcast(ctx context.Context, tx *transaction.Transaction) (string, error) {
	txid := tx.TxID().String()
	ctx, span := tracer.Start(ctx, "arc.broadcast",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("txid", txid)),
	)
	defer span.End()

	payload := tx.Hex()
	if ef, err := tx.EFHex(); err == nil {
		payload = ef
	}

	var result arcResponse
	res, err := a.client.R().
		SetContext(ctx).
		SetBody(arcRequest{RawTx: payload}).
		SetResult(&result).
		SetError(&result).
		Post("/v1/tx")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "arc unreachable")
		return "", fmt.Errorf("arc broadcast %s: %w", txid, err)
	}
	span.SetAttributes(
		attribute.Int("http.status_code", res.StatusCode()),
		attribute.String("arc.tx_status", result.TxStatus),
	)

	if res.StatusCode() != http.StatusOK || !arcAccepted[result.TxStatus] {
		a.logger.WarnContext(ctx, "arc rejected transaction",
			"txid", txid,
			"status", res.StatusCode(),
			"tx_status", result.TxStatus,
			"title", result.Title,
			"extra_info", result.ExtraInfo,
		)
		err := fmt.Errorf("arc broadcast %s: status %d %s %s: %w",
			txid, res.StatusCode(), result.TxStatus, result.Title, ErrBroadcastRejected)
		span.RecordError(err)
		span.SetStatus(codes.Error, "rejected")
		return "", err
	}
	if result.TxID != "" && result.TxID != txid {
		return "", fmt.Errorf("arc acknowledged %s for %s: %w", result.TxID, txid, ErrMalformedResponse)
	}
	return txid, nil
}

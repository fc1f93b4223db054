package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"paymail-bridge/internal/auth"
	"paymail-bridge/internal/receipt/models"
	"paymail-bridge/pkg/platform/httputil"
	"paymail-bridge/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/receipt-mocks.go -package=mocks Service

// Service defines the collection operations exposed over HTTP.
type Service interface {
	Collect(ctx context.Context, env auth.Envelope) ([]*models.TransactionRecord, error)
	ListAll(ctx context.Context, env auth.Envelope) ([]*models.TransactionRecord, error)
	Acknowledge(ctx context.Context, txids []string) error
}

// Handler serves the BRC-100 collection endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/api/brc-100/collect", h.list("collect", h.service.Collect))
	r.Post("/api/brc-100/transactions", h.list("transactions", h.service.ListAll))
	r.Post("/api/brc-100/ack", h.HandleAcknowledge)
}

func (h *Handler) list(op string, fetch func(context.Context, auth.Envelope) ([]*models.TransactionRecord, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := requestcontext.RequestID(ctx)
		start := time.Now()

		env, ok := httputil.DecodeAndPrepare[auth.Envelope](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}

		records, err := fetch(ctx, *env)
		if err != nil {
			h.logger.ErrorContext(ctx, op+" failed",
				"request_id", requestID,
				"identity_key", env.IdentityKey,
				"error", err,
			)
			httputil.WriteError(w, err)
			return
		}

		h.logger.InfoContext(ctx, op+" handled",
			"request_id", requestID,
			"count", len(records),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		httputil.WriteJSON(w, http.StatusOK, toTransactionsResponse(records))
	}
}

// HandleAcknowledge handles POST /api/brc-100/ack.
func (h *Handler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[AcknowledgeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.Acknowledge(ctx, req.TxIDs); err != nil {
		h.logger.ErrorContext(ctx, "acknowledge failed",
			"request_id", requestID,
			"count", len(req.TxIDs),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AcknowledgeResponse{Acknowledged: true})
}

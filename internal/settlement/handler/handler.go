package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	aliasmodels "paymail-bridge/internal/alias/models"
	"paymail-bridge/internal/settlement/service"
	dErrors "paymail-bridge/pkg/domain-errors"
	"paymail-bridge/pkg/platform/httputil"
	"paymail-bridge/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/settlement-mocks.go -package=mocks Service

// Service settles payments to issued destinations.
type Service interface {
	Settle(ctx context.Context, cmd service.SettleCommand) (*service.SettleResult, error)
}

// Handler serves the paymail receive-transaction capabilities.
type Handler struct {
	service Service
	domain  string
	logger  *slog.Logger
}

func New(service Service, domain string, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		domain:  domain,
		logger:  logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/api/paymail/tx/{paymail}", h.handleRawTx)
	r.Post("/api/paymail/beef/{paymail}", h.handleBeef)
}

func (h *Handler) handleRawTx(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[TxRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.settle(w, r, service.SettleCommand{
		Reference: req.Reference,
		Format:    service.FormatRaw,
		Payload:   req.Hex,
		Metadata:  req.Metadata,
	})
}

func (h *Handler) handleBeef(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[BeefRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.settle(w, r, service.SettleCommand{
		Reference: req.Reference,
		Format:    service.FormatBEEF,
		Payload:   req.Beef,
		Metadata:  req.Metadata,
	})
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request, cmd service.SettleCommand) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	alias, err := aliasmodels.ParseHandle(chi.URLParam(r, "paymail"), h.domain)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cmd.Alias = alias

	result, err := h.service.Settle(ctx, cmd)
	if err != nil {
		log := h.logger.WarnContext
		if code := dErrors.CodeOf(err); code == dErrors.CodeInternal || code == dErrors.CodeUpstream {
			log = h.logger.ErrorContext
		}
		log(ctx, "settlement failed",
			"request_id", requestID,
			"alias", alias,
			"reference", cmd.Reference,
			"format", cmd.Format,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "settlement handled",
		"request_id", requestID,
		"alias", alias,
		"reference", cmd.Reference,
		"txid", result.TxID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, SettleResponse{TxID: result.TxID, Note: result.Note})
}

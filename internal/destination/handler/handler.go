package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	aliasmodels "paymail-bridge/internal/alias/models"
	"paymail-bridge/internal/destination/models"
	"paymail-bridge/pkg/platform/httputil"
	"paymail-bridge/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/destination-mocks.go -package=mocks Service

// Service issues payment destinations.
type Service interface {
	Issue(ctx context.Context, variant models.Variant, alias string, satoshis uint64) (*models.Terms, error)
}

// Handler serves the paymail destination capabilities.
type Handler struct {
	service        Service
	domain         string
	defaultVariant models.Variant
	logger         *slog.Logger
}

// New builds the handler. defaultVariant serves the basic paymentDestination
// capability; the BRC-29 and p2p routes always use their own variant.
func New(service Service, domain string, defaultVariant models.Variant, logger *slog.Logger) *Handler {
	return &Handler{
		service:        service,
		domain:         domain,
		defaultVariant: defaultVariant,
		logger:         logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/api/paymail/destination/{paymail}", h.issue(models.VariantBRC29))
	r.Post("/api/paymail/p2p-destination/{paymail}", h.issue(models.VariantSimple))
	r.Post("/api/paymail/address/{paymail}", h.issue(h.defaultVariant))
}

func (h *Handler) issue(variant models.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := requestcontext.RequestID(ctx)
		start := time.Now()

		alias, err := aliasmodels.ParseHandle(chi.URLParam(r, "paymail"), h.domain)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		req, ok := httputil.DecodeAndPrepare[IssueRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}

		terms, err := h.service.Issue(ctx, variant, alias, req.Satoshis)
		if err != nil {
			h.logger.ErrorContext(ctx, "destination issuance failed",
				"request_id", requestID,
				"alias", alias,
				"variant", variant,
				"error", err,
			)
			httputil.WriteError(w, err)
			return
		}

		h.logger.InfoContext(ctx, "destination issuance handled",
			"request_id", requestID,
			"alias", alias,
			"reference", terms.Reference,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		httputil.WriteJSON(w, http.StatusOK, terms)
	}
}

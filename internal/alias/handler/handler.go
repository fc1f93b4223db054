package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"paymail-bridge/internal/alias/service"
	"paymail-bridge/internal/auth"
	"paymail-bridge/pkg/platform/httputil"
	"paymail-bridge/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/alias-mocks.go -package=mocks Service

// Service defines the alias registry operations exposed over HTTP.
type Service interface {
	Register(ctx context.Context, cmd service.RegisterCommand) (*service.RegisterResult, error)
	RegisterIdentityKey(ctx context.Context, identityKey string) (*service.RegisterResult, error)
	ListAliases(ctx context.Context, env auth.Envelope) ([]string, error)
	DeleteAlias(ctx context.Context, env auth.Envelope, alias string) error
}

// Handler wires the BRC-100 alias endpoints to the registry.
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

// Register mounts alias endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/brc-100/register", h.HandleRegister)
	r.Post("/api/brc-100/register-identity-key", h.HandleRegisterIdentityKey)
	r.Post("/api/brc-100/aliases", h.HandleListAliases)
	r.Post("/api/brc-100/delete-alias", h.HandleDeleteAlias)
}

// HandleRegister handles POST /api/brc-100/register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.Register(ctx, req.Command())
	if err != nil {
		h.logger.ErrorContext(ctx, "alias registration failed",
			"request_id", requestID,
			"alias", req.Alias,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "alias registration handled",
		"request_id", requestID,
		"alias", res.Alias,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, RegisterResponse{Alias: res.Alias, Handle: res.Handle})
}

// HandleRegisterIdentityKey handles POST /api/brc-100/register-identity-key.
func (h *Handler) HandleRegisterIdentityKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[RegisterIdentityKeyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.RegisterIdentityKey(ctx, req.IdentityKey)
	if err != nil {
		h.logger.ErrorContext(ctx, "identity key registration failed",
			"request_id", requestID,
			"identity_key", req.IdentityKey,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "identity key registration handled",
		"request_id", requestID,
		"alias", res.Alias,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, RegisterIdentityKeyResponse{
		Success: true,
		Alias:   res.Alias,
		Paymail: res.Handle,
	})
}

// HandleListAliases handles POST /api/brc-100/aliases.
func (h *Handler) HandleListAliases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[auth.Envelope](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	aliases, err := h.service.ListAliases(ctx, *req)
	if err != nil {
		h.logger.ErrorContext(ctx, "list aliases failed",
			"request_id", requestID,
			"identity_key", req.IdentityKey,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ListAliasesResponse{Aliases: aliases})
}

// HandleDeleteAlias handles POST /api/brc-100/delete-alias.
func (h *Handler) HandleDeleteAlias(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[DeleteAliasRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.DeleteAlias(ctx, req.Envelope, req.Alias); err != nil {
		h.logger.ErrorContext(ctx, "delete alias failed",
			"request_id", requestID,
			"alias", req.Alias,
			"identity_key", req.IdentityKey,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "alias deletion handled",
		"request_id", requestID,
		"alias", req.Alias,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, DeleteAliasResponse{
		Success: true,
		Message: fmt.Sprintf("Alias '%s' deleted successfully", req.Alias),
	})
}

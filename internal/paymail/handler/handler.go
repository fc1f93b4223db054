// Package handler serves paymail discovery: the capability document and the pki
// and public profile lookups.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	aliasmodels "paymail-bridge/internal/alias/models"
	"paymail-bridge/pkg/platform/httputil"
	"paymail-bridge/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/paymail-mocks.go -package=mocks Resolver

const bsvaliasVersion = "1.0"

// BRFC capability ids.
const (
	capabilityProfile          = "f12f968c92d6"
	capabilityP2PDestination   = "2a40af698840"
	capabilityRawTx            = "5f1323cddf31"
	capabilityBEEF             = "5c55a7fdb7bb"
	capabilitySenderValidation = "6745385c3fc0"
)

// Resolver looks up registered aliases.
type Resolver interface {
	Resolve(ctx context.Context, alias string) (*aliasmodels.AliasRecord, error)
}

type Config struct {
	Domain    string
	BaseURL   string
	AvatarURL string
	// PubKey is the key advertised for every handle.
	PubKey string
}

type Handler struct {
	resolver Resolver
	cfg      Config
	logger   *slog.Logger
}

func New(resolver Resolver, cfg Config, logger *slog.Logger) *Handler {
	return &Handler{
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/.well-known/bsvalias", h.HandleCapabilities)
	r.Get("/api/paymail/pki/{paymail}", h.HandlePKI)
	r.Get("/api/paymail/profile/{paymail}", h.HandleProfile)
}

// HandleCapabilities handles GET /.well-known/bsvalias.
func (h *Handler) HandleCapabilities(w http.ResponseWriter, _ *http.Request) {
	template := func(route string) string {
		return h.cfg.BaseURL + "/api/paymail/" + route + "/{alias}@{domain.tld}"
	}
	httputil.WriteJSON(w, http.StatusOK, CapabilitiesResponse{
		BSVAlias: bsvaliasVersion,
		Capabilities: map[string]any{
			capabilitySenderValidation: false,
			"pki":                      template("pki"),
			"paymentDestination":       template("address"),
			capabilityProfile:          template("profile"),
			capabilityP2PDestination:   template("destination"),
			capabilityBEEF:             template("beef"),
			capabilityRawTx:            template("tx"),
		},
	})
}

// HandlePKI handles GET /api/paymail/pki/{paymail}.
func (h *Handler) HandlePKI(w http.ResponseWriter, r *http.Request) {
	record, ok := h.resolve(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PKIResponse{
		BSVAlias: bsvaliasVersion,
		Handle:   aliasmodels.Handle(record.Alias, h.cfg.Domain),
		PubKey:   h.cfg.PubKey,
	})
}

// HandleProfile handles GET /api/paymail/profile/{paymail}.
func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	record, ok := h.resolve(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ProfileResponse{
		Name:   record.Alias,
		Domain: h.cfg.Domain,
		Avatar: h.cfg.AvatarURL,
	})
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (*aliasmodels.AliasRecord, bool) {
	ctx := r.Context()
	alias, err := aliasmodels.ParseHandle(chi.URLParam(r, "paymail"), h.cfg.Domain)
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	record, err := h.resolver.Resolve(ctx, alias)
	if err != nil {
		h.logger.InfoContext(ctx, "paymail lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"alias", alias,
			"error", err,
		)
		httputil.WriteError(w, err)
		return nil, false
	}
	return record, true
}

// Package httpapi assembles the bridge's HTTP surface: shared middleware, the
// per-class inbound limits and every domain handler.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	ratelimitmw "paymail-bridge/internal/ratelimit/middleware"
	"paymail-bridge/internal/ratelimit/models"
	"paymail-bridge/internal/platform/metrics"
	"paymail-bridge/internal/platform/middleware"
	"paymail-bridge/pkg/platform/httputil"
	"paymail-bridge/pkg/platform/middleware/metadata"
	"paymail-bridge/pkg/platform/middleware/requesttime"
)

// defaultRequestTimeout bounds every route except settlement, which manages its own.
const defaultRequestTimeout = 30 * time.Second

// Registrar mounts a handler's routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the handlers and cross-cutting pieces the router wires together.
type Deps struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Limiter *ratelimitmw.Middleware
	Clock   func() time.Time

	// Public paymail discovery and destination issuance.
	Public []Registrar
	// Transaction submission. Runs without the request timeout.
	Settlement []Registrar
	// Signed wallet calls.
	Wallet []Registrar

	Health map[string]HealthCheck
}

// NewRouter wires all endpoints.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.MiddlewareWithClock(clock))
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.LatencyMiddleware(d.Metrics))
	r.Use(CORS)
	r.Use(middleware.ContentTypeJSON)

	r.Get("/health", health(d.Health))
	r.Handle("/metrics", metrics.Handler())

	mount := func(class models.EndpointClass, timeout time.Duration, handlers []Registrar) {
		r.Group(func(g chi.Router) {
			if d.Limiter != nil {
				g.Use(d.Limiter.RateLimit(class))
			}
			if timeout > 0 {
				g.Use(middleware.Timeout(timeout))
			}
			for _, h := range handlers {
				h.Register(g)
			}
		})
	}
	mount(models.ClassPublic, defaultRequestTimeout, d.Public)
	mount(models.ClassSettlement, 0, d.Settlement)
	mount(models.ClassWallet, defaultRequestTimeout, d.Wallet)

	return r
}

// CORS lets browser wallets call every route from any origin and answers preflights.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		h.Set("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func health(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}

// Package middleware applies the inbound per-IP sliding window to HTTP routes.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"paymail-bridge/internal/ratelimit/metrics"
	"paymail-bridge/internal/ratelimit/models"
	audit "paymail-bridge/pkg/platform/audit"
	"paymail-bridge/pkg/platform/circuit"
	"paymail-bridge/pkg/platform/httputil"
	"paymail-bridge/pkg/requestcontext"
)

// Store counts requests in a sliding window per key.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

// Middleware limits requests per client IP and endpoint class. When a fallback store
// is configured, repeated primary failures trip a breaker and requests are counted in
// the fallback until the primary recovers.
type Middleware struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	limits   map[models.EndpointClass]models.Limit
	logger   *slog.Logger
	metrics  *metrics.Metrics
	auditor  audit.Emitter
	disabled bool
}

type Option func(*Middleware)

// WithDisabled turns limiting off entirely.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// WithFallback counts requests in fallback while breaker is open.
func WithFallback(fallback Store, breaker *circuit.Breaker) Option {
	return func(m *Middleware) {
		m.fallback = fallback
		m.breaker = breaker
	}
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

func WithAuditor(auditor audit.Emitter) Option {
	return func(m *Middleware) {
		m.auditor = auditor
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		m.logger = logger
	}
}

func New(store Store, limits map[models.EndpointClass]models.Limit, opts ...Option) *Middleware {
	m := &Middleware{
		primary: store,
		limits:  limits,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.fallback != nil && m.breaker == nil {
		m.breaker = circuit.New("ratelimit")
	}
	if m.disabled {
		m.logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit limits the wrapped handler under class. Requests pass through unchecked
// when the class has no limit or the store cannot answer.
func (m *Middleware) RateLimit(class models.EndpointClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit, ok := m.limits[class]
			if m.disabled || !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)
			key := models.NewIPRateLimitKey(ip, class)

			result, degraded, err := m.check(ctx, key, limit)
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check ip rate limit",
					"request_id", requestcontext.RequestID(ctx),
					"class", class,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)
			if degraded {
				w.Header().Set("X-RateLimit-Status", "degraded")
			}

			if !result.Allowed {
				m.reject(ctx, ip, class)
				writeRateLimitExceeded(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// check asks the primary store, switching to the fallback while the breaker is open.
func (m *Middleware) check(ctx context.Context, key string, limit models.Limit) (*models.RateLimitResult, bool, error) {
	if m.breaker == nil {
		result, err := m.primary.Allow(ctx, key, limit.RequestsPerWindow, limit.Window)
		return result, false, err
	}

	if !m.breaker.Allow() {
		result, err := m.fallback.Allow(ctx, key, limit.RequestsPerWindow, limit.Window)
		return result, true, err
	}

	result, err := m.primary.Allow(ctx, key, limit.RequestsPerWindow, limit.Window)
	if err != nil {
		useFallback, change := m.breaker.RecordFailure()
		if change.Opened {
			m.logger.WarnContext(ctx, "rate limit store failing, counting in memory", "error", err)
		}
		if !useFallback {
			return nil, false, err
		}
		result, err := m.fallback.Allow(ctx, key, limit.RequestsPerWindow, limit.Window)
		return result, true, err
	}

	usePrimary, change := m.breaker.RecordSuccess()
	if change.Closed {
		m.logger.InfoContext(ctx, "rate limit store recovered")
	}
	if !usePrimary {
		// still probing: the primary counted this request but the breaker stays open
		return result, true, nil
	}
	return result, false, nil
}

func (m *Middleware) reject(ctx context.Context, ip string, class models.EndpointClass) {
	if m.metrics != nil {
		m.metrics.IncInboundRejected(string(class))
	}
	m.logger.WarnContext(ctx, "rate limit exceeded",
		"request_id", requestcontext.RequestID(ctx),
		"class", class,
	)
	if m.auditor == nil {
		return
	}
	if err := m.auditor.Emit(ctx, audit.Event{
		Action:    string(audit.EventRateLimitExceeded),
		Reason:    string(class),
		IP:        ip,
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		m.logger.WarnContext(ctx, "failed to emit audit event", "error", err)
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      "Too many requests, try again later",
		Code:       "rate_limited",
		RetryAfter: result.RetryAfter,
	})
}

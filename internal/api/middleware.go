// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/servicefield/evoapi/internal/audit"
	"github.com/servicefield/evoapi/internal/auth"
	"github.com/servicefield/evoapi/internal/config"
	"github.com/servicefield/evoapi/internal/logging"
	"github.com/servicefield/evoapi/internal/metrics"
)

// Endpoint-specific rate limits. Login is strict to slow brute
// forcing; sync is limited because a pass hits the vendor API for
// every eligible user.
var (
	rateLimitLogin = struct {
		requests int
		window   time.Duration
	}{5, 5 * time.Minute}

	rateLimitSync = struct {
		requests int
		window   time.Duration
	}{5, time.Minute}
)

// MiddlewareSet builds the shared Chi middleware from security config.
type MiddlewareSet struct {
	cfg  *config.SecurityConfig
	cors func(http.Handler) http.Handler
}

// NewMiddlewareSet creates the middleware factories.
func NewMiddlewareSet(cfg *config.SecurityConfig) *MiddlewareSet {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	})

	return &MiddlewareSet{cfg: cfg, cors: corsHandler}
}

// CORS returns the CORS middleware built from configured origins.
func (m *MiddlewareSet) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns the general per-IP rate limiter.
func (m *MiddlewareSet) RateLimit() func(http.Handler) http.Handler {
	if m.cfg.RateLimitDisabled {
		return passthrough
	}
	requests := m.cfg.RateLimitReqs
	if requests <= 0 {
		requests = 100
	}
	window := m.cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimitExceeded),
	)
}

// RateLimitLogin returns the strict limiter for the login endpoint.
func (m *MiddlewareSet) RateLimitLogin() func(http.Handler) http.Handler {
	if m.cfg.RateLimitDisabled {
		return passthrough
	}
	return httprate.Limit(rateLimitLogin.requests, rateLimitLogin.window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimitExceeded),
	)
}

// RateLimitSync returns the limiter for the manual sync trigger.
func (m *MiddlewareSet) RateLimitSync() func(http.Handler) http.Handler {
	if m.cfg.RateLimitDisabled {
		return passthrough
	}
	return httprate.Limit(rateLimitSync.requests, rateLimitSync.window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimitExceeded),
	)
}

func passthrough(next http.Handler) http.Handler {
	return next
}

func rateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).TooManyRequests("Rate limit exceeded, retry later")
}

// RequestID assigns each request a unique ID, echoed in the
// X-Request-ID response header and attached to the logging context.
// An inbound X-Request-ID is honored so callers can correlate.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = logging.GenerateRequestID()
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := logging.ContextWithRequestID(r.Context(), requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestAudit emits one audit event per handled request with the
// method, route pattern, status, actor, client address, and request
// ID. Writes go through the async audit buffer so the response is
// never delayed. Mounted outside Recoverer so a recovered panic is
// still audited as a 500.
func RequestAudit(auditor *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auditor == nil || !auditor.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			recorder := &auth.ActorRecorder{}
			r = r.WithContext(auth.ContextWithActorRecorder(r.Context(), recorder))
			wrapper := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(wrapper, r)

			routePattern := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					routePattern = pattern
				}
			}
			status := wrapper.Status()
			if status == 0 {
				status = http.StatusOK
			}

			username, role, _ := recorder.Identity()
			auditor.LogRequest(audit.RequestRecord{
				Method:    r.Method,
				Route:     routePattern,
				Status:    status,
				Username:  username,
				Role:      role,
				IP:        r.RemoteAddr,
				UserAgent: r.UserAgent(),
				RequestID: logging.RequestIDFromContext(r.Context()),
				Duration:  time.Since(start),
			})
		})
	}
}

// PrometheusMetrics records request count and duration per route.
// The Chi route pattern is used as the endpoint label so that
// /workorders/17 and /workorders/42 share one series.
func PrometheusMetrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapper := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(wrapper, r)

			routePattern := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					routePattern = pattern
				}
			}

			metrics.APIRequestsTotal.WithLabelValues(
				r.Method, routePattern, strconv.Itoa(wrapper.Status()),
			).Inc()
			metrics.APIRequestDuration.WithLabelValues(
				r.Method, routePattern,
			).Observe(time.Since(start).Seconds())
		})
	}
}

// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/servicefield/evoapi/internal/auth"
	"github.com/servicefield/evoapi/internal/config"
)

// Router assembles the HTTP surface.
type Router struct {
	handler    *Handler
	authMW     *auth.Middleware
	middleware *MiddlewareSet
}

// NewRouter creates the router from its parts.
func NewRouter(handler *Handler, authMW *auth.Middleware, cfg *config.SecurityConfig) *Router {
	return &Router{
		handler:    handler,
		authMW:     authMW,
		middleware: NewMiddlewareSet(cfg),
	}
}

// Setup builds the full route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(RequestID())
	r.Use(chimiddleware.RealIP)
	r.Use(RequestAudit(router.handler.auditor))
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())

	// Health endpoints stay outside auth and rate limiting so probes
	// keep working under load.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
		r.Get("/", router.handler.HealthReady)
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(router.middleware.RateLimitLogin()).Post("/login", router.handler.Login)
	})

	// Data endpoints require authentication.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(PrometheusMetrics())
		r.Use(router.authMW.Authenticate)

		r.Get("/users", router.handler.Users)
		r.Get("/workorders", router.handler.WorkOrders)
		r.Get("/workorders/{id}", router.handler.WorkOrderByID)

		r.Route("/fleetmatics", func(r chi.Router) {
			r.Get("/status", router.handler.SyncStatus)
			r.With(router.authMW.RequireAdmin, router.middleware.RateLimitSync()).
				Post("/sync", router.handler.TriggerSync)
		})

		r.With(router.authMW.RequireAdmin).Get("/audit/events", router.handler.AuditEvents)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
	})

	return r
}

// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/servicefield/evoapi/internal/audit"
	"github.com/servicefield/evoapi/internal/auth"
	"github.com/servicefield/evoapi/internal/config"
	"github.com/servicefield/evoapi/internal/database"
	"github.com/servicefield/evoapi/internal/logging"
	"github.com/servicefield/evoapi/internal/models"
	"github.com/servicefield/evoapi/internal/validation"
)

// Store is the database surface the handlers read from.
type Store interface {
	Ping(ctx context.Context) error
	ListUsers(ctx context.Context) ([]models.User, error)
	ListWorkOrders(ctx context.Context, filter database.WorkOrderFilter) ([]models.WorkOrder, error)
	GetWorkOrder(ctx context.Context, id int) (models.WorkOrder, error)
}

// Syncer runs one vehicle-assignment sync pass on demand.
type Syncer interface {
	SyncAll(ctx context.Context) (*models.SyncResult, error)
}

// SyncSchedule exposes the nightly schedule state for the status
// endpoint.
type SyncSchedule interface {
	SyncHour() int
	NextRun() time.Time
	LastResult() *models.SyncResult
}

// Handler holds the dependencies shared by all endpoint handlers.
type Handler struct {
	store      Store
	auditor    *audit.Logger
	syncer     Syncer
	schedule   SyncSchedule
	jwtManager *auth.JWTManager
	cfg        *config.Config
	startTime  time.Time
}

// NewHandler creates the handler set. syncer and schedule may be nil
// when the Fleetmatics integration is disabled; the sync endpoints
// then answer 503.
func NewHandler(store Store, auditor *audit.Logger, syncer Syncer, schedule SyncSchedule, jwtManager *auth.JWTManager, cfg *config.Config) *Handler {
	return &Handler{
		store:      store,
		auditor:    auditor,
		syncer:     syncer,
		schedule:   schedule,
		jwtManager: jwtManager,
		cfg:        cfg,
		startTime:  time.Now(),
	}
}

// HealthLive reports process liveness. It never touches dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status": "alive",
	})
}

// HealthReady reports readiness: the process is up and the database
// answers a ping.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Readiness check failed")
		rw.Error(http.StatusServiceUnavailable, ErrCodeDatabase, "Database unavailable")
		return
	}

	rw.Success(map[string]interface{}{
		"status":         "ready",
		"database":       "ok",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	})
}

// Login authenticates the configured admin account and issues a JWT.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	requestID := logging.RequestIDFromContext(r.Context())

	if h.jwtManager == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeAuthentication, "Token auth is not configured")
		return
	}

	var req LoginRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if ve := validation.ValidateStruct(&req); ve != nil {
		rw.ValidationError(ve)
		return
	}

	if !auth.VerifyAdminCredentials(&h.cfg.Security, req.Username, req.Password) {
		h.auditor.LogAuthFailure(req.Username, r.RemoteAddr, r.UserAgent(), requestID, "invalid credentials")
		rw.Unauthorized("Invalid username or password")
		return
	}

	token, err := h.jwtManager.GenerateToken(req.Username, "admin", "")
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Token generation failed")
		rw.InternalError("Failed to issue token")
		return
	}

	h.auditor.LogAuthSuccess(req.Username, r.RemoteAddr, r.UserAgent(), requestID)

	rw.Success(LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.cfg.Security.SessionTimeout).UTC(),
		Username:  req.Username,
		Role:      "admin",
	})
}

// Users lists all user records.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	rw.Success(map[string]interface{}{
		"total":   len(users),
		"results": users,
	})
}

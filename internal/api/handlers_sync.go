// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package api

import (
	"net/http"

	"github.com/servicefield/evoapi/internal/auth"
	"github.com/servicefield/evoapi/internal/logging"
	"github.com/servicefield/evoapi/internal/models"
)

// SyncStatus reports the nightly sync schedule: configured hour,
// computed next occurrence, and the most recent result if any.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	status := models.SyncStatus{
		Enabled:  h.cfg.Fleetmatics.Enabled,
		SyncHour: h.cfg.Fleetmatics.SyncHour,
	}
	if h.schedule != nil {
		if next := h.schedule.NextRun(); !next.IsZero() {
			status.NextRun = &next
		}
		status.LastResult = h.schedule.LastResult()
	}

	rw.Success(status)
}

// TriggerSync runs a vehicle-assignment sync pass immediately. The
// pass itself never fails on per-user errors; only an inability to
// list users is an error here.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.syncer == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeSync, "Fleetmatics integration is disabled")
		return
	}

	username := "unknown"
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
		username = claims.Username
	}
	requestID := logging.RequestIDFromContext(r.Context())
	h.auditor.LogSyncTriggered(username, r.RemoteAddr, requestID)

	result, err := h.syncer.SyncAll(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Manual sync pass failed")
		rw.Error(http.StatusInternalServerError, ErrCodeSync, "Sync pass failed: "+err.Error())
		return
	}

	h.auditor.LogSyncPass(result, "manual")
	rw.Success(result)
}

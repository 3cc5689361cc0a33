// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package api

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/servicefield/evoapi/internal/auth"
	"github.com/servicefield/evoapi/internal/models"
)

func TestSyncStatus(t *testing.T) {
	env := newTestEnv(t, "none")
	next := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)
	env.schedule.nextRun = next
	env.schedule.last = &models.SyncResult{
		TotalUsersProcessed: 10,
		SuccessfulUpdates:   8,
		Errors:              2,
	}

	rec, envelope := env.doRequest(t, http.MethodGet, "/api/v1/fleetmatics/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	data, err := json.Marshal(envelope.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	var status models.SyncStatus
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}

	if !status.Enabled || status.SyncHour != 2 {
		t.Errorf("unexpected schedule: %+v", status)
	}
	if status.NextRun == nil || !status.NextRun.Equal(next) {
		t.Errorf("expected next run %v, got %v", next, status.NextRun)
	}
	if status.LastResult == nil || status.LastResult.SuccessfulUpdates != 8 {
		t.Errorf("unexpected last result: %+v", status.LastResult)
	}
}

func TestSyncStatusBeforeFirstRun(t *testing.T) {
	env := newTestEnv(t, "none")

	rec, envelope := env.doRequest(t, http.MethodGet, "/api/v1/fleetmatics/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	data, _ := json.Marshal(envelope.Data)
	var status models.SyncStatus
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.NextRun != nil {
		t.Errorf("expected no next run before scheduler start, got %v", status.NextRun)
	}
	if status.LastResult != nil {
		t.Errorf("expected no last result, got %+v", status.LastResult)
	}
}

func TestTriggerSync(t *testing.T) {
	env := newTestEnv(t, "none")
	env.syncer.result = &models.SyncResult{
		TotalUsersProcessed: 3,
		SuccessfulUpdates:   2,
		Errors:              1,
		ErrorMessages:       []string{"user bob (employee E200): assignment lookup failed"},
		Timestamp:           time.Now(),
	}

	rec, envelope := env.doRequest(t, http.MethodPost, "/api/v1/fleetmatics/sync", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if env.syncer.calls != 1 {
		t.Errorf("expected 1 sync call, got %d", env.syncer.calls)
	}

	data, _ := json.Marshal(envelope.Data)
	var result models.SyncResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.TotalUsersProcessed != 3 || result.SuccessfulUpdates != 2 || result.Errors != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestTriggerSyncFailure(t *testing.T) {
	env := newTestEnv(t, "none")
	env.syncer.result = nil
	env.syncer.err = errors.New("listing users: disk I/O error")

	rec, envelope := env.doRequest(t, http.MethodPost, "/api/v1/fleetmatics/sync", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeSync {
		t.Errorf("expected %s error, got %+v", ErrCodeSync, envelope.Error)
	}
}

func TestTriggerSyncDisabled(t *testing.T) {
	env := newTestEnv(t, "none")

	handler := NewHandler(env.store, env.auditor, nil, nil, env.jwtManager, env.cfg)
	env.router = NewRouter(handler, auth.NewMiddleware(env.jwtManager, "none"), &env.cfg.Security).Setup()

	rec, envelope := env.doRequest(t, http.MethodPost, "/api/v1/fleetmatics/sync", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeSync {
		t.Errorf("expected %s error, got %+v", ErrCodeSync, envelope.Error)
	}
}

func TestTriggerSyncRequiresAdmin(t *testing.T) {
	env := newTestEnv(t, "jwt")

	userToken, err := env.jwtManager.GenerateToken("bob", "user", "E200")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	rec, _ := env.doRequest(t, http.MethodPost, "/api/v1/fleetmatics/sync", userToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}
	if env.syncer.calls != 0 {
		t.Errorf("sync must not run for non-admin, got %d calls", env.syncer.calls)
	}

	adminToken, err := env.jwtManager.GenerateToken("alice", "admin", "")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	rec, _ = env.doRequest(t, http.MethodPost, "/api/v1/fleetmatics/sync", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
}

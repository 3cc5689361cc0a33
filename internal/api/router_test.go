// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package api

import (
	"net/http"
	"strings"
	"testing"
)

func TestRouterRequiresAuth(t *testing.T) {
	env := newTestEnv(t, "jwt")

	protected := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/users"},
		{http.MethodGet, "/api/v1/workorders"},
		{http.MethodGet, "/api/v1/fleetmatics/status"},
		{http.MethodPost, "/api/v1/fleetmatics/sync"},
		{http.MethodGet, "/api/v1/audit/events"},
	}
	for _, tc := range protected {
		rec, _ := env.doRequest(t, tc.method, tc.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401 without token, got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestRouterHealthOpenWithoutAuth(t *testing.T) {
	env := newTestEnv(t, "jwt")

	rec, _ := env.doRequest(t, http.MethodGet, "/api/v1/health/live", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health must not require auth, got %d", rec.Code)
	}
}

func TestRouterNotFoundEnvelope(t *testing.T) {
	env := newTestEnv(t, "none")

	rec, envelope := env.doRequest(t, http.MethodGet, "/api/v1/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if envelope.Status != "error" || envelope.Error == nil || envelope.Error.Code != ErrCodeNotFound {
		t.Errorf("expected envelope %s error, got %+v", ErrCodeNotFound, envelope)
	}
}

func TestRouterMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, "none")

	rec, envelope := env.doRequest(t, http.MethodDelete, "/api/v1/users", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeMethodNotAllowed {
		t.Errorf("expected %s error, got %+v", ErrCodeMethodNotAllowed, envelope.Error)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "jwt")

	rec, _ := env.doRequest(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_") {
		t.Error("expected Prometheus exposition output")
	}
}

func TestRouterEchoesRequestID(t *testing.T) {
	env := newTestEnv(t, "none")

	req, rec := requestWithHeader(http.MethodGet, "/api/v1/health/live", "X-Request-ID", "trace-me-42")
	env.router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "trace-me-42" {
		t.Errorf("expected inbound request ID echoed, got %q", got)
	}
}

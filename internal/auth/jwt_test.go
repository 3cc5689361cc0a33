// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/servicefield/evoapi/internal/config"
)

func testSecurityConfig() *config.SecurityConfig {
	return &config.SecurityConfig{
		AuthMode:       "jwt",
		JWTSecret:      strings.Repeat("k", 32),
		SessionTimeout: time.Hour,
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	mgr, err := NewJWTManager(testSecurityConfig())
	if err != nil {
		t.Fatalf("NewJWTManager failed: %v", err)
	}

	token, err := mgr.GenerateToken("alice", "admin", "E100")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := mgr.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Username != "alice" || claims.Role != "admin" || claims.EmployeeNumber != "E100" {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if !claims.IsAdmin() {
		t.Error("expected admin claims")
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	mgr, err := NewJWTManager(testSecurityConfig())
	if err != nil {
		t.Fatalf("NewJWTManager failed: %v", err)
	}
	token, err := mgr.GenerateToken("alice", "user", "")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	otherCfg := testSecurityConfig()
	otherCfg.JWTSecret = strings.Repeat("x", 32)
	other, err := NewJWTManager(otherCfg)
	if err != nil {
		t.Fatalf("NewJWTManager failed: %v", err)
	}

	if _, err := other.ValidateToken(token); err == nil {
		t.Error("expected validation failure with wrong secret")
	}
}

func TestValidateTokenExpired(t *testing.T) {
	cfg := testSecurityConfig()
	cfg.SessionTimeout = -time.Hour
	mgr, err := NewJWTManager(cfg)
	if err != nil {
		t.Fatalf("NewJWTManager failed: %v", err)
	}
	// Negative timeout falls back to the default, so build the manager
	// directly with an expired window.
	mgr.timeout = -time.Minute

	token, err := mgr.GenerateToken("alice", "user", "")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := mgr.ValidateToken(token); err == nil {
		t.Error("expected validation failure for expired token")
	}
}

func TestNewJWTManagerRequiresSecret(t *testing.T) {
	cfg := testSecurityConfig()
	cfg.JWTSecret = ""
	if _, err := NewJWTManager(cfg); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestAuthenticateMiddleware(t *testing.T) {
	mgr, err := NewJWTManager(testSecurityConfig())
	if err != nil {
		t.Fatalf("NewJWTManager failed: %v", err)
	}
	mw := NewMiddleware(mgr, "jwt")

	var gotClaims *Claims
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// No header.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	// Garbage token.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with bad token, got %d", rec.Code)
	}

	// Valid token.
	token, err := mgr.GenerateToken("alice", "user", "E100")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with valid token, got %d", rec.Code)
	}
	if gotClaims == nil || gotClaims.Username != "alice" {
		t.Errorf("expected claims on context, got %+v", gotClaims)
	}
}

func TestAuthenticateModeNone(t *testing.T) {
	mw := NewMiddleware(nil, "none")
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with auth disabled, got %d", rec.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	mgr, err := NewJWTManager(testSecurityConfig())
	if err != nil {
		t.Fatalf("NewJWTManager failed: %v", err)
	}
	mw := NewMiddleware(mgr, "jwt")
	handler := mw.Authenticate(mw.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	userToken, _ := mgr.GenerateToken("bob", "user", "")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-admin, got %d", rec.Code)
	}

	adminToken, _ := mgr.GenerateToken("alice", "admin", "")
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for admin, got %d", rec.Code)
	}
}

func TestVerifyAdminCredentials(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	cfg := testSecurityConfig()
	cfg.AdminUsername = "admin"
	cfg.AdminPasswordHash = string(hash)

	if !VerifyAdminCredentials(cfg, "admin", "hunter2") {
		t.Error("expected valid credentials to verify")
	}
	if VerifyAdminCredentials(cfg, "admin", "wrong") {
		t.Error("expected wrong password to fail")
	}
	if VerifyAdminCredentials(cfg, "other", "hunter2") {
		t.Error("expected wrong username to fail")
	}
	if VerifyAdminCredentials(&config.SecurityConfig{}, "admin", "hunter2") {
		t.Error("expected unconfigured admin account to fail")
	}
}

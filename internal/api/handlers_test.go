// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/servicefield/evoapi/internal/audit"
	"github.com/servicefield/evoapi/internal/auth"
	"github.com/servicefield/evoapi/internal/config"
	"github.com/servicefield/evoapi/internal/database"
	"github.com/servicefield/evoapi/internal/models"
)

// fakeStore is an in-memory Store for handler tests.
type fakeStore struct {
	users      []models.User
	workOrders []models.WorkOrder
	pingErr    error
	listErr    error
}

func (s *fakeStore) Ping(_ context.Context) error {
	return s.pingErr
}

func (s *fakeStore) ListUsers(_ context.Context) ([]models.User, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.users, nil
}

func (s *fakeStore) ListWorkOrders(_ context.Context, filter database.WorkOrderFilter) ([]models.WorkOrder, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.WorkOrder
	for _, wo := range s.workOrders {
		if filter.Status != "" && wo.Status != filter.Status {
			continue
		}
		if filter.AssignedTo != 0 && (wo.AssignedTo == nil || *wo.AssignedTo != filter.AssignedTo) {
			continue
		}
		out = append(out, wo)
	}
	return out, nil
}

func (s *fakeStore) GetWorkOrder(_ context.Context, id int) (models.WorkOrder, error) {
	for _, wo := range s.workOrders {
		if wo.ID == id {
			return wo, nil
		}
	}
	return models.WorkOrder{}, database.ErrNotFound
}

// fakeSyncer returns a canned sync result.
type fakeSyncer struct {
	result *models.SyncResult
	err    error
	calls  int
}

func (s *fakeSyncer) SyncAll(_ context.Context) (*models.SyncResult, error) {
	s.calls++
	return s.result, s.err
}

// fakeSchedule reports a fixed schedule snapshot.
type fakeSchedule struct {
	hour    int
	nextRun time.Time
	last    *models.SyncResult
}

func (s *fakeSchedule) SyncHour() int                  { return s.hour }
func (s *fakeSchedule) NextRun() time.Time             { return s.nextRun }
func (s *fakeSchedule) LastResult() *models.SyncResult { return s.last }

// fakeAuditStore is an in-memory audit.Store.
type fakeAuditStore struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *fakeAuditStore) Save(_ context.Context, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

func (s *fakeAuditStore) Get(_ context.Context, id string) (*audit.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID == id {
			return &s.events[i], nil
		}
	}
	return nil, fmt.Errorf("event %s not found", id)
}

func (s *fakeAuditStore) Query(_ context.Context, filter audit.QueryFilter) ([]audit.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Event
	for _, ev := range s.events {
		if len(filter.Types) > 0 && ev.Type != filter.Types[0] {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *fakeAuditStore) Count(ctx context.Context, filter audit.QueryFilter) (int64, error) {
	events, err := s.Query(ctx, filter)
	return int64(len(events)), err
}

func (s *fakeAuditStore) Delete(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (s *fakeAuditStore) eventTypes() []audit.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]audit.EventType, len(s.events))
	for i, ev := range s.events {
		types[i] = ev.Type
	}
	return types
}

// testEnv bundles a fully wired router with its fakes.
type testEnv struct {
	router     http.Handler
	store      *fakeStore
	syncer     *fakeSyncer
	schedule   *fakeSchedule
	auditStore *fakeAuditStore
	auditor    *audit.Logger
	jwtManager *auth.JWTManager
	cfg        *config.Config
}

func testConfig(authMode string) *config.Config {
	hash, _ := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	return &config.Config{
		Security: config.SecurityConfig{
			AuthMode:          authMode,
			JWTSecret:         strings.Repeat("s", 32),
			SessionTimeout:    time.Hour,
			AdminUsername:     "admin",
			AdminPasswordHash: string(hash),
			RateLimitDisabled: true,
		},
		Fleetmatics: config.FleetmaticsConfig{
			Enabled:  true,
			SyncHour: 2,
		},
	}
}

func newTestEnv(t *testing.T, authMode string) *testEnv {
	t.Helper()

	cfg := testConfig(authMode)
	store := &fakeStore{}
	syncer := &fakeSyncer{result: &models.SyncResult{Timestamp: time.Now()}}
	schedule := &fakeSchedule{hour: 2}

	auditStore := &fakeAuditStore{}
	auditor := audit.NewLogger(auditStore, audit.DefaultConfig())
	t.Cleanup(func() { _ = auditor.Close() })

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		t.Fatalf("NewJWTManager failed: %v", err)
	}

	handler := NewHandler(store, auditor, syncer, schedule, jwtManager, cfg)
	authMW := auth.NewMiddleware(jwtManager, authMode)
	router := NewRouter(handler, authMW, &cfg.Security).Setup()

	return &testEnv{
		router:     router,
		store:      store,
		syncer:     syncer,
		schedule:   schedule,
		auditStore: auditStore,
		auditor:    auditor,
		jwtManager: jwtManager,
		cfg:        cfg,
	}
}

// doRequest performs a request against the router and decodes the
// envelope.
func (env *testEnv) doRequest(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, *models.APIResponse) {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	var envelope models.APIResponse
	if rec.Body.Len() > 0 && strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode envelope: %v (body: %s)", err, rec.Body.String())
		}
	}
	return rec, &envelope
}

func requestWithHeader(method, path, header, value string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(header, value)
	return req, httptest.NewRecorder()
}

func TestHealthLive(t *testing.T) {
	env := newTestEnv(t, "none")

	rec, envelope := env.doRequest(t, http.MethodGet, "/api/v1/health/live", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if envelope.Status != "success" {
		t.Errorf("expected success status, got %q", envelope.Status)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestHealthReadyDatabaseDown(t *testing.T) {
	env := newTestEnv(t, "none")
	env.store.pingErr = errors.New("connection refused")

	rec, envelope := env.doRequest(t, http.MethodGet, "/api/v1/health/ready", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeDatabase {
		t.Errorf("expected %s error, got %+v", ErrCodeDatabase, envelope.Error)
	}
}

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t, "jwt")

	rec, envelope := env.doRequest(t, http.MethodPost, "/api/v1/auth/login", "",
		LoginRequest{Username: "admin", Password: "hunter2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	data, err := json.Marshal(envelope.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	var resp LoginResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a token")
	}

	claims, err := env.jwtManager.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if claims.Username != "admin" || !claims.IsAdmin() {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t, "jwt")

	rec, envelope := env.doRequest(t, http.MethodPost, "/api/v1/auth/login", "",
		LoginRequest{Username: "admin", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeAuthentication {
		t.Errorf("expected %s error, got %+v", ErrCodeAuthentication, envelope.Error)
	}

	// The write is async; poll the store for the failure event.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, et := range env.auditStore.eventTypes() {
			if et == audit.EventTypeAuthFailure {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("expected an auth failure audit event")
}

func TestLoginValidation(t *testing.T) {
	env := newTestEnv(t, "jwt")

	rec, envelope := env.doRequest(t, http.MethodPost, "/api/v1/auth/login", "",
		LoginRequest{Username: "", Password: ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeValidation {
		t.Errorf("expected %s error, got %+v", ErrCodeValidation, envelope.Error)
	}
}

func TestUsersList(t *testing.T) {
	env := newTestEnv(t, "none")
	env.store.users = []models.User{
		{ID: 1, Username: "alice", EmployeeNumber: "E100", Active: true},
		{ID: 2, Username: "bob", EmployeeNumber: "E200", Active: true},
	}

	rec, envelope := env.doRequest(t, http.MethodGet, "/api/v1/users", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	payload, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected data shape: %T", envelope.Data)
	}
	if total, _ := payload["total"].(float64); int(total) != 2 {
		t.Errorf("expected total 2, got %v", payload["total"])
	}
}

func TestUsersDatabaseError(t *testing.T) {
	env := newTestEnv(t, "none")
	env.store.listErr = errors.New("io error")

	rec, envelope := env.doRequest(t, http.MethodGet, "/api/v1/users", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeDatabase {
		t.Errorf("expected %s error, got %+v", ErrCodeDatabase, envelope.Error)
	}
	if strings.Contains(envelope.Error.Message, "io error") {
		t.Error("internal error detail leaked to client")
	}
}

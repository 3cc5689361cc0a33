// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

func setupTestStore(t *testing.T) *DuckDBStore {
	t.Helper()

	conn, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	store := NewDuckDBStore(conn)
	if err := store.CreateTable(context.Background()); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	return store
}

func testEvent(id string, eventType EventType, ts time.Time) *Event {
	return &Event{
		ID:          id,
		Timestamp:   ts,
		Type:        eventType,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       Actor{ID: "alice", Type: "user", Name: "alice"},
		Source:      Source{IPAddress: "10.0.0.1"},
		Action:      "test",
		Description: "test event",
		RequestID:   "req-" + id,
	}
}

func TestDuckDBStoreSaveAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	event := testEvent("ev-1", EventTypeAuthSuccess, now)
	event.Target = &Target{ID: "42", Type: "user", Name: "bob"}
	event.Metadata = []byte(`{"key":"value"}`)

	if err := store.Save(ctx, event); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "ev-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Type != EventTypeAuthSuccess {
		t.Errorf("expected auth.success, got %s", got.Type)
	}
	if got.Actor.Name != "alice" {
		t.Errorf("expected actor alice, got %s", got.Actor.Name)
	}
	if got.Target == nil || got.Target.Name != "bob" {
		t.Errorf("expected target bob, got %+v", got.Target)
	}
	if len(got.Metadata) == 0 {
		t.Error("expected metadata to round-trip")
	}
}

func TestDuckDBStoreQueryFilters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Save(ctx, testEvent("ev-1", EventTypeAuthSuccess, now.Add(-2*time.Hour))); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, testEvent("ev-2", EventTypeSyncPass, now.Add(-time.Hour))); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, testEvent("ev-3", EventTypeSyncPass, now)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	events, err := store.Query(ctx, QueryFilter{
		Types:     []EventType{EventTypeSyncPass},
		OrderDesc: true,
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 sync.pass events, got %d", len(events))
	}
	if events[0].ID != "ev-3" {
		t.Errorf("expected newest first, got %s", events[0].ID)
	}

	count, err := store.Count(ctx, QueryFilter{ActorID: "alice"})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}

	start := now.Add(-90 * time.Minute)
	events, err = store.Query(ctx, QueryFilter{StartTime: &start})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events in window, got %d", len(events))
	}
}

func TestDuckDBStoreDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Save(ctx, testEvent("old", EventTypeAuthSuccess, now.Add(-48*time.Hour))); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, testEvent("new", EventTypeAuthSuccess, now)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	deleted, err := store.Delete(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}

	count, err := store.Count(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 remaining, got %d", count)
	}
}

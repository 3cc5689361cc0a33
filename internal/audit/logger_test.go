// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/servicefield/evoapi/internal/models"
)

// memoryStore is a Store for tests.
type memoryStore struct {
	mu     sync.Mutex
	events []Event
}

func (m *memoryStore) Save(_ context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

func (m *memoryStore) Get(_ context.Context, id string) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		if m.events[i].ID == id {
			e := m.events[i]
			return &e, nil
		}
	}
	return nil, context.Canceled
}

func (m *memoryStore) Query(_ context.Context, _ QueryFilter) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out, nil
}

func (m *memoryStore) Count(_ context.Context, _ QueryFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.events)), nil
}

func (m *memoryStore) Delete(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (m *memoryStore) saved() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

func TestLoggerWritesEvents(t *testing.T) {
	store := &memoryStore{}
	logger := NewLogger(store, nil)

	logger.LogAuthSuccess("alice", "10.0.0.1", "test-agent", "req-1")
	logger.LogAuthFailure("mallory", "10.0.0.2", "test-agent", "req-2", "bad password")

	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	events := store.saved()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != EventTypeAuthSuccess {
		t.Errorf("expected auth.success, got %s", events[0].Type)
	}
	if events[0].ID == "" || events[0].Timestamp.IsZero() {
		t.Error("expected ID and timestamp to be filled in")
	}
	if events[1].Outcome != OutcomeFailure {
		t.Errorf("expected failure outcome, got %s", events[1].Outcome)
	}
}

func TestLoggerDisabled(t *testing.T) {
	store := &memoryStore{}
	cfg := DefaultConfig()
	cfg.Enabled = false
	logger := NewLogger(store, cfg)

	logger.LogAuthSuccess("alice", "10.0.0.1", "", "")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if len(store.saved()) != 0 {
		t.Error("expected no events when disabled")
	}
}

func TestLoggerSeverityFilter(t *testing.T) {
	store := &memoryStore{}
	cfg := DefaultConfig()
	cfg.LogLevel = SeverityWarning
	logger := NewLogger(store, cfg)

	// Info is below the configured minimum and must be dropped.
	logger.LogAuthSuccess("alice", "10.0.0.1", "", "")
	logger.LogAuthFailure("mallory", "10.0.0.2", "", "", "bad password")

	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	events := store.saved()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != EventTypeAuthFailure {
		t.Errorf("expected auth.failure to survive the filter, got %s", events[0].Type)
	}
}

func TestLoggerDebugFilteredByDefault(t *testing.T) {
	store := &memoryStore{}
	logger := NewLogger(store, nil)

	// Check-in ticks log at debug and are excluded unless IncludeDebug.
	logger.LogCheckinTick(3, 3, nil)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if len(store.saved()) != 0 {
		t.Error("expected debug tick to be filtered out")
	}
}

func TestLogSyncPassOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		result  models.SyncResult
		outcome Outcome
	}{
		{
			name:    "all succeeded",
			result:  models.SyncResult{TotalUsersProcessed: 5, SuccessfulUpdates: 5},
			outcome: OutcomeSuccess,
		},
		{
			name:    "partial failure",
			result:  models.SyncResult{TotalUsersProcessed: 5, SuccessfulUpdates: 3, Errors: 2},
			outcome: OutcomePartial,
		},
		{
			name:    "total failure",
			result:  models.SyncResult{TotalUsersProcessed: 5, Errors: 5},
			outcome: OutcomeFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memoryStore{}
			logger := NewLogger(store, nil)

			result := tt.result
			logger.LogSyncPass(&result, "scheduled")
			if err := logger.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			events := store.saved()
			if len(events) != 1 {
				t.Fatalf("expected 1 event, got %d", len(events))
			}
			if events[0].Outcome != tt.outcome {
				t.Errorf("expected outcome %s, got %s", tt.outcome, events[0].Outcome)
			}
		})
	}
}

func TestLoggerDropsWhenBufferFull(t *testing.T) {
	// A nil store with buffer size 1 and a blocked writer cannot
	// happen here; instead verify a full channel drops instead of
	// blocking by filling the buffer before the writer drains it.
	store := &memoryStore{}
	cfg := DefaultConfig()
	cfg.BufferSize = 1
	logger := NewLogger(store, cfg)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			logger.LogAuthSuccess("alice", "10.0.0.1", "", "")
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Log blocked on a full buffer")
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

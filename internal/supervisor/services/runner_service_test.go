// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// mockRunner implements Runner for tests.
type mockRunner struct {
	startErr error
	stopErr  error
	starts   atomic.Int32
	stops    atomic.Int32
}

func (m *mockRunner) Start(_ context.Context) error {
	m.starts.Add(1)
	return m.startErr
}

func (m *mockRunner) Stop() error {
	m.stops.Add(1)
	return m.stopErr
}

func TestRunnerServiceLifecycle(t *testing.T) {
	runner := &mockRunner{}
	svc := NewRunnerService(runner, "nightly-sync")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if runner.starts.Load() != 1 || runner.stops.Load() != 1 {
		t.Errorf("expected 1 start and 1 stop, got %d/%d", runner.starts.Load(), runner.stops.Load())
	}
}

func TestRunnerServiceStartFailure(t *testing.T) {
	runner := &mockRunner{startErr: errors.New("already running")}
	svc := NewRunnerService(runner, "checkin")

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, runner.startErr) {
		t.Errorf("expected start error, got %v", err)
	}
	if runner.stops.Load() != 0 {
		t.Error("Stop must not be called when Start fails")
	}
}

func TestRunnerServiceName(t *testing.T) {
	svc := NewRunnerService(&mockRunner{}, "nightly-sync")
	if svc.String() != "nightly-sync" {
		t.Errorf("unexpected name %q", svc.String())
	}
}

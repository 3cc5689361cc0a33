// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package services

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

// mockServer implements HTTPServer for tests.
type mockServer struct {
	listenErr    error
	shutdownErr  error
	shutdowns    atomic.Int32
	listenDone   chan struct{}
	shutdownDone chan struct{}
}

func newMockServer() *mockServer {
	return &mockServer{
		listenDone:   make(chan struct{}),
		shutdownDone: make(chan struct{}),
	}
}

func (m *mockServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	// Block like a real server until Shutdown.
	<-m.shutdownDone
	return http.ErrServerClosed
}

func (m *mockServer) Shutdown(_ context.Context) error {
	m.shutdowns.Add(1)
	close(m.shutdownDone)
	return m.shutdownErr
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	server := newMockServer()
	svc := NewHTTPService(server, time.Second)

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

	if server.shutdowns.Load() != 1 {
		t.Errorf("expected 1 shutdown call, got %d", server.shutdowns.Load())
	}
}

func TestHTTPServiceListenFailure(t *testing.T) {
	server := newMockServer()
	server.listenErr = errors.New("bind: address already in use")
	svc := NewHTTPService(server, time.Second)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, server.listenErr) {
		t.Errorf("expected listen error, got %v", err)
	}
}

func TestHTTPServiceName(t *testing.T) {
	svc := NewHTTPService(newMockServer(), 0)
	if svc.String() != "http-server" {
		t.Errorf("unexpected name %q", svc.String())
	}
}

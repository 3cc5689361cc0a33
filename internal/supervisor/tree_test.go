// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/servicefield/evoapi/internal/logging"
)

// blockingService runs until its context is cancelled.
type blockingService struct {
	served atomic.Int32
}

func (s *blockingService) Serve(ctx context.Context) error {
	s.served.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func (s *blockingService) String() string { return "blocking" }

func TestTreeServeAndShutdown(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), DefaultTreeConfig())

	dataSvc := &blockingService{}
	jobSvc := &blockingService{}
	apiSvc := &blockingService{}
	tree.AddDataService(dataSvc)
	tree.AddJobService(jobSvc)
	tree.AddAPIService(apiSvc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	// Wait for all services to come up.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if dataSvc.served.Load() > 0 && jobSvc.served.Load() > 0 && apiSvc.served.Load() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if dataSvc.served.Load() == 0 || jobSvc.served.Load() == 0 || apiSvc.served.Load() == 0 {
		t.Fatal("not all services started")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected terminal error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop after cancel")
	}
}

func TestTreeConfigDefaults(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), TreeConfig{})
	if tree.config.FailureThreshold != 5.0 {
		t.Errorf("expected default threshold 5.0, got %v", tree.config.FailureThreshold)
	}
	if tree.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected default shutdown timeout 10s, got %v", tree.config.ShutdownTimeout)
	}
}

// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package services

import (
	"context"
	"fmt"
)

// Runner matches the Start/Stop lifecycle of the sync and check-in
// runners in internal/sync.
type Runner interface {
	Start(ctx context.Context) error
	Stop() error
}

// RunnerService adapts a Start/Stop runner to suture's Serve pattern:
// start the runner, block until the context ends, then stop and wait
// for the runner's goroutine to drain.
type RunnerService struct {
	runner Runner
	name   string
}

// NewRunnerService creates the wrapper. The name shows up in
// supervisor logs.
func NewRunnerService(runner Runner, name string) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// Serve implements suture.Service.
func (s *RunnerService) Serve(ctx context.Context) error {
	if err := s.runner.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}

	<-ctx.Done()

	if err := s.runner.Stop(); err != nil {
		return fmt.Errorf("%s stop failed: %w", s.name, err)
	}
	return ctx.Err()
}

// String identifies the service in supervisor logs.
func (s *RunnerService) String() string {
	return s.name
}

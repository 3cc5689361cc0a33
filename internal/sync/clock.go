// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

// Package sync implements the two background loops at the heart of
// EvoAPI: the nightly Fleetmatics vehicle-assignment sync and the
// periodic time-tracking check-in recorder, plus the orchestrator that
// runs one sync pass.
package sync

import (
	"context"
	"time"
)

// Clock abstracts wall-clock reads and cancellable sleeps so the
// runners can be tested without real waiting.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is cancelled, returning ctx's
	// error in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// NewClock returns the wall-clock implementation.
func NewClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextDailyRun computes the next occurrence of the configured
// hour-of-day. When now is at or past today's occurrence the run moves
// to tomorrow, so a pass never fires twice for the same occurrence.
func NextDailyRun(now time.Time, hour int) time.Time {
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !now.Before(target) {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

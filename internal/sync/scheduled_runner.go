// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/servicefield/evoapi/internal/audit"
	"github.com/servicefield/evoapi/internal/config"
	"github.com/servicefield/evoapi/internal/logging"
	"github.com/servicefield/evoapi/internal/models"
)

// Syncer runs one sync pass. Implemented by Orchestrator.
type Syncer interface {
	SyncAll(ctx context.Context) (*models.SyncResult, error)
}

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 30 * time.Minute
)

// ScheduledRunner drives the nightly sync. Each cycle it computes the
// next occurrence of the configured hour, sleeps until then, runs one
// pass, and on failure retries a bounded number of times with a fixed
// delay. Exhausted retries abandon the occurrence; there are no
// catch-up runs.
type ScheduledRunner struct {
	syncer  Syncer
	clock   Clock
	auditor *audit.Logger

	syncHour      int
	retryAttempts int
	retryDelay    time.Duration

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	doneCh     chan struct{}
	nextRun    time.Time
	lastResult *models.SyncResult
}

// NewScheduledRunner creates the nightly sync runner.
func NewScheduledRunner(syncer Syncer, clock Clock, auditor *audit.Logger, cfg *config.FleetmaticsConfig) *ScheduledRunner {
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	return &ScheduledRunner{
		syncer:        syncer,
		clock:         clock,
		auditor:       auditor,
		syncHour:      cfg.SyncHour,
		retryAttempts: attempts,
		retryDelay:    delay,
	}
}

// Start begins the scheduling loop.
func (r *ScheduledRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("scheduled sync runner already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.running = true
	r.cancel = cancel
	r.doneCh = make(chan struct{})

	logging.Info().Int("sync_hour", r.syncHour).Msg("Starting scheduled vehicle sync runner")
	go r.run(ctx)
	return nil
}

// Stop cancels the loop and waits for it to exit.
func (r *ScheduledRunner) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel, done := r.cancel, r.doneCh
	r.mu.Unlock()

	cancel()
	<-done

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	logging.Info().Msg("Scheduled vehicle sync runner stopped")
	return nil
}

// NextRun returns the next scheduled run time. Zero before Start.
func (r *ScheduledRunner) NextRun() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextRun
}

// LastResult returns the most recent completed pass, or nil.
func (r *ScheduledRunner) LastResult() *models.SyncResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastResult
}

// SyncHour returns the configured hour-of-day.
func (r *ScheduledRunner) SyncHour() int {
	return r.syncHour
}

func (r *ScheduledRunner) run(ctx context.Context) {
	defer close(r.doneCh)

	for {
		now := r.clock.Now()
		next := NextDailyRun(now, r.syncHour)

		r.mu.Lock()
		r.nextRun = next
		r.mu.Unlock()

		logging.Info().Time("next_run", next).Msg("Waiting for next scheduled sync")
		if err := r.clock.Sleep(ctx, next.Sub(now)); err != nil {
			return
		}

		if runGuarded("nightly-sync", func() { r.runWithRetries(ctx) }) {
			if err := r.clock.Sleep(ctx, panicCooldown); err != nil {
				return
			}
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// runWithRetries attempts one scheduled occurrence, retrying a failed
// pass up to the configured bound. Exhausting retries abandons the
// occurrence until tomorrow.
func (r *ScheduledRunner) runWithRetries(ctx context.Context) {
	for attempt := 1; attempt <= r.retryAttempts; attempt++ {
		result, err := r.syncer.SyncAll(ctx)
		if err == nil {
			r.mu.Lock()
			r.lastResult = result
			r.mu.Unlock()
			if r.auditor != nil {
				r.auditor.LogSyncPass(result, "scheduled")
			}
			return
		}

		if ctx.Err() != nil {
			return
		}

		logging.Error().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", r.retryAttempts).
			Msg("Scheduled sync pass failed")

		if attempt == r.retryAttempts {
			logging.Error().Msg("Sync retries exhausted, abandoning until next scheduled run")
			if r.auditor != nil {
				r.auditor.Log(&audit.Event{
					Type:        audit.EventTypeSyncPass,
					Severity:    audit.SeverityError,
					Outcome:     audit.OutcomeFailure,
					Actor:       audit.Actor{ID: "vehicle-sync", Type: "system", Name: "vehicle-sync"},
					Action:      "scheduled",
					Description: fmt.Sprintf("Sync abandoned after %d attempts: %v", r.retryAttempts, err),
				})
			}
			return
		}

		if err := r.clock.Sleep(ctx, r.retryDelay); err != nil {
			return
		}
	}
}

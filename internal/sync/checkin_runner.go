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
	"github.com/servicefield/evoapi/internal/metrics"
	"github.com/servicefield/evoapi/internal/models"
)

// CheckinStore defines the database operations required by the
// check-in runner.
type CheckinStore interface {
	ListOpenSessions(ctx context.Context, since time.Time, exemptOrgID int) ([]models.OpenSession, error)
	InsertTrackingDetail(ctx context.Context, detail models.TrackingDetail) error
}

const (
	// discoveryRetryDelay is the short wait after a failed open-session
	// query before the tick is retried.
	discoveryRetryDelay = time.Minute

	defaultLookback = 24 * time.Hour
)

// CheckinRunner appends one periodic tracking record per open
// time-tracking session on a fixed interval. The interval comes from
// configuration already clamped to [1,60] minutes.
type CheckinRunner struct {
	store   CheckinStore
	clock   Clock
	auditor *audit.Logger

	interval     time.Duration
	startupDelay time.Duration
	lookback     time.Duration
	exemptOrgID  int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// NewCheckinRunner creates the periodic check-in runner.
func NewCheckinRunner(store CheckinStore, clock Clock, auditor *audit.Logger, cfg *config.TimeTrackingConfig) *CheckinRunner {
	lookback := cfg.Lookback()
	if lookback <= 0 {
		lookback = defaultLookback
	}
	interval := cfg.CheckinInterval()
	if interval <= 0 {
		// Config validation clamps this; guard against a raw config.
		interval = time.Duration(config.DefaultCheckinIntervalMinutes) * time.Minute
	}

	return &CheckinRunner{
		store:        store,
		clock:        clock,
		auditor:      auditor,
		interval:     interval,
		startupDelay: cfg.StartupDelay,
		lookback:     lookback,
		exemptOrgID:  cfg.ExemptOrgID,
	}
}

// Start begins the check-in loop.
func (r *CheckinRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("checkin runner already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.running = true
	r.cancel = cancel
	r.doneCh = make(chan struct{})

	logging.Info().
		Dur("interval", r.interval).
		Dur("startup_delay", r.startupDelay).
		Msg("Starting periodic check-in runner")
	go r.run(ctx)
	return nil
}

// Stop cancels the loop and waits for it to exit.
func (r *CheckinRunner) Stop() error {
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

	logging.Info().Msg("Periodic check-in runner stopped")
	return nil
}

func (r *CheckinRunner) run(ctx context.Context) {
	defer close(r.doneCh)

	if r.startupDelay > 0 {
		if err := r.clock.Sleep(ctx, r.startupDelay); err != nil {
			return
		}
	}

	for {
		delay := r.interval
		var tickErr error
		if runGuarded("checkin-loop", func() { tickErr = r.tick(ctx) }) {
			delay = panicCooldown
		} else if tickErr != nil {
			// Discovery failure: retry sooner than the full interval.
			logging.Error().Err(tickErr).Msg("Check-in tick failed")
			delay = discoveryRetryDelay
		}

		if err := r.clock.Sleep(ctx, delay); err != nil {
			return
		}
	}
}

// tick runs one pass: find open sessions and append one tracking
// record each. A single insert failure does not stop the rest of the
// tick; a discovery failure aborts the tick and is returned.
func (r *CheckinRunner) tick(ctx context.Context) error {
	now := r.clock.Now()

	sessions, err := r.store.ListOpenSessions(ctx, now.Add(-r.lookback), r.exemptOrgID)
	if err != nil {
		metrics.CheckinTicks.WithLabelValues("error").Inc()
		if r.auditor != nil {
			r.auditor.LogCheckinTick(0, 0, err)
		}
		return fmt.Errorf("failed to list open sessions: %w", err)
	}

	records := 0
	for _, session := range sessions {
		detail := models.TrackingDetail{
			UserID:      session.UserID,
			Kind:        session.Kind,
			WorkOrderID: session.WorkOrderID,
			DetailType:  detailTypeFor(session.Kind),
			RecordedAt:  now.UTC(),
		}
		if err := r.store.InsertTrackingDetail(ctx, detail); err != nil {
			logging.Error().
				Err(err).
				Int("user_id", session.UserID).
				Msg("Failed to insert tracking detail")
			continue
		}
		records++
	}

	metrics.CheckinTicks.WithLabelValues("ok").Inc()
	metrics.CheckinRecords.Add(float64(records))
	if r.auditor != nil {
		r.auditor.LogCheckinTick(len(sessions), records, nil)
	}

	if len(sessions) > 0 {
		logging.Debug().
			Int("sessions", len(sessions)).
			Int("records", records).
			Msg("Check-in tick complete")
	}
	return nil
}

// detailTypeFor maps a session kind to the tracking detail type tag.
func detailTypeFor(kind models.SessionKind) string {
	if kind == models.SessionCheckedIn {
		return "checkin_interval"
	}
	return "clockin_interval"
}

// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/servicefield/evoapi/internal/fleetmatics"
	"github.com/servicefield/evoapi/internal/logging"
	"github.com/servicefield/evoapi/internal/metrics"
	"github.com/servicefield/evoapi/internal/models"
)

// SyncStore defines the database operations required by the
// orchestrator.
type SyncStore interface {
	ListSyncEligibleUsers(ctx context.Context) ([]models.User, error)
	UpdateUserVehicle(ctx context.Context, userID int, vehicle *string) error
}

// Orchestrator runs one vehicle-assignment sync pass: list eligible
// users, look up each one's current assignment, persist changes.
//
// Users are visited strictly sequentially in employee-number order so
// repeated passes are reproducible for audit comparison, and so the
// vendor API is never hit concurrently from one pass.
type Orchestrator struct {
	store  SyncStore
	client fleetmatics.AssignmentClient
}

// NewOrchestrator creates a sync orchestrator.
func NewOrchestrator(store SyncStore, client fleetmatics.AssignmentClient) *Orchestrator {
	return &Orchestrator{store: store, client: client}
}

// SyncAll runs one pass over all eligible users. One user's failure
// never stops processing of the remainder; failures accumulate in the
// result. The returned error is non-nil only when the pass could not
// run at all (the eligible-user query failed), which is what triggers
// the scheduled runner's retry policy.
func (o *Orchestrator) SyncAll(ctx context.Context) (*models.SyncResult, error) {
	start := time.Now()

	users, err := o.store.ListSyncEligibleUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync eligible users: %w", err)
	}

	result := &models.SyncResult{Timestamp: start.UTC()}
	logging.Info().Int("eligible_users", len(users)).Msg("Starting vehicle assignment sync pass")

	for _, user := range users {
		result.TotalUsersProcessed++
		o.syncUser(ctx, user, result)
	}

	result.Duration = time.Since(start)
	metrics.ObserveSyncPass(result.Duration, result.TotalUsersProcessed, result.SuccessfulUpdates, result.Errors)

	logging.Info().
		Int("processed", result.TotalUsersProcessed).
		Int("updated", result.SuccessfulUpdates).
		Int("errors", result.Errors).
		Dur("duration", result.Duration).
		Msg("Vehicle assignment sync pass complete")

	return result, nil
}

// syncUser processes a single user, recording any failure in result.
func (o *Orchestrator) syncUser(ctx context.Context, user models.User, result *models.SyncResult) {
	if strings.TrimSpace(user.EmployeeNumber) == "" {
		// The eligibility query excludes these; guard anyway.
		logging.Warn().Str("username", user.Username).Msg("Skipping user with blank employee number")
		return
	}

	assignment, err := o.client.CurrentAssignment(ctx, user.EmployeeNumber)
	if err != nil {
		result.AddError(fmt.Sprintf("user %s (employee %s): assignment lookup failed: %v",
			user.Username, user.EmployeeNumber, err))
		return
	}

	if assignment == nil || strings.TrimSpace(assignment.VehicleNumber) == "" {
		// No current assignment or degraded vendor data: neither a
		// success nor an error.
		logging.Debug().
			Str("employee_number", user.EmployeeNumber).
			Msg("No current assignment for user")
		return
	}

	vehicle := strings.TrimSpace(assignment.VehicleNumber)
	if user.VehicleNumber != nil && *user.VehicleNumber == vehicle {
		// Already up to date; a repeat pass with unchanged vendor data
		// is a no-op.
		return
	}

	if err := o.store.UpdateUserVehicle(ctx, user.ID, &vehicle); err != nil {
		result.AddError(fmt.Sprintf("user %s (employee %s): failed to persist vehicle %s: %v",
			user.Username, user.EmployeeNumber, vehicle, err))
		return
	}

	result.SuccessfulUpdates++
	logging.Info().
		Str("username", user.Username).
		Str("employee_number", user.EmployeeNumber).
		Str("vehicle", vehicle).
		Msg("Updated vehicle assignment")
}

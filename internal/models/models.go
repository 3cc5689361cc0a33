// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

// Package models defines the domain types shared between the database,
// sync, and API layers.
package models

import (
	"time"
)

// User is a service technician or office user record.
//
// A user is eligible for Fleetmatics vehicle-assignment sync only when
// Active is true and EmployeeNumber is non-blank.
type User struct {
	ID             int     `json:"id"`
	Username       string  `json:"username"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	EmployeeNumber string  `json:"employee_number"`
	VehicleNumber  *string `json:"vehicle_number,omitempty"`
	OrgID          int     `json:"org_id"`
	Active         bool    `json:"active"`
}

// DriverAssignment is a vehicle assignment reported by the vendor for a
// single driver. Transient: only VehicleNumber is persisted, onto the
// user record.
type DriverAssignment struct {
	DriverNumber  string     `json:"DriverNumber"`
	VehicleNumber string     `json:"VehicleNumber"`
	StartDateUTC  *time.Time `json:"StartDateUTC,omitempty"`
}

// SyncResult aggregates the outcome of one vehicle-assignment sync pass.
// It is built incrementally during the pass and immutable afterwards.
// Results are logged and audited, never persisted.
type SyncResult struct {
	// TotalUsersProcessed counts every eligible user visited, including
	// users skipped because the vendor reported no assignment.
	TotalUsersProcessed int `json:"total_users_processed"`

	// SuccessfulUpdates counts vehicle numbers written to the store.
	SuccessfulUpdates int `json:"successful_updates"`

	// Errors counts per-user failures (lookup or persistence).
	Errors int `json:"errors"`

	// ErrorMessages holds one readable message per failure, in the order
	// the failures occurred, each naming the affected user.
	ErrorMessages []string `json:"error_messages,omitempty"`

	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// AddError records a per-user failure without aborting the pass.
func (r *SyncResult) AddError(msg string) {
	r.Errors++
	r.ErrorMessages = append(r.ErrorMessages, msg)
}

// SessionKind is the kind of an open time-tracking session.
type SessionKind string

const (
	// SessionClockedIn is a plain shift clock-in.
	SessionClockedIn SessionKind = "clocked_in"

	// SessionCheckedIn is a work-order check-in. When a user has both an
	// open clock-in and an open check-in, the check-in wins.
	SessionCheckedIn SessionKind = "checked_in"
)

// Priority orders session kinds for selection; higher wins.
func (k SessionKind) Priority() int {
	if k == SessionCheckedIn {
		return 2
	}
	return 1
}

// Valid reports whether k is a known session kind.
func (k SessionKind) Valid() bool {
	return k == SessionClockedIn || k == SessionCheckedIn
}

// OpenSession is a live time-tracking session: started within the
// look-back window and not yet ended. At most one is selected per user
// per check-in tick.
type OpenSession struct {
	UserID      int         `json:"user_id"`
	Kind        SessionKind `json:"session_type"`
	WorkOrderID *int        `json:"work_order_id,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
}

// TrackingDetail is one periodic tracking record appended per open
// session per check-in tick. Rows are append-only.
type TrackingDetail struct {
	UserID      int         `json:"user_id"`
	Kind        SessionKind `json:"session_type"`
	WorkOrderID *int        `json:"work_order_id,omitempty"`
	Latitude    *float64    `json:"lat,omitempty"`
	Longitude   *float64    `json:"lon,omitempty"`
	DetailType  string      `json:"detail_type"`
	RecordedAt  time.Time   `json:"recorded_at"`
}

// WorkOrder is the thin DTO for the pass-through work-order endpoints.
type WorkOrder struct {
	ID          int        `json:"id"`
	Number      string     `json:"number"`
	CustomerID  int        `json:"customer_id"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	AssignedTo  *int       `json:"assigned_to,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// SyncStatus is the operator-facing snapshot of the nightly sync
// schedule, served by the status endpoint.
type SyncStatus struct {
	Enabled    bool        `json:"enabled"`
	SyncHour   int         `json:"sync_hour"`
	NextRun    *time.Time  `json:"next_run,omitempty"`
	LastResult *SyncResult `json:"last_result,omitempty"`
}

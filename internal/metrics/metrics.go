// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

// Package metrics provides Prometheus metrics for EvoAPI, exposed at
// /metrics in Prometheus text format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API endpoint metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Vehicle-assignment sync metrics
	SyncPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetmatics_sync_duration_seconds",
			Help:    "Duration of a full vehicle-assignment sync pass",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	SyncUsersProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetmatics_sync_users_processed_total",
			Help: "Total eligible users visited across all sync passes",
		},
	)

	SyncUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetmatics_sync_updates_total",
			Help: "Total vehicle-number updates persisted",
		},
	)

	SyncErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetmatics_sync_errors_total",
			Help: "Total per-user sync failures",
		},
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetmatics_sync_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful sync pass",
		},
	)

	// Vendor API client metrics
	VendorRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetmatics_vendor_requests_total",
			Help: "Total Fleetmatics API requests",
		},
		[]string{"operation", "outcome"}, // outcome: success, degraded, error
	)

	VendorTokenRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetmatics_token_refreshes_total",
			Help: "Total vendor bearer-token refreshes performed",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Circuit breaker request outcomes",
		},
		[]string{"name", "result"}, // result: success, failure, rejected
	)

	// Periodic check-in metrics
	CheckinTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timetracking_checkin_ticks_total",
			Help: "Total periodic check-in ticks",
		},
		[]string{"outcome"}, // outcome: ok, discovery_error
	)

	CheckinRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "timetracking_checkin_records_total",
			Help: "Total tracking detail records written by the check-in loop",
		},
	)

	// Audit metrics
	AuditEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_events_dropped_total",
			Help: "Audit events dropped because the write buffer was full",
		},
	)
)

// ObserveSyncPass records the outcome of one sync pass.
func ObserveSyncPass(duration time.Duration, processed, updated, errors int) {
	SyncPassDuration.Observe(duration.Seconds())
	SyncUsersProcessed.Add(float64(processed))
	SyncUpdates.Add(float64(updated))
	SyncErrors.Add(float64(errors))
	if errors == 0 {
		SyncLastSuccess.SetToCurrentTime()
	}
}

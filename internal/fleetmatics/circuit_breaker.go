// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package fleetmatics

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/servicefield/evoapi/internal/config"
	"github.com/servicefield/evoapi/internal/logging"
	"github.com/servicefield/evoapi/internal/metrics"
	"github.com/servicefield/evoapi/internal/models"
)

// BreakerClient wraps Client with a circuit breaker so a vendor outage
// trips fast instead of timing out once per user in a batch. Degraded
// lookups that return (nil, nil) count as successes; only
// authentication and transport errors count against the breaker.
//
// The breaker uses real time for its interval and timeout. Tests
// should exercise the wrapped Client directly.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[*models.DriverAssignment]
	name   string
}

// NewBreakerClient creates a Client protected by a circuit breaker.
// The breaker opens after a 60% failure rate over at least 10 requests
// in a 1 minute window, and probes again after 2 minutes.
func NewBreakerClient(cfg *config.FleetmaticsConfig) *BreakerClient {
	client := NewClient(cfg)
	cbName := "fleetmatics-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[*models.DriverAssignment](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &BreakerClient{client: client, cb: cb, name: cbName}
}

// CurrentAssignment implements AssignmentClient through the breaker.
func (b *BreakerClient) CurrentAssignment(ctx context.Context, employeeNumber string) (*models.DriverAssignment, error) {
	result, err := b.cb.Execute(func() (*models.DriverAssignment, error) {
		return b.client.CurrentAssignment(ctx, employeeNumber)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Assignment lookup rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	return result, nil
}

// Ping verifies vendor credentials through the underlying client.
func (b *BreakerClient) Ping(ctx context.Context) error {
	return b.client.Ping(ctx)
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

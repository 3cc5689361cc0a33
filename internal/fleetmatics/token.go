// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

// Package fleetmatics implements the Fleetmatics REST client used by
// the nightly vehicle-assignment sync: bearer token acquisition with
// caching, per-driver assignment lookup, and a circuit breaker wrapper.
package fleetmatics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/servicefield/evoapi/internal/logging"
	"github.com/servicefield/evoapi/internal/metrics"
)

const (
	// defaultTokenValidity is assumed when the vendor does not supply
	// an expiry with the token. Observed vendor tokens live ~30
	// minutes; 20 keeps a wide margin.
	defaultTokenValidity = 20 * time.Minute

	// tokenRefreshBuffer forces a refresh slightly before expiry so a
	// token never goes stale mid-request.
	tokenRefreshBuffer = 2 * time.Minute
)

// tokenFetcher performs one network authentication round-trip.
type tokenFetcher func(ctx context.Context) (string, error)

// TokenCache holds a single bearer token and serializes refreshes.
// Every caller takes the same mutex, so at most one fetch is in
// flight; late arrivals observe the freshly cached value. The cache is
// memory-only and discarded on restart.
type TokenCache struct {
	mu        sync.Mutex
	fetch     tokenFetcher
	token     string
	expiresAt time.Time
	validity  time.Duration
	now       func() time.Time
}

// NewTokenCache creates a cache around the given fetch function.
func NewTokenCache(fetch tokenFetcher) *TokenCache {
	return &TokenCache{
		fetch:    fetch,
		validity: defaultTokenValidity,
		now:      time.Now,
	}
}

// Token returns the cached token while it is still fresh, otherwise
// performs one authentication call and caches the result. Errors from
// the fetch are returned as-is; retry is the caller's responsibility.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && now.Before(c.expiresAt.Add(-tokenRefreshBuffer)) {
		return c.token, nil
	}

	token, err := c.fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}
	if token == "" {
		return "", fmt.Errorf("token refresh returned empty token")
	}

	c.token = token
	c.expiresAt = now.Add(c.validity)
	metrics.VendorTokenRefreshes.Inc()
	logging.Debug().Time("expires_at", c.expiresAt).Msg("Fleetmatics token refreshed")

	return c.token, nil
}

// Invalidate discards the cached token so the next call refreshes.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}

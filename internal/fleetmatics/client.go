// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package fleetmatics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/servicefield/evoapi/internal/config"
	"github.com/servicefield/evoapi/internal/logging"
	"github.com/servicefield/evoapi/internal/metrics"
	"github.com/servicefield/evoapi/internal/models"
)

// maxErrorBodySize bounds how much of a response body is read for
// error reporting.
const maxErrorBodySize = 64 * 1024

// AssignmentClient is the lookup contract consumed by the sync
// orchestrator. Implemented by Client and by BreakerClient.
type AssignmentClient interface {
	// CurrentAssignment returns the driver's current assignment, or
	// (nil, nil) when the vendor has no usable data for the driver.
	CurrentAssignment(ctx context.Context, employeeNumber string) (*models.DriverAssignment, error)
}

// Client talks to the Fleetmatics REST API.
//
// Error policy: only vendor authentication failures and genuine
// transport errors surface as errors. Bad per-driver data (non-200
// status, empty body, malformed JSON) degrades to a nil assignment
// with a warning, because partial vendor data availability is expected
// and must not block the rest of a batch.
//
// Thread safety: safe for concurrent use. The bearer token is the only
// shared mutable state and lives behind the TokenCache gate.
type Client struct {
	cfg     *config.FleetmaticsConfig
	client  *http.Client
	tokens  *TokenCache
	limiter *rate.Limiter
}

// NewClient creates a Fleetmatics API client. Configuration is not
// validated here; a missing base URL or credential surfaces as an
// error on first use.
func NewClient(cfg *config.FleetmaticsConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		// The vendor rate-limits per app id; 2 req/s with a small
		// burst keeps a sequential batch well under it.
		limiter: rate.NewLimiter(rate.Limit(2), 4),
	}
	c.tokens = NewTokenCache(c.fetchToken)
	return c
}

func (c *Client) checkConfig() error {
	switch {
	case c.cfg.BaseURL == "":
		return fmt.Errorf("fleetmatics base URL is not configured")
	case c.cfg.Username == "" || c.cfg.Password == "":
		return fmt.Errorf("fleetmatics credentials are not configured")
	case c.cfg.AtmosphereAppID == "":
		return fmt.Errorf("fleetmatics atmosphere app id is not configured")
	}
	return nil
}

// tokenEnvelope is the JSON shape some vendor deployments return from
// the token endpoint; others return the raw token string.
type tokenEnvelope struct {
	AccessToken string `json:"access_token"`
}

// fetchToken performs one Basic-auth round-trip to the token endpoint.
// The body is either a raw token string or a JSON envelope; the first
// non-space byte decides which.
func (c *Client) fetchToken(ctx context.Context) (string, error) {
	if err := c.checkConfig(); err != nil {
		return "", err
	}

	reqURL := strings.TrimRight(c.cfg.BaseURL, "/") + "/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.VendorRequestsTotal.WithLabelValues("token", "error").Inc()
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		metrics.VendorRequestsTotal.WithLabelValues("token", "error").Inc()
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.VendorRequestsTotal.WithLabelValues("token", "error").Inc()
		return "", fmt.Errorf("token endpoint returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	token := strings.TrimSpace(string(body))
	if strings.HasPrefix(token, "{") {
		var envelope tokenEnvelope
		if err := json.Unmarshal([]byte(token), &envelope); err != nil {
			metrics.VendorRequestsTotal.WithLabelValues("token", "error").Inc()
			return "", fmt.Errorf("failed to parse token envelope: %w", err)
		}
		token = envelope.AccessToken
	} else {
		// Some deployments quote the raw token.
		token = strings.Trim(token, `"`)
	}

	if token == "" {
		metrics.VendorRequestsTotal.WithLabelValues("token", "error").Inc()
		return "", fmt.Errorf("token endpoint returned an empty token")
	}

	metrics.VendorRequestsTotal.WithLabelValues("token", "success").Inc()
	return token, nil
}

// CurrentAssignment looks up a driver's current vehicle assignment.
func (c *Client) CurrentAssignment(ctx context.Context, employeeNumber string) (*models.DriverAssignment, error) {
	if strings.TrimSpace(employeeNumber) == "" {
		logging.Warn().Msg("Blank employee number, skipping assignment lookup")
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait cancelled: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/da/v1/driverassignments/drivers/%s/currentassignment",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(employeeNumber))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create assignment request: %w", err)
	}
	req.Header.Set("Authorization",
		fmt.Sprintf("Atmosphere atmosphere_app_id=%s, Bearer %s", c.cfg.AtmosphereAppID, token))
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.VendorRequestsTotal.WithLabelValues("assignment", "error").Inc()
		return nil, fmt.Errorf("assignment request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		metrics.VendorRequestsTotal.WithLabelValues("assignment", "error").Inc()
		return nil, fmt.Errorf("failed to read assignment response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.VendorRequestsTotal.WithLabelValues("assignment", "degraded").Inc()
		logging.Warn().
			Str("employee_number", employeeNumber).
			Int("status", resp.StatusCode).
			Msg("Assignment lookup returned non-success status, treating as no assignment")
		return nil, nil
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
		metrics.VendorRequestsTotal.WithLabelValues("assignment", "degraded").Inc()
		logging.Warn().
			Str("employee_number", employeeNumber).
			Msg("Assignment lookup returned non-JSON body, treating as no assignment")
		return nil, nil
	}

	var assignment models.DriverAssignment
	if err := json.Unmarshal([]byte(trimmed), &assignment); err != nil {
		metrics.VendorRequestsTotal.WithLabelValues("assignment", "degraded").Inc()
		logging.Warn().
			Err(err).
			Str("employee_number", employeeNumber).
			Msg("Failed to parse assignment response, treating as no assignment")
		return nil, nil
	}

	metrics.VendorRequestsTotal.WithLabelValues("assignment", "success").Inc()
	return &assignment, nil
}

// Ping verifies the vendor credentials by forcing a token round-trip.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.tokens.Token(ctx)
	return err
}

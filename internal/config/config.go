// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

// Package config provides layered configuration loading for EvoAPI using
// Koanf v2: built-in defaults, then an optional YAML file, then environment
// variables (highest priority).
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/servicefield/evoapi/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Security     SecurityConfig     `koanf:"security"`
	Fleetmatics  FleetmaticsConfig  `koanf:"fleetmatics"`
	TimeTracking TimeTrackingConfig `koanf:"time_tracking"`
	Audit        AuditConfig        `koanf:"audit"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig holds DuckDB configuration.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// SecurityConfig holds authentication and request-hardening configuration.
type SecurityConfig struct {
	// AuthMode selects the authentication scheme: "jwt" or "none".
	// "none" is intended for development only.
	AuthMode string `koanf:"auth_mode"`

	// JWTSecret is the HMAC secret shared with the legacy token issuer.
	// Tokens minted by the old platform must keep validating here.
	JWTSecret      string        `koanf:"jwt_secret"`
	SessionTimeout time.Duration `koanf:"session_timeout"`

	AdminUsername string `koanf:"admin_username"`
	// AdminPasswordHash is a bcrypt hash; plaintext admin passwords are not
	// accepted in configuration.
	AdminPasswordHash string `koanf:"admin_password_hash"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// FleetmaticsConfig holds vendor API credentials and nightly sync scheduling.
type FleetmaticsConfig struct {
	Enabled bool `koanf:"enabled"`

	BaseURL         string `koanf:"base_url"`
	Username        string `koanf:"username"`
	Password        string `koanf:"password"`
	AtmosphereAppID string `koanf:"atmosphere_app_id"`

	// SyncHour is the local hour-of-day (0-23) at which the nightly
	// vehicle-assignment sync runs. Default: 2.
	SyncHour int `koanf:"sync_hour"`

	// RetryAttempts and RetryDelay bound the retry policy for a failed
	// sync occurrence. Exhausting retries abandons the occurrence until
	// the next day's scheduled run.
	RetryAttempts int           `koanf:"retry_attempts"`
	RetryDelay    time.Duration `koanf:"retry_delay"`

	// RequestTimeout applies to individual vendor HTTP calls.
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// TimeTrackingConfig holds the periodic check-in loop configuration.
type TimeTrackingConfig struct {
	Enabled bool `koanf:"enabled"`

	// SyncIntervalMinutes is the loop interval, clamped to [1,60].
	// Out-of-range values fall back to the default of 15 with a warning.
	SyncIntervalMinutes int `koanf:"sync_interval_minutes"`

	// StartupDelay is how long the loop waits after process start before
	// its first tick, so the host has time to become ready.
	StartupDelay time.Duration `koanf:"startup_delay"`

	// LookbackHours bounds how old an open session may be and still be
	// considered live.
	LookbackHours int `koanf:"lookback_hours"`

	// ExemptOrgID identifies an organization whose users are never
	// tracked. 0 disables the exemption.
	ExemptOrgID int `koanf:"exempt_org_id"`
}

// AuditConfig holds audit logging configuration.
type AuditConfig struct {
	Enabled       bool `koanf:"enabled"`
	BufferSize    int  `koanf:"buffer_size"`
	RetentionDays int  `koanf:"retention_days"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

const (
	// DefaultSyncHour is the default nightly sync hour (02:00 local).
	DefaultSyncHour = 2

	// DefaultCheckinIntervalMinutes is the fallback check-in interval.
	DefaultCheckinIntervalMinutes = 15

	minCheckinIntervalMinutes = 1
	maxCheckinIntervalMinutes = 60
)

// Validate checks that required configuration is present and valid.
// Recoverable misconfiguration (an out-of-range check-in interval) is
// clamped with a warning rather than rejected.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateFleetmatics(); err != nil {
		return err
	}
	c.clampTimeTracking()
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server timeout must be positive, got %s", c.Server.Timeout)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	switch c.Security.AuthMode {
	case "jwt":
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters when AUTH_MODE=jwt")
		}
	case "none":
		logging.Warn().Msg("Authentication disabled (AUTH_MODE=none); do not use in production")
	default:
		return fmt.Errorf("unknown auth mode %q (expected jwt or none)", c.Security.AuthMode)
	}
	return nil
}

func (c *Config) validateFleetmatics() error {
	if c.Fleetmatics.SyncHour < 0 || c.Fleetmatics.SyncHour > 23 {
		return fmt.Errorf("FLEETMATICS_SYNC_HOUR must be 0-23, got %d", c.Fleetmatics.SyncHour)
	}
	if !c.Fleetmatics.Enabled {
		return nil
	}
	if c.Fleetmatics.BaseURL == "" {
		return fmt.Errorf("FLEETMATICS_BASE_URL is required when FLEETMATICS_ENABLED=true")
	}
	if u, err := url.Parse(c.Fleetmatics.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("FLEETMATICS_BASE_URL is not a valid URL: %q", c.Fleetmatics.BaseURL)
	}
	if c.Fleetmatics.Username == "" || c.Fleetmatics.Password == "" {
		return fmt.Errorf("FLEETMATICS_USERNAME and FLEETMATICS_PASSWORD are required when FLEETMATICS_ENABLED=true")
	}
	if c.Fleetmatics.AtmosphereAppID == "" {
		return fmt.Errorf("FLEETMATICS_ATMOSPHERE_APP_ID is required when FLEETMATICS_ENABLED=true")
	}
	return nil
}

// clampTimeTracking forces the check-in interval into [1,60] minutes.
// Bad values are a warning, not a startup failure: the loop must never
// busy-spin, but a misconfigured interval should not take the API down.
func (c *Config) clampTimeTracking() {
	iv := c.TimeTracking.SyncIntervalMinutes
	if iv < minCheckinIntervalMinutes || iv > maxCheckinIntervalMinutes {
		logging.Warn().
			Int("configured", iv).
			Int("effective", DefaultCheckinIntervalMinutes).
			Msg("TIME_TRACKING_SYNC_INTERVAL_MINUTES out of range [1,60], using default")
		c.TimeTracking.SyncIntervalMinutes = DefaultCheckinIntervalMinutes
	}
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid log format %q (expected json or console)", c.Logging.Format)
	}
	return nil
}

// CheckinInterval returns the effective check-in interval as a Duration.
func (c *TimeTrackingConfig) CheckinInterval() time.Duration {
	return time.Duration(c.SyncIntervalMinutes) * time.Minute
}

// Lookback returns the open-session look-back window as a Duration.
func (c *TimeTrackingConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackHours) * time.Hour
}

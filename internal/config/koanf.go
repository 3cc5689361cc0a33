// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/evoapi/config.yaml",
	"/etc/evoapi/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults are
// loaded first, then overridden by config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8240,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/evoapi.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Security: SecurityConfig{
			AuthMode:        "jwt",
			JWTSecret:       "",
			SessionTimeout:  24 * time.Hour,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Fleetmatics: FleetmaticsConfig{
			Enabled:         false,
			BaseURL:         "",
			Username:        "",
			Password:        "",
			AtmosphereAppID: "",
			SyncHour:        DefaultSyncHour,
			RetryAttempts:   3,
			RetryDelay:      30 * time.Minute,
			RequestTimeout:  30 * time.Second,
		},
		TimeTracking: TimeTrackingConfig{
			Enabled:             false,
			SyncIntervalMinutes: DefaultCheckinIntervalMinutes,
			StartupDelay:        time.Minute,
			LookbackHours:       18,
			ExemptOrgID:         0,
		},
		Audit: AuditConfig{
			Enabled:       true,
			BufferSize:    1000,
			RetentionDays: 90,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if present)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when supplied through the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated env strings to slices for
// known slice fields. YAML-supplied slices pass through untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables return "" and are skipped, so random environment
// variables cannot pollute the configuration.
//
// Examples:
//   - FLEETMATICS_SYNC_HOUR -> fleetmatics.sync_hour
//   - TIME_TRACKING_SYNC_INTERVAL_MINUTES -> time_tracking.sync_interval_minutes
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		// Database mappings
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Security mappings
		"auth_mode":           "security.auth_mode",
		"jwt_secret":          "security.jwt_secret",
		"session_timeout":     "security.session_timeout",
		"admin_username":      "security.admin_username",
		"admin_password_hash": "security.admin_password_hash",
		"rate_limit_requests": "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",
		"disable_rate_limit":  "security.rate_limit_disabled",
		"cors_origins":        "security.cors_origins",

		// Fleetmatics mappings
		"fleetmatics_enabled":           "fleetmatics.enabled",
		"fleetmatics_base_url":          "fleetmatics.base_url",
		"fleetmatics_username":          "fleetmatics.username",
		"fleetmatics_password":          "fleetmatics.password",
		"fleetmatics_atmosphere_app_id": "fleetmatics.atmosphere_app_id",
		"fleetmatics_sync_hour":         "fleetmatics.sync_hour",
		"fleetmatics_retry_attempts":    "fleetmatics.retry_attempts",
		"fleetmatics_retry_delay":       "fleetmatics.retry_delay",
		"fleetmatics_request_timeout":   "fleetmatics.request_timeout",

		// Time tracking mappings
		"time_tracking_enabled":               "time_tracking.enabled",
		"time_tracking_sync_interval_minutes": "time_tracking.sync_interval_minutes",
		"time_tracking_startup_delay":         "time_tracking.startup_delay",
		"time_tracking_lookback_hours":        "time_tracking.lookback_hours",
		"time_tracking_exempt_org_id":         "time_tracking.exempt_org_id",

		// Audit mappings
		"audit_enabled":        "audit.enabled",
		"audit_buffer_size":    "audit.buffer_size",
		"audit_retention_days": "audit.retention_days",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

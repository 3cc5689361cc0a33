// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

// Package main is the entry point for the EvoAPI server.
//
// EvoAPI is the REST API of a field-service work order platform. Its
// background jobs keep technician vehicle assignments synchronized
// from the Fleetmatics fleet-tracking vendor (nightly, with retries)
// and append periodic tracking records for open time-tracking
// sessions.
//
// # Startup order
//
//  1. Configuration: Koanf v2 layered loading (defaults, YAML file,
//     environment variables)
//  2. Logging: zerolog, JSON or console format
//  3. Database: DuckDB storage with schema bootstrap
//  4. Audit trail: async audit logger backed by DuckDB
//  5. Fleetmatics client: circuit-breaker wrapped vendor client
//  6. Background runners: nightly sync, periodic check-in loop
//  7. HTTP server: Chi router under a suture supervision tree
//
// # Configuration
//
// Highest priority wins: environment variables, then config.yaml,
// then built-in defaults. Required for the vendor integration:
//
//	export FLEETMATICS_ENABLED=true
//	export FLEETMATICS_BASE_URL=https://fim.us.fleetmatics.com
//	export FLEETMATICS_USERNAME=acme-integration
//	export FLEETMATICS_PASSWORD=secret
//	export FLEETMATICS_ATMOSPHERE_APP_ID=fleetmatics-p-us-xxxx
//
// JWT auth (default mode):
//
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export ADMIN_USERNAME=admin
//	export ADMIN_PASSWORD_HASH='$2a$10$...'
//
// # Signal handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server
// drains in-flight requests, the runners stop at a safe point, and a
// final audit event is flushed before the process exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/servicefield/evoapi/internal/api"
	"github.com/servicefield/evoapi/internal/audit"
	"github.com/servicefield/evoapi/internal/auth"
	"github.com/servicefield/evoapi/internal/config"
	"github.com/servicefield/evoapi/internal/database"
	"github.com/servicefield/evoapi/internal/fleetmatics"
	"github.com/servicefield/evoapi/internal/logging"
	"github.com/servicefield/evoapi/internal/supervisor"
	"github.com/servicefield/evoapi/internal/supervisor/services"
	syncpkg "github.com/servicefield/evoapi/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).Msg("Starting EvoAPI")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close database")
		}
	}()

	auditor, err := initAudit(db, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize audit trail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddDataService(services.NewAuditService(auditor))

	// Fleetmatics vehicle-assignment sync.
	var syncer api.Syncer
	var schedule api.SyncSchedule
	if cfg.Fleetmatics.Enabled {
		client := fleetmatics.NewBreakerClient(&cfg.Fleetmatics)
		if err := client.Ping(ctx); err != nil {
			logging.Warn().Err(err).Msg("Fleetmatics API unreachable at startup (will retry)")
		} else {
			logging.Info().Msg("Connected to Fleetmatics API")
		}

		orchestrator := syncpkg.NewOrchestrator(db, client)
		runner := syncpkg.NewScheduledRunner(orchestrator, syncpkg.NewClock(), auditor, &cfg.Fleetmatics)
		tree.AddJobService(services.NewRunnerService(runner, "nightly-sync"))

		syncer = orchestrator
		schedule = runner
		logging.Info().Int("sync_hour", cfg.Fleetmatics.SyncHour).Msg("Nightly vehicle-assignment sync enabled")
	} else {
		logging.Info().Msg("Fleetmatics integration disabled")
	}

	// Periodic check-in loop for open time-tracking sessions.
	if cfg.TimeTracking.Enabled {
		runner := syncpkg.NewCheckinRunner(db, syncpkg.NewClock(), auditor, &cfg.TimeTracking)
		tree.AddJobService(services.NewRunnerService(runner, "checkin-loop"))
		logging.Info().
			Int("interval_minutes", cfg.TimeTracking.SyncIntervalMinutes).
			Msg("Periodic check-in loop enabled")
	} else {
		logging.Info().Msg("Time-tracking check-in loop disabled")
	}

	// Authentication.
	var jwtManager *auth.JWTManager
	if cfg.Security.AuthMode == "jwt" {
		jwtManager, err = auth.NewJWTManager(&cfg.Security)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
		}
		logging.Info().Msg("JWT authentication enabled")
	} else {
		logging.Warn().Msg("Authentication is DISABLED (AUTH_MODE=none); never use this in production")
		if cfg.Security.JWTSecret != "" {
			// Login still works in dev when a secret is around.
			jwtManager, _ = auth.NewJWTManager(&cfg.Security)
		}
	}
	authMW := auth.NewMiddleware(jwtManager, cfg.Security.AuthMode)

	// HTTP surface.
	handler := api.NewHandler(db, auditor, syncer, schedule, jwtManager, cfg)
	router := api.NewRouter(handler, authMW, &cfg.Security)
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPService(server, 10*time.Second))

	auditor.LogServiceLifecycle(audit.EventTypeServiceStart, "EvoAPI server starting")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	// Best-effort final audit entry, then drain the audit buffer.
	auditor.LogServiceLifecycle(audit.EventTypeServiceStop, "EvoAPI server stopped")
	if err := auditor.Close(); err != nil {
		logging.Error().Err(err).Msg("Failed to close audit logger")
	}

	logging.Info().Msg("EvoAPI stopped gracefully")
}

// initAudit builds the DuckDB-backed async audit logger.
func initAudit(db *database.DB, cfg *config.Config) (*audit.Logger, error) {
	store := audit.NewDuckDBStore(db.Conn())

	ctx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelInit()
	if err := store.CreateTable(ctx); err != nil {
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}

	auditCfg := audit.DefaultConfig()
	auditCfg.Enabled = cfg.Audit.Enabled
	if cfg.Audit.BufferSize > 0 {
		auditCfg.BufferSize = cfg.Audit.BufferSize
	}
	if cfg.Audit.RetentionDays > 0 {
		auditCfg.RetentionDays = cfg.Audit.RetentionDays
	}

	return audit.NewLogger(store, auditCfg), nil
}

// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package services

import (
	"context"

	"github.com/servicefield/evoapi/internal/audit"
)

// AuditService runs the audit retention cleanup loop under the
// supervisor. The audit logger itself is closed by main after the
// tree stops, so the final shutdown events still get written.
type AuditService struct {
	logger *audit.Logger
}

// NewAuditService creates the wrapper.
func NewAuditService(logger *audit.Logger) *AuditService {
	return &AuditService{logger: logger}
}

// Serve implements suture.Service.
func (s *AuditService) Serve(ctx context.Context) error {
	s.logger.StartCleanupRoutine(ctx)
	<-ctx.Done()
	return ctx.Err()
}

// String identifies the service in supervisor logs.
func (s *AuditService) String() string {
	return "audit-cleanup"
}

// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package models

import (
	"time"
)

// APIResponse is the uniform response envelope used by every HTTP
// endpoint, for both success and error outcomes.
//
// Status is "success" or "error". Data carries the payload on success;
// Error carries structured details on failure.
//
// Example:
//
//	{
//	  "status": "success",
//	  "data": {"total": 12, "results": [...]},
//	  "metadata": {"timestamp": "2026-08-28T12:00:00Z", "query_time_ms": 4}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response metadata for observability.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
}

// APIError is the structured error payload inside the envelope.
//
// Common codes: VALIDATION_ERROR, AUTHENTICATION_ERROR, NOT_FOUND,
// DATABASE_ERROR, SYNC_ERROR, RATE_LIMIT_EXCEEDED.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

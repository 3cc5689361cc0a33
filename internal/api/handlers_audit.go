// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package api

import (
	"net/http"

	"github.com/servicefield/evoapi/internal/audit"
)

// AuditEvents queries the audit trail. Filters: type, actor_id,
// start_time, end_time (RFC3339), limit, offset. Newest first.
func (h *Handler) AuditEvents(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if !h.auditor.Enabled() {
		rw.Error(http.StatusServiceUnavailable, ErrCodeInternal, "Audit logging is disabled")
		return
	}

	filter := audit.DefaultQueryFilter()
	if eventType := r.URL.Query().Get("type"); eventType != "" {
		filter.Types = []audit.EventType{audit.EventType(eventType)}
	}
	filter.ActorID = r.URL.Query().Get("actor_id")
	filter.StartTime = queryTime(r, "start_time")
	filter.EndTime = queryTime(r, "end_time")
	if limit := queryInt(r, "limit", 0); limit > 0 && limit <= 1000 {
		filter.Limit = limit
	}
	if offset := queryInt(r, "offset", 0); offset > 0 {
		filter.Offset = offset
	}

	events, err := h.auditor.Query(r.Context(), filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	total, err := h.auditor.Count(r.Context(), filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	rw.Success(map[string]interface{}{
		"total":   total,
		"count":   len(events),
		"offset":  filter.Offset,
		"limit":   filter.Limit,
		"results": events,
	})
}

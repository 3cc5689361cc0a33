// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/servicefield/evoapi/internal/database"
)

// WorkOrders lists work orders with optional status and assignee
// filters. Pagination is offset-based; the store caps the limit.
func (h *Handler) WorkOrders(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	filter := database.WorkOrderFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	}
	if assignedTo := queryInt(r, "assigned_to", 0); assignedTo > 0 {
		filter.AssignedTo = assignedTo
	}

	orders, err := h.store.ListWorkOrders(r.Context(), filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	rw.Success(map[string]interface{}{
		"total":   len(orders),
		"results": orders,
	})
}

// WorkOrderByID fetches one work order.
func (h *Handler) WorkOrderByID(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 1 {
		rw.BadRequest("Work order ID must be a positive integer")
		return
	}

	order, err := h.store.GetWorkOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("Work order not found")
			return
		}
		rw.DatabaseError(err)
		return
	}

	rw.Success(order)
}

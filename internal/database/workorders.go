// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/servicefield/evoapi/internal/models"
)

const workOrderColumns = `id, number, customer_id, description, status, assigned_to, scheduled_at, created_at`

func scanWorkOrder(scanner interface{ Scan(...any) error }) (models.WorkOrder, error) {
	var wo models.WorkOrder
	var assigned sql.NullInt64
	var scheduled sql.NullTime
	err := scanner.Scan(&wo.ID, &wo.Number, &wo.CustomerID, &wo.Description,
		&wo.Status, &assigned, &scheduled, &wo.CreatedAt)
	if err != nil {
		return models.WorkOrder{}, err
	}
	if assigned.Valid {
		id := int(assigned.Int64)
		wo.AssignedTo = &id
	}
	if scheduled.Valid {
		t := scheduled.Time
		wo.ScheduledAt = &t
	}
	return wo, nil
}

// WorkOrderFilter narrows ListWorkOrders. Zero values mean no filter.
type WorkOrderFilter struct {
	Status     string
	AssignedTo int
	Limit      int
	Offset     int
}

// ListWorkOrders returns work orders matching the filter, newest first.
func (db *DB) ListWorkOrders(ctx context.Context, filter WorkOrderFilter) ([]models.WorkOrder, error) {
	query := fmt.Sprintf(`SELECT %s FROM work_orders WHERE 1=1`, workOrderColumns)
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.AssignedTo != 0 {
		query += ` AND assigned_to = ?`
		args = append(args, filter.AssignedTo)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query work orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []models.WorkOrder
	for rows.Next() {
		wo, err := scanWorkOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work order: %w", err)
		}
		orders = append(orders, wo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("work order iteration failed: %w", err)
	}
	return orders, nil
}

// GetWorkOrder returns a single work order or ErrNotFound.
func (db *DB) GetWorkOrder(ctx context.Context, id int) (models.WorkOrder, error) {
	query := fmt.Sprintf(`SELECT %s FROM work_orders WHERE id = ?`, workOrderColumns)

	wo, err := scanWorkOrder(db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.WorkOrder{}, ErrNotFound
	}
	if err != nil {
		return models.WorkOrder{}, fmt.Errorf("failed to get work order %d: %w", id, err)
	}
	return wo, nil
}

// InsertWorkOrder creates a work order row, used by tests and seed
// tooling.
func (db *DB) InsertWorkOrder(ctx context.Context, wo models.WorkOrder) (int, error) {
	var assigned sql.NullInt64
	if wo.AssignedTo != nil {
		assigned = sql.NullInt64{Int64: int64(*wo.AssignedTo), Valid: true}
	}
	var scheduled sql.NullTime
	if wo.ScheduledAt != nil {
		scheduled = sql.NullTime{Time: *wo.ScheduledAt, Valid: true}
	}
	createdAt := wo.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var id int
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO work_orders (number, customer_id, description, status, assigned_to, scheduled_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		wo.Number, wo.CustomerID, wo.Description, wo.Status, assigned, scheduled, createdAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert work order %s: %w", wo.Number, err)
	}
	return id, nil
}

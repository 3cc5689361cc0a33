// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package database

import (
	"context"
	"fmt"
)

// schemaStatements creates the core tables. DuckDB sequences back the
// integer primary keys because the driver does not support
// LastInsertId.
var schemaStatements = []string{
	`CREATE SEQUENCE IF NOT EXISTS seq_users_id START 1`,
	`CREATE SEQUENCE IF NOT EXISTS seq_work_orders_id START 1`,
	`CREATE SEQUENCE IF NOT EXISTS seq_time_tracking_id START 1`,
	`CREATE SEQUENCE IF NOT EXISTS seq_time_tracking_detail_id START 1`,

	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY DEFAULT nextval('seq_users_id'),
		username VARCHAR NOT NULL UNIQUE,
		first_name VARCHAR NOT NULL DEFAULT '',
		last_name VARCHAR NOT NULL DEFAULT '',
		employee_number VARCHAR NOT NULL DEFAULT '',
		vehicle_number VARCHAR,
		org_id INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP NOT NULL DEFAULT current_timestamp,
		updated_at TIMESTAMP NOT NULL DEFAULT current_timestamp
	)`,

	`CREATE TABLE IF NOT EXISTS work_orders (
		id INTEGER PRIMARY KEY DEFAULT nextval('seq_work_orders_id'),
		number VARCHAR NOT NULL DEFAULT '',
		customer_id INTEGER NOT NULL DEFAULT 0,
		description VARCHAR NOT NULL DEFAULT '',
		status VARCHAR NOT NULL DEFAULT 'open',
		assigned_to INTEGER,
		scheduled_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT current_timestamp
	)`,

	`CREATE TABLE IF NOT EXISTS time_tracking (
		id INTEGER PRIMARY KEY DEFAULT nextval('seq_time_tracking_id'),
		user_id INTEGER NOT NULL,
		session_type VARCHAR NOT NULL,
		work_order_id INTEGER,
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS time_tracking_detail (
		id INTEGER PRIMARY KEY DEFAULT nextval('seq_time_tracking_detail_id'),
		user_id INTEGER NOT NULL,
		session_type VARCHAR NOT NULL,
		work_order_id INTEGER,
		latitude DOUBLE,
		longitude DOUBLE,
		detail_type VARCHAR NOT NULL,
		recorded_at TIMESTAMP NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_time_tracking_open
		ON time_tracking (user_id, started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_detail_user_recorded
		ON time_tracking_detail (user_id, recorded_at)`,
}

func (db *DB) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/servicefield/evoapi/internal/models"
)

// ListOpenSessions returns at most one open session per user, started
// within the lookback window. When a user holds both an open check-in
// and an open clock-in, the check-in wins; among sessions of the same
// type the most recently started wins. Users in exemptOrgID are
// excluded; pass 0 to disable the exemption.
func (db *DB) ListOpenSessions(ctx context.Context, since time.Time, exemptOrgID int) ([]models.OpenSession, error) {
	query := `SELECT user_id, session_type, work_order_id, started_at FROM (
		SELECT t.user_id, t.session_type, t.work_order_id, t.started_at,
			row_number() OVER (
				PARTITION BY t.user_id
				ORDER BY CASE WHEN t.session_type = 'checked_in' THEN 0 ELSE 1 END,
					t.started_at DESC, t.id DESC
			) AS rn
		FROM time_tracking t
		JOIN users u ON u.id = t.user_id
		WHERE t.ended_at IS NULL
			AND t.started_at >= ?
			AND u.active = true
			AND (? = 0 OR u.org_id <> ?)
	) ranked WHERE rn = 1 ORDER BY user_id`

	rows, err := db.conn.QueryContext(ctx, query, since, exemptOrgID, exemptOrgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query open sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []models.OpenSession
	for rows.Next() {
		var s models.OpenSession
		var kind string
		var workOrder sql.NullInt64
		if err := rows.Scan(&s.UserID, &kind, &workOrder, &s.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan open session: %w", err)
		}
		s.Kind = models.SessionKind(kind)
		if workOrder.Valid {
			id := int(workOrder.Int64)
			s.WorkOrderID = &id
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("open session iteration failed: %w", err)
	}
	return sessions, nil
}

// InsertTrackingDetail records one periodic location snapshot for an
// open session.
func (db *DB) InsertTrackingDetail(ctx context.Context, d models.TrackingDetail) error {
	var workOrder sql.NullInt64
	if d.WorkOrderID != nil {
		workOrder = sql.NullInt64{Int64: int64(*d.WorkOrderID), Valid: true}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO time_tracking_detail
			(user_id, session_type, work_order_id, latitude, longitude, detail_type, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.UserID, string(d.Kind), workOrder, d.Latitude, d.Longitude, d.DetailType, d.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to insert tracking detail for user %d: %w", d.UserID, err)
	}
	return nil
}

// StartSession opens a time tracking session, used by tests and the
// session endpoints.
func (db *DB) StartSession(ctx context.Context, userID int, kind models.SessionKind, workOrderID *int, startedAt time.Time) (int, error) {
	var workOrder sql.NullInt64
	if workOrderID != nil {
		workOrder = sql.NullInt64{Int64: int64(*workOrderID), Valid: true}
	}

	var id int
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO time_tracking (user_id, session_type, work_order_id, started_at)
		 VALUES (?, ?, ?, ?) RETURNING id`,
		userID, string(kind), workOrder, startedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to start session for user %d: %w", userID, err)
	}
	return id, nil
}

// EndSession closes an open session.
func (db *DB) EndSession(ctx context.Context, sessionID int, endedAt time.Time) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE time_tracking SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		endedAt, sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session %d: %w", sessionID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session %d: %w", sessionID, ErrNoRowsUpdated)
	}
	return nil
}

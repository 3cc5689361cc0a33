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

	"github.com/servicefield/evoapi/internal/models"
)

// ErrNoRowsUpdated is returned when an update matched no rows, which
// for vehicle assignment means the user disappeared between the list
// query and the write.
var ErrNoRowsUpdated = errors.New("no rows updated")

// ErrNotFound is returned when a single-row lookup matches nothing.
var ErrNotFound = errors.New("not found")

const userColumns = `id, username, first_name, last_name, employee_number, vehicle_number, org_id, active`

func scanUser(scanner interface{ Scan(...any) error }) (models.User, error) {
	var u models.User
	var vehicle sql.NullString
	err := scanner.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName,
		&u.EmployeeNumber, &vehicle, &u.OrgID, &u.Active)
	if err != nil {
		return models.User{}, err
	}
	if vehicle.Valid {
		u.VehicleNumber = &vehicle.String
	}
	return u, nil
}

// ListSyncEligibleUsers returns active users with a non-blank employee
// number, ordered by employee number ascending so sync passes visit
// users in a stable order.
func (db *DB) ListSyncEligibleUsers(ctx context.Context) ([]models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users
		WHERE active = true AND trim(employee_number) <> ''
		ORDER BY employee_number ASC`, userColumns)

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync eligible users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user row iteration failed: %w", err)
	}
	return users, nil
}

// ListUsers returns all users for the API surface, active first.
func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users ORDER BY active DESC, username ASC`, userColumns)

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user row iteration failed: %w", err)
	}
	return users, nil
}

// GetUserByUsername returns a single user or ErrNotFound.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE username = ?`, userColumns)

	u, err := scanUser(db.conn.QueryRowContext(ctx, query, username))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to get user %s: %w", username, err)
	}
	return u, nil
}

// UpdateUserVehicle writes the vehicle assignment for a user. A nil
// vehicle clears the assignment. Returns ErrNoRowsUpdated when the
// user id matched nothing.
func (db *DB) UpdateUserVehicle(ctx context.Context, userID int, vehicle *string) error {
	var value sql.NullString
	if vehicle != nil {
		value = sql.NullString{String: *vehicle, Valid: true}
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET vehicle_number = ?, updated_at = current_timestamp WHERE id = ?`,
		value, userID)
	if err != nil {
		return fmt.Errorf("failed to update vehicle for user %d: %w", userID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %d: %w", userID, ErrNoRowsUpdated)
	}
	return nil
}

// InsertUser creates a user row, used by tests and seed tooling.
func (db *DB) InsertUser(ctx context.Context, u models.User) (int, error) {
	var vehicle sql.NullString
	if u.VehicleNumber != nil {
		vehicle = sql.NullString{String: *u.VehicleNumber, Valid: true}
	}

	var id int
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO users (username, first_name, last_name, employee_number, vehicle_number, org_id, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		u.Username, u.FirstName, u.LastName, u.EmployeeNumber, vehicle, u.OrgID, u.Active).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert user %s: %w", u.Username, err)
	}
	return id, nil
}

// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/servicefield/evoapi/internal/logging"
)

// DuckDBStore implements Store on the shared DuckDB connection.
type DuckDBStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewDuckDBStore creates a DuckDB-backed audit store. Call CreateTable
// before first use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the audit_events table if it doesn't exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			outcome TEXT NOT NULL,

			actor_id TEXT NOT NULL,
			actor_type TEXT NOT NULL,
			actor_name TEXT,
			actor_auth_method TEXT,

			target_id TEXT,
			target_type TEXT,
			target_name TEXT,

			source_ip TEXT,
			source_user_agent TEXT,

			action TEXT NOT NULL,
			description TEXT NOT NULL,
			metadata JSON,

			request_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
		);

		CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(type);
		CREATE INDEX IF NOT EXISTS idx_audit_severity ON audit_events(severity);
		CREATE INDEX IF NOT EXISTS idx_audit_actor_id ON audit_events(actor_id);
		CREATE INDEX IF NOT EXISTS idx_audit_request_id ON audit_events(request_id);
	`

	for _, stmt := range strings.Split(query, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute audit schema statement: %w", err)
		}
	}

	logging.Info().Msg("Audit events table created/verified")
	return nil
}

// Save persists an audit event.
func (s *DuckDBStore) Save(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	targetID, targetType, targetName := extractTargetFields(event.Target)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, timestamp, type, severity, outcome,
			actor_id, actor_type, actor_name, actor_auth_method,
			target_id, target_type, target_name,
			source_ip, source_user_agent,
			action, description, metadata,
			request_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Timestamp,
		string(event.Type),
		string(event.Severity),
		string(event.Outcome),
		event.Actor.ID,
		event.Actor.Type,
		event.Actor.Name,
		event.Actor.AuthMethod,
		targetID,
		targetType,
		targetName,
		event.Source.IPAddress,
		event.Source.UserAgent,
		event.Action,
		event.Description,
		extractMetadata(event.Metadata),
		event.RequestID,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save audit event: %w", err)
	}
	return nil
}

func extractTargetFields(target *Target) (*string, *string, *string) {
	if target == nil {
		return nil, nil, nil
	}
	return &target.ID, &target.Type, &target.Name
}

func extractMetadata(metadata json.RawMessage) *string {
	if len(metadata) == 0 {
		return nil
	}
	s := string(metadata)
	return &s
}

const selectColumns = `
	id, timestamp, type, severity, outcome,
	actor_id, actor_type, actor_name, actor_auth_method,
	target_id, target_type, target_name,
	source_ip, source_user_agent,
	action, description,
	CAST(metadata AS VARCHAR) as metadata,
	request_id`

// Get retrieves an event by ID.
func (s *DuckDBStore) Get(ctx context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf(`SELECT %s FROM audit_events WHERE id = ?`, selectColumns)

	event, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}
	return event, nil
}

// Query retrieves events matching the filter.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := buildQuery(filter, false)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			logging.Warn().Err(err).Msg("Failed to scan audit event row")
			continue
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}

// Count returns the number of events matching the filter.
func (s *DuckDBStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := buildQuery(filter, true)

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

// Delete removes events older than the given time.
func (s *DuckDBStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE timestamp < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit events: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}
	return count, nil
}

// buildSliceCondition creates a SQL IN condition for a slice of values.
func buildSliceCondition[T ~string](column string, values []T, args *[]any) string {
	if len(values) == 0 {
		return ""
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		*args = append(*args, string(v))
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ","))
}

func buildQuery(filter QueryFilter, countOnly bool) (string, []any) {
	var sb strings.Builder
	if countOnly {
		sb.WriteString(`SELECT COUNT(*) FROM audit_events`)
	} else {
		sb.WriteString(fmt.Sprintf(`SELECT %s FROM audit_events`, selectColumns))
	}

	var conditions []string
	var args []any

	if c := buildSliceCondition("type", filter.Types, &args); c != "" {
		conditions = append(conditions, c)
	}
	if c := buildSliceCondition("severity", filter.Severities, &args); c != "" {
		conditions = append(conditions, c)
	}
	if c := buildSliceCondition("outcome", filter.Outcomes, &args); c != "" {
		conditions = append(conditions, c)
	}
	if filter.ActorID != "" {
		conditions = append(conditions, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.TargetID != "" {
		conditions = append(conditions, "target_id = ?")
		args = append(args, filter.TargetID)
	}
	if filter.RequestID != "" {
		conditions = append(conditions, "request_id = ?")
		args = append(args, filter.RequestID)
	}
	if filter.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *filter.StartTime)
	}
	if filter.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *filter.EndTime)
	}

	if len(conditions) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}

	if !countOnly {
		if filter.OrderDesc {
			sb.WriteString(" ORDER BY timestamp DESC")
		} else {
			sb.WriteString(" ORDER BY timestamp ASC")
		}
		limit := filter.Limit
		if limit <= 0 || limit > 1000 {
			limit = 100
		}
		sb.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, limit, max(filter.Offset, 0))
	}

	return sb.String(), args
}

type rowScanner interface{ Scan(...any) error }

func scanEvent(row rowScanner) (*Event, error) {
	var e Event
	var actorName, actorAuth sql.NullString
	var targetID, targetType, targetName sql.NullString
	var sourceIP, sourceUA sql.NullString
	var metadata sql.NullString
	var requestID sql.NullString

	err := row.Scan(
		&e.ID, &e.Timestamp, &e.Type, &e.Severity, &e.Outcome,
		&e.Actor.ID, &e.Actor.Type, &actorName, &actorAuth,
		&targetID, &targetType, &targetName,
		&sourceIP, &sourceUA,
		&e.Action, &e.Description,
		&metadata,
		&requestID,
	)
	if err != nil {
		return nil, err
	}

	e.Actor.Name = actorName.String
	e.Actor.AuthMethod = actorAuth.String
	if targetID.Valid {
		e.Target = &Target{ID: targetID.String, Type: targetType.String, Name: targetName.String}
	}
	e.Source.IPAddress = sourceIP.String
	e.Source.UserAgent = sourceUA.String
	if metadata.Valid && metadata.String != "" {
		e.Metadata = json.RawMessage(metadata.String)
	}
	e.RequestID = requestID.String
	return &e, nil
}

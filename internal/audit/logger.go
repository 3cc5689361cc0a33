// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package audit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/servicefield/evoapi/internal/logging"
	"github.com/servicefield/evoapi/internal/metrics"
	"github.com/servicefield/evoapi/internal/models"
)

// Config holds configuration for the audit logger.
type Config struct {
	// Enabled controls whether audit logging is active.
	Enabled bool `json:"enabled"`

	// LogLevel filters events by minimum severity.
	LogLevel Severity `json:"log_level"`

	// RetentionDays is how long to keep audit records.
	RetentionDays int `json:"retention_days"`

	// CleanupInterval is how often to run retention cleanup.
	CleanupInterval time.Duration `json:"cleanup_interval"`

	// BufferSize is the size of the async write buffer.
	BufferSize int `json:"buffer_size"`

	// IncludeDebug includes debug-level events.
	IncludeDebug bool `json:"include_debug"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		LogLevel:        SeverityInfo,
		RetentionDays:   90,
		CleanupInterval: 24 * time.Hour,
		BufferSize:      1000,
		IncludeDebug:    false,
	}
}

// Logger buffers audit events and writes them to the store from a
// background goroutine so callers never block on persistence.
type Logger struct {
	config    *Config
	store     Store
	eventChan chan *Event
	mu        sync.RWMutex
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewLogger creates a new audit logger and starts its writer.
func NewLogger(store Store, config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	l := &Logger{
		config:    config,
		store:     store,
		eventChan: make(chan *Event, config.BufferSize),
		stopChan:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.asyncWriter()

	return l
}

// asyncWriter processes events from the buffer.
func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			// Drain remaining events before exiting.
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

func (l *Logger) writeEvent(event *Event) {
	if l.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.store.Save(ctx, event); err != nil {
		logging.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to save audit event")
	}
}

// Log records an audit event. When the buffer is full the event is
// dropped with a warning rather than blocking the caller.
func (l *Logger) Log(event *Event) {
	l.mu.RLock()
	config := l.config
	l.mu.RUnlock()

	if !config.Enabled {
		return
	}
	if !l.shouldLog(event.Severity, config) {
		return
	}

	if event.ID == "" {
		event.ID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case l.eventChan <- event:
	default:
		metrics.AuditEventsDropped.Inc()
		logging.Warn().Str("event_id", event.ID).Msg("Audit event buffer full, dropping event")
	}
}

var severityOrder = map[Severity]int{
	SeverityDebug:    0,
	SeverityInfo:     1,
	SeverityWarning:  2,
	SeverityError:    3,
	SeverityCritical: 4,
}

func (l *Logger) shouldLog(severity Severity, config *Config) bool {
	if severity == SeverityDebug && !config.IncludeDebug {
		return false
	}
	return severityOrder[severity] >= severityOrder[config.LogLevel]
}

// Close shuts down the logger, draining buffered events.
func (l *Logger) Close() error {
	close(l.stopChan)
	l.wg.Wait()
	return nil
}

// StartCleanupRoutine starts the retention cleanup loop. It stops
// when ctx is cancelled.
func (l *Logger) StartCleanupRoutine(ctx context.Context) {
	l.mu.RLock()
	interval := l.config.CleanupInterval
	retention := l.config.RetentionDays
	l.mu.RUnlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().AddDate(0, 0, -retention)
				count, err := l.store.Delete(ctx, cutoff)
				if err != nil {
					logging.Error().Err(err).Msg("Audit cleanup error")
				} else if count > 0 {
					logging.Info().Int64("count", count).Msg("Cleaned up old audit events")
				}
			}
		}
	}()
}

// Query retrieves events matching the filter.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// Count returns the number of events matching the filter.
func (l *Logger) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return l.store.Count(ctx, filter)
}

// Enabled returns whether audit logging is enabled.
func (l *Logger) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Enabled
}

func generateEventID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b)
}

// Helper methods for common audit events

// RequestRecord describes one handled API request.
type RequestRecord struct {
	Method    string
	Route     string
	Status    int
	Username  string
	Role      string
	IP        string
	UserAgent string
	RequestID string
	Duration  time.Duration
}

// LogRequest records one handled API request. Unauthenticated
// requests get the anonymous actor.
func (l *Logger) LogRequest(rec RequestRecord) {
	actor := Actor{ID: "anonymous", Type: "anonymous"}
	if rec.Username != "" {
		actorType := rec.Role
		if actorType == "" {
			actorType = "user"
		}
		actor = Actor{ID: rec.Username, Type: actorType, Name: rec.Username, AuthMethod: "jwt"}
	}

	severity := SeverityInfo
	outcome := OutcomeSuccess
	switch {
	case rec.Status >= 500:
		severity = SeverityError
		outcome = OutcomeFailure
	case rec.Status >= 400:
		severity = SeverityWarning
		outcome = OutcomeFailure
	}

	metadata, _ := json.Marshal(map[string]interface{}{
		"status":      rec.Status,
		"duration_ms": rec.Duration.Milliseconds(),
	})
	l.Log(&Event{
		Type:        EventTypeRequest,
		Severity:    severity,
		Outcome:     outcome,
		Actor:       actor,
		Target:      &Target{ID: rec.Route, Type: "endpoint"},
		Source:      Source{IPAddress: rec.IP, UserAgent: rec.UserAgent},
		Action:      rec.Method,
		Description: fmt.Sprintf("%s %s returned %d", rec.Method, rec.Route, rec.Status),
		Metadata:    metadata,
		RequestID:   rec.RequestID,
	})
}

// LogAuthSuccess records a successful login.
func (l *Logger) LogAuthSuccess(username, ip, userAgent, requestID string) {
	l.Log(&Event{
		Type:        EventTypeAuthSuccess,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       Actor{ID: username, Type: "user", Name: username, AuthMethod: "jwt"},
		Source:      Source{IPAddress: ip, UserAgent: userAgent},
		Action:      "login",
		Description: fmt.Sprintf("User %s authenticated", username),
		RequestID:   requestID,
	})
}

// LogAuthFailure records a failed login attempt.
func (l *Logger) LogAuthFailure(username, ip, userAgent, requestID, reason string) {
	l.Log(&Event{
		Type:        EventTypeAuthFailure,
		Severity:    SeverityWarning,
		Outcome:     OutcomeFailure,
		Actor:       Actor{ID: username, Type: "user", Name: username},
		Source:      Source{IPAddress: ip, UserAgent: userAgent},
		Action:      "login",
		Description: fmt.Sprintf("Authentication failed for %s: %s", username, reason),
		RequestID:   requestID,
	})
}

// LogSyncPass records the outcome of one vehicle sync pass.
func (l *Logger) LogSyncPass(result *models.SyncResult, trigger string) {
	outcome := OutcomeSuccess
	severity := SeverityInfo
	if result.Errors > 0 {
		outcome = OutcomePartial
		severity = SeverityWarning
	}
	if result.Errors > 0 && result.SuccessfulUpdates == 0 {
		outcome = OutcomeFailure
		severity = SeverityError
	}

	metadata, _ := json.Marshal(result)
	l.Log(&Event{
		Type:     EventTypeSyncPass,
		Severity: severity,
		Outcome:  outcome,
		Actor:    Actor{ID: "vehicle-sync", Type: "system", Name: "vehicle-sync"},
		Action:   trigger,
		Description: fmt.Sprintf("Vehicle sync pass: %d processed, %d updated, %d errors",
			result.TotalUsersProcessed, result.SuccessfulUpdates, result.Errors),
		Metadata: metadata,
	})
}

// LogSyncTriggered records a manually requested sync pass.
func (l *Logger) LogSyncTriggered(username, ip, requestID string) {
	l.Log(&Event{
		Type:        EventTypeSyncTriggered,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       Actor{ID: username, Type: "admin", Name: username},
		Source:      Source{IPAddress: ip},
		Action:      "sync_trigger",
		Description: fmt.Sprintf("Manual vehicle sync triggered by %s", username),
		RequestID:   requestID,
	})
}

// LogCheckinTick records one periodic tracking tick.
func (l *Logger) LogCheckinTick(sessions, records int, err error) {
	event := &Event{
		Type:     EventTypeCheckinTick,
		Severity: SeverityDebug,
		Outcome:  OutcomeSuccess,
		Actor:    Actor{ID: "checkin-tracker", Type: "system", Name: "checkin-tracker"},
		Action:   "tick",
		Description: fmt.Sprintf("Check-in tick: %d open sessions, %d records written",
			sessions, records),
	}
	if err != nil {
		event.Severity = SeverityError
		event.Outcome = OutcomeFailure
		event.Description = fmt.Sprintf("Check-in tick failed: %v", err)
	}
	l.Log(event)
}

// LogServiceLifecycle records service start and stop.
func (l *Logger) LogServiceLifecycle(eventType EventType, description string) {
	l.Log(&Event{
		Type:        eventType,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       Actor{ID: "evoapi", Type: "system", Name: "evoapi"},
		Action:      "lifecycle",
		Description: description,
	})
}

// Package eventlog appends persona activity events. Logging is best effort
// and never fails the calling operation.
package eventlog

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lukasbauer/evervoice/internal/core"
)

// EventType represents the type of persona event
type EventType string

const (
	EventWizardStepCompleted EventType = "wizard_step_completed"
	EventWizardStepFailed    EventType = "wizard_step_failed"
	EventShareTokenIssued    EventType = "share_token_issued"
	EventGuestSessionStarted EventType = "guest_session_started"
	EventGuestVoiceCloned    EventType = "guest_voice_cloned"
	EventGuestVoiceReleased  EventType = "guest_voice_released"
	EventGuestVoiceHandedOff EventType = "guest_voice_handed_off"
	EventGuestRated          EventType = "guest_rated"
	EventTierUpgraded        EventType = "tier_upgraded"
)

// Logger provides async event logging to the database
type Logger struct {
	db *pgxpool.Pool
	wg sync.WaitGroup
}

// New creates a new event logger. A nil pool disables logging.
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// Log writes an event to the database synchronously
func (l *Logger) Log(ctx context.Context, userID string, role core.Role, eventType EventType, data map[string]any) error {
	if l == nil || l.db == nil || userID == "" {
		return nil // Silently skip if no DB or user
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	var roleArg any
	if role != "" {
		roleArg = string(role)
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO persona_events (user_id, role, event_type, event_data)
		VALUES ($1, $2, $3, $4)
	`, userID, roleArg, string(eventType), dataJSON)

	return err
}

// LogAsync logs an event without blocking the caller
func (l *Logger) LogAsync(userID string, role core.Role, eventType EventType, data map[string]any) {
	if l == nil || l.db == nil || userID == "" {
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Log(ctx, userID, role, eventType, data)
	}()
}

// Wait blocks until pending async writes have finished.
func (l *Logger) Wait() {
	if l == nil {
		return
	}
	l.wg.Wait()
}

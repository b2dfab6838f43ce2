// Package ledger keeps an append-only history of light operations.
// It backs the history endpoint and rejects retried requests that already completed.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the outcome recorded for an operation
type EventType string

const (
	EventOperationCompleted EventType = "operation_completed"
	EventOperationFailed    EventType = "operation_failed"
)

// Sources of recorded operations.
const (
	SourceAPI     = "api"
	SourceDynamic = "dynamic"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID             int64          `json:"id"`
	EventType      EventType      `json:"event_type"`
	Timestamp      time.Time      `json:"timestamp"`
	Light          string         `json:"light"`
	Operation      string         `json:"operation"`
	Source         string         `json:"source,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// Query filters Recent. An empty Light matches all lights.
type Query struct {
	Light string
	Limit int
}

// DefaultLimit caps Recent when Query.Limit is not positive.
const DefaultLimit = 100

// Ledger provides append-only event logging with deduplication
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Record appends an operation outcome. A nil opErr records a completion, anything else a
// failure with the error text in the payload.
func (l *Ledger) Record(ctx context.Context, light, operation, source, idempotencyKey string, payload map[string]any, opErr error) error {
	eventType := EventOperationCompleted
	if opErr != nil {
		eventType = EventOperationFailed
		merged := make(map[string]any, len(payload)+1)
		for k, v := range payload {
			merged[k] = v
		}
		merged["error"] = opErr.Error()
		payload = merged
	}
	return l.Append(ctx, Entry{
		EventType:      eventType,
		Light:          light,
		Operation:      operation,
		Source:         source,
		IdempotencyKey: idempotencyKey,
		Payload:        payload,
	})
}

// Append adds a new event to the ledger. Timestamp defaults to now.
// For completions, INSERT OR IGNORE keeps the first completion per idempotency key
// (enforced by a unique partial index).
func (l *Ledger) Append(ctx context.Context, e Entry) error {
	var payloadJSON []byte
	var err error

	if e.Payload != nil {
		payloadJSON, err = json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}

	insertSQL := `INSERT INTO event_ledger (event_type, timestamp, light, operation, source, payload, idempotency_key) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if e.EventType == EventOperationCompleted && e.IdempotencyKey != "" {
		insertSQL = `INSERT OR IGNORE INTO event_ledger (event_type, timestamp, light, operation, source, payload, idempotency_key) VALUES (?, ?, ?, ?, ?, ?, ?)`
	}

	_, err = l.db.ExecContext(ctx, insertSQL,
		string(e.EventType), ts.UTC().Unix(), e.Light, e.Operation, e.Source, string(payloadJSON), e.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// HasCompleted checks if an operation with the given idempotency key has completed successfully
func (l *Ledger) HasCompleted(ctx context.Context, idempotencyKey string) bool {
	if idempotencyKey == "" {
		return false // Empty key = no dedupe
	}

	var exists int
	err := l.db.QueryRowContext(ctx, `
		SELECT 1 FROM event_ledger
		WHERE idempotency_key = ? AND event_type = ?
		LIMIT 1
	`, idempotencyKey, string(EventOperationCompleted)).Scan(&exists)

	return err == nil && exists == 1
}

// Recent returns the newest entries first.
func (l *Ledger) Recent(ctx context.Context, q Query) ([]*Entry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	const cols = `SELECT id, event_type, timestamp, light, operation, source, payload, idempotency_key FROM event_ledger`

	var rows *sql.Rows
	var err error
	if q.Light != "" {
		rows, err = l.db.QueryContext(ctx, cols+` WHERE light = ? ORDER BY id DESC LIMIT ?`, q.Light, limit)
	} else {
		rows, err = l.db.QueryContext(ctx, cols+` ORDER BY id DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UTC().Unix()
	result, err := l.db.ExecContext(ctx, `DELETE FROM event_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	entries := []*Entry{}
	for rows.Next() {
		var entry Entry
		var payloadStr, source, idempotencyKey sql.NullString
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.EventType, &timestamp, &entry.Light, &entry.Operation,
			&source, &payloadStr, &idempotencyKey,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(timestamp, 0).UTC()
		entry.Source = source.String
		entry.IdempotencyKey = idempotencyKey.String

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

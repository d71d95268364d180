package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reportbrief/reportbrief/internal/model"
)

// InsertAuditEvent appends an event to the audit log. An empty UserID is
// stored as NULL.
func (s *Store) InsertAuditEvent(ctx context.Context, ev *model.AuditEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now()
	}
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("store: encode audit payload: %w", err)
	}

	if _, err := s.writer.ExecContext(ctx,
		`INSERT INTO audit_logs (id, user_id, event_type, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, nullString(ev.UserID), string(ev.EventType), string(raw), formatTime(ev.CreatedAt),
	); err != nil {
		return fmt.Errorf("store: insert audit event: %w", err)
	}
	return nil
}

// CountAuditEvents counts a user's events of one type created at or after
// since.
func (s *Store) CountAuditEvents(ctx context.Context, userID string, eventType model.EventType, since time.Time) (int, error) {
	var n int
	err := s.reader.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audit_logs
		WHERE user_id = ? AND event_type = ? AND created_at >= ?`,
		userID, string(eventType), formatTime(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count audit events: %w", err)
	}
	return n, nil
}

// ListAuditEvents returns a user's most recent events, newest first.
func (s *Store) ListAuditEvents(ctx context.Context, userID string, limit int) ([]*model.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.reader.QueryContext(ctx, `
		SELECT id, user_id, event_type, payload, created_at
		FROM audit_logs
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list audit events: %w", err)
	}
	defer rows.Close()

	var out []*model.AuditEvent
	for rows.Next() {
		var (
			ev        model.AuditEvent
			uid       sql.NullString
			eventType string
			raw       string
			createdAt string
		)
		if err := rows.Scan(&ev.ID, &uid, &eventType, &raw, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan audit row: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &ev.Payload); err != nil {
			return nil, fmt.Errorf("store: decode audit payload: %w", err)
		}
		ev.UserID = uid.String
		ev.EventType = model.EventType(eventType)
		ev.CreatedAt = parseTime(createdAt)
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: audit rows iteration: %w", err)
	}
	return out, nil
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is one run of a pipeline against one transport.
type Session struct {
	ID             string     `json:"session_id"`
	Transport      string     `json:"transport"`
	Source         string     `json:"source"` // serial device path or UDP listen address
	ExpectedLength int        `json:"expected_length"`
	TargetTag      uint64     `json:"target_tag"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

// StartSession records a new session and returns its generated ID.
func (db *DB) StartSession(ctx context.Context, s Session) (string, error) {
	id := uuid.NewString()
	_, err := db.ExecContext(ctx,
		`INSERT INTO csi_sessions (session_id, transport, source, expected_length, target_tag)
		 VALUES (?, ?, ?, ?, ?)`,
		id, s.Transport, s.Source, s.ExpectedLength, int64(s.TargetTag),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	return id, nil
}

// EndSession stamps the session's end time.
func (db *DB) EndSession(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE csi_sessions SET ended_at = CURRENT_TIMESTAMP WHERE session_id = ? AND ended_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s not found or already ended", id)
	}
	return nil
}

// Sessions lists the most recent sessions, newest first.
func (db *DB) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx,
		`SELECT session_id, transport, source, expected_length, target_tag, started_at, ended_at
		 FROM csi_sessions ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var tag int64
		var ended sql.NullTime
		if err := rows.Scan(&s.ID, &s.Transport, &s.Source, &s.ExpectedLength, &tag, &s.StartedAt, &ended); err != nil {
			return nil, err
		}
		s.TargetTag = uint64(tag)
		if ended.Valid {
			t := ended.Time
			s.EndedAt = &t
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

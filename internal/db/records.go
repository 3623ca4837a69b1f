package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/banshee-data/csi.monitor/internal/csi"
)

// Tags and device timestamps are unsigned 64-bit but SQLite integers are
// signed; they are stored as the same 64 bits reinterpreted as int64.

// RecordCSI stores one accepted record under sessionID.
func (db *DB) RecordCSI(ctx context.Context, sessionID string, rec csi.Record) error {
	amps, err := json.Marshal(rec.Amplitudes)
	if err != nil {
		return err
	}
	var mac sql.NullString
	if !rec.Source.IsZero() {
		mac = sql.NullString{String: rec.Source.String(), Valid: true}
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO csi_records (session_id, tag, device_ts, source_mac, amplitudes) VALUES (?, ?, ?, ?, ?)`,
		sessionID, int64(rec.Tag), int64(rec.Timestamp), mac, string(amps),
	)
	if err != nil {
		return fmt.Errorf("failed to insert CSI record: %w", err)
	}
	return nil
}

// RecentCSI returns up to limit of the session's latest records, oldest
// first.
func (db *DB) RecentCSI(ctx context.Context, sessionID string, limit int) ([]csi.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT tag, device_ts, source_mac, amplitudes FROM (
			SELECT record_id, tag, device_ts, source_mac, amplitudes FROM csi_records
			WHERE session_id = ? ORDER BY record_id DESC LIMIT ?
		) ORDER BY record_id ASC`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []csi.Record
	for rows.Next() {
		var tag, ts int64
		var mac sql.NullString
		var amps string
		if err := rows.Scan(&tag, &ts, &mac, &amps); err != nil {
			return nil, err
		}
		rec := csi.Record{Tag: uint64(tag), Timestamp: uint64(ts)}
		if err := json.Unmarshal([]byte(amps), &rec.Amplitudes); err != nil {
			return nil, fmt.Errorf("corrupt amplitudes for tag %d ts %d: %w", rec.Tag, rec.Timestamp, err)
		}
		if mac.Valid {
			if rec.Source, err = csi.ParseSourceAddress(mac.String); err != nil {
				return nil, err
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountCSI returns how many records a session holds.
func (db *DB) CountCSI(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM csi_records WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

// SessionPersister writes records into one session. It satisfies the
// pipeline's Persister interface.
type SessionPersister struct {
	db        *DB
	sessionID string
}

// Persister returns a SessionPersister for sessionID.
func (db *DB) Persister(sessionID string) *SessionPersister {
	return &SessionPersister{db: db, sessionID: sessionID}
}

// SessionID returns the session the persister writes to.
func (p *SessionPersister) SessionID() string { return p.sessionID }

func (p *SessionPersister) Persist(ctx context.Context, rec csi.Record) error {
	return p.db.RecordCSI(ctx, p.sessionID, rec)
}

package storage

// sessions.go contains SQLiteStore methods for session metadata.
// The directory records each tmux session it observes so first-seen
// times survive daemon restarts.

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SessionRecord is the persisted view of a tmux session.
type SessionRecord struct {
	// ID is the stable 12-character session identifier.
	ID string

	// Name is the tmux session name at last observation.
	Name string

	// FirstSeen is when the directory first observed the session.
	FirstSeen time.Time

	// LastSeen is when the directory last observed the session.
	LastSeen time.Time
}

// TouchSession upserts a session observation: inserts on first sight,
// otherwise updates the name and last-seen time.
func (s *SQLiteStore) TouchSession(id, name string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `
		INSERT INTO sessions (id, name, first_seen, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, last_seen = excluded.last_seen
	`
	ts := seenAt.Format(time.RFC3339Nano)
	if _, err := s.db.Exec(query, id, name, ts, ts); err != nil {
		return fmt.Errorf("touch session %s: %w", id, err)
	}
	return nil
}

// GetSession returns the persisted record for a session ID.
// Returns ErrSessionNotFound when no row exists.
func (s *SQLiteStore) GetSession(id string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `SELECT id, name, first_seen, last_seen FROM sessions WHERE id = ?`

	var rec SessionRecord
	var firstSeen, lastSeen string
	err := s.db.QueryRow(query, id).Scan(&rec.ID, &rec.Name, &firstSeen, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	if rec.FirstSeen, err = time.Parse(time.RFC3339Nano, firstSeen); err != nil {
		return nil, fmt.Errorf("parse first_seen %q: %w", firstSeen, err)
	}
	if rec.LastSeen, err = time.Parse(time.RFC3339Nano, lastSeen); err != nil {
		return nil, fmt.Errorf("parse last_seen %q: %w", lastSeen, err)
	}
	return &rec, nil
}

// ListSessions returns all persisted session records, most recently
// seen first.
func (s *SQLiteStore) ListSessions() ([]SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, name, first_seen, last_seen FROM sessions ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var firstSeen, lastSeen string
		if err := rows.Scan(&rec.ID, &rec.Name, &firstSeen, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if rec.FirstSeen, err = time.Parse(time.RFC3339Nano, firstSeen); err != nil {
			return nil, fmt.Errorf("parse first_seen %q: %w", firstSeen, err)
		}
		if rec.LastSeen, err = time.Parse(time.RFC3339Nano, lastSeen); err != nil {
			return nil, fmt.Errorf("parse last_seen %q: %w", lastSeen, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteSession removes a session record. Used when a session has been
// gone long enough that its metadata is no longer useful.
func (s *SQLiteStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

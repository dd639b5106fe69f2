package storage

// notification_audit.go contains SQLiteStore methods for the
// notification audit trail. Every notification broadcast to devices
// (approval prompt, error, idle shell) creates one entry.

import (
	"errors"
	"fmt"
	"time"

	"github.com/termrelay/host/internal/notify"
)

// NotificationAuditEntry is one emitted notification as stored.
type NotificationAuditEntry struct {
	// ID is the unique identifier for this audit entry (UUID).
	ID string

	// SessionID is the session whose output triggered the notification.
	SessionID string

	// Category is "approval", "error", or "shell_idle".
	Category string

	// Pattern is the regular expression that matched.
	Pattern string

	// Snippet is the cleaned output context around the match.
	Snippet string

	// EmittedAt is when the notification was broadcast.
	EmittedAt time.Time
}

// SaveNotificationAudit persists an emitted notification. It implements
// the dispatcher's audit interface; the notify package carries its own
// copy of the entry type to avoid importing storage.
func (s *SQLiteStore) SaveNotificationAudit(entry *notify.AuditEntry) error {
	if entry == nil {
		return errors.New("audit entry cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `
		INSERT INTO notification_audit
			(id, session_id, category, pattern, snippet, emitted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		entry.ID,
		entry.SessionID,
		entry.Category,
		entry.Pattern,
		entry.Snippet,
		entry.EmittedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert notification audit: %w", err)
	}
	return nil
}

// ListNotificationAudit returns entries for a session, newest first,
// up to limit. A limit of 0 means no limit.
func (s *SQLiteStore) ListNotificationAudit(sessionID string, limit int) ([]NotificationAuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, session_id, category, pattern, snippet, emitted_at
		FROM notification_audit
		WHERE session_id = ?
		ORDER BY emitted_at DESC
	`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notification audit: %w", err)
	}
	defer rows.Close()

	var entries []NotificationAuditEntry
	for rows.Next() {
		var e NotificationAuditEntry
		var emittedAt string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Category, &e.Pattern, &e.Snippet, &emittedAt); err != nil {
			return nil, fmt.Errorf("scan notification audit: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, emittedAt)
		if err != nil {
			return nil, fmt.Errorf("parse emitted_at %q: %w", emittedAt, err)
		}
		e.EmittedAt = t
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneNotificationAudit deletes entries older than the cutoff and
// returns how many were removed.
func (s *SQLiteStore) PruneNotificationAudit(olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"DELETE FROM notification_audit WHERE emitted_at < ?",
		olderThan.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune notification audit: %w", err)
	}
	return res.RowsAffected()
}

package storage

import (
	"fmt"
	"time"
)

// currentSchemaVersion is the current database schema version.
// Increment this when making schema changes and add migration logic.
const currentSchemaVersion = 2

// initSchema creates the required tables if they don't exist.
// Uses IF NOT EXISTS to make the operation idempotent.
func (s *SQLiteStore) initSchema() error {
	// Schema version table tracks database migrations.
	// This allows future schema changes to be applied incrementally.
	const schemaVersionTable = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	// Check current version
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}

	// Apply migrations based on current version
	if version < 1 {
		if err := s.migrateToV1(); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	if version < 2 {
		if err := s.migrateToV2(); err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
	}

	return nil
}

// migrateToV1 creates the notification audit table. Every notification
// that survives the cooldown and is broadcast to devices gets one row.
func (s *SQLiteStore) migrateToV1() error {
	const notificationAuditTable = `
		CREATE TABLE IF NOT EXISTS notification_audit (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			category TEXT NOT NULL,
			pattern TEXT NOT NULL,
			snippet TEXT NOT NULL,
			emitted_at TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(notificationAuditTable); err != nil {
		return fmt.Errorf("create notification_audit table: %w", err)
	}

	const auditIndex = `
		CREATE INDEX IF NOT EXISTS idx_notification_audit_session
		ON notification_audit(session_id, emitted_at);
	`
	if _, err := s.db.Exec(auditIndex); err != nil {
		return fmt.Errorf("create notification_audit index: %w", err)
	}

	return s.recordVersion(1)
}

// migrateToV2 creates the session metadata table. Rows track when each
// tmux session was first and last seen by the directory, which outlives
// the in-memory session state.
func (s *SQLiteStore) migrateToV2() error {
	const sessionsTable = `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			first_seen TEXT NOT NULL,
			last_seen TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(sessionsTable); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}

	return s.recordVersion(2)
}

// recordVersion marks a migration as applied.
func (s *SQLiteStore) recordVersion(version int) error {
	_, err := s.db.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		version, time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record schema version %d: %w", version, err)
	}
	return nil
}

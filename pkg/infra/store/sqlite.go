// Package store provides the SQLite-backed persistence layer. All engine
// state that must survive restarts lives here: alerts, remediation actions,
// servers, and the cross-heartbeat breach counters.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore owns the database connection shared by the per-domain stores.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	// WAL mode for concurrent heartbeat handlers.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS servers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		is_paused INTEGER NOT NULL DEFAULT 0,
		last_seen INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		server_id TEXT NOT NULL,
		alert_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		status TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT,
		threshold_value REAL NOT NULL DEFAULT 0,
		actual_value REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		acknowledged_at INTEGER,
		acknowledged_by TEXT,
		resolved_at INTEGER,
		auto_resolved INTEGER NOT NULL DEFAULT 0,
		last_notified_at INTEGER,
		notified_severity TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_server ON alerts(server_id, alert_type);
	CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
	CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		server_id TEXT NOT NULL,
		action_type TEXT NOT NULL,
		service_name TEXT,
		command TEXT NOT NULL,
		status TEXT NOT NULL,
		alert_id TEXT,
		created_at INTEGER NOT NULL,
		created_by TEXT,
		approved_at INTEGER,
		approved_by TEXT,
		rejected_at INTEGER,
		rejected_by TEXT,
		reject_reason TEXT,
		executed_at INTEGER,
		completed_at INTEGER,
		exit_code INTEGER,
		stdout TEXT,
		stderr TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_actions_server_status ON actions(server_id, status);
	CREATE TABLE IF NOT EXISTS breach_counters (
		server_id TEXT NOT NULL,
		metric TEXT NOT NULL,
		count INTEGER NOT NULL,
		PRIMARY KEY (server_id, metric)
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Nullable time columns are stored as Unix nanoseconds.

func timeToNS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func nsToTime(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := time.Unix(0, ns.Int64)
	return &t
}

func nsToTimeValue(ns int64) time.Time {
	return time.Unix(0, ns)
}

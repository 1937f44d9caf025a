package signal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/sme-labs/sme-go/internal/routing"
)

// schemaVersion is the current schema generation recorded in schema_meta.
// Bumping it signals a forward migration to older deployments.
const schemaVersion = 1

// Store persists and retrieves signal events. Implementations must be safe
// for concurrent use.
type Store interface {
	// Insert appends an immutable event and returns its assigned ID.
	Insert(ctx context.Context, ev Event) (int64, error)
	// ListRecent returns up to limit events, newest-first by insertion order.
	ListRecent(ctx context.Context, limit int) ([]Event, error)
	// ListByUser returns up to limit events for one user, newest-first.
	ListByUser(ctx context.Context, userID string, limit int) ([]Event, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
	// now returns the current time; overridden in tests.
	now func() time.Time
}

// DefaultDBPath returns the default path for the signal event database.
// It resolves to ~/.sme/signal.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("signal: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".sme")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("signal: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "signal.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("signal: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent inserts.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist and records the
// schema version marker used for forward migration detection.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS schema_meta (
    version INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp            TEXT    NOT NULL,
    user_id              TEXT    NOT NULL,
    user_query           TEXT    NOT NULL,
    signal_type          TEXT    NOT NULL,
    emotional_tone       REAL    NOT NULL,
    drift_score          REAL    NOT NULL,
    escalate_flag        INTEGER NOT NULL,
    selected_agent       TEXT    NOT NULL,
    reason               TEXT    NOT NULL,
    payload              TEXT,
    relationship_context TEXT,
    diagnostic_notes     TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_user_id ON events (user_id, id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("signal: migrate: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_meta LIMIT 1`).Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.Exec(`INSERT INTO schema_meta (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("signal: record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("signal: read schema version: %w", err)
	case version > schemaVersion:
		return fmt.Errorf("signal: database schema version %d is newer than supported %d", version, schemaVersion)
	}
	return nil
}

// Insert appends ev and returns the assigned row ID. The timestamp is set
// at insert time when the event carries none; everything else is stored
// exactly as given.
func (s *SQLiteStore) Insert(ctx context.Context, ev Event) (int64, error) {
	ts := ev.Timestamp
	if ts == "" {
		ts = s.now().UTC().Format(time.RFC3339Nano)
	}

	var payload any
	if len(ev.Payload) > 0 {
		payload = string(ev.Payload)
	}

	const q = `
INSERT INTO events (
    timestamp, user_id, user_query, signal_type, emotional_tone, drift_score,
    escalate_flag, selected_agent, reason, payload, relationship_context, diagnostic_notes
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := s.db.ExecContext(ctx, q,
		ts, ev.UserID, ev.UserQuery, ev.SignalType, ev.EmotionalTone, ev.DriftScore,
		boolInt(ev.EscalateFlag), string(ev.SelectedAgent), ev.Reason,
		payload, nullable(ev.RelationshipContext), nullable(ev.DiagnosticNotes),
	)
	if err != nil {
		return 0, fmt.Errorf("signal: insert event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("signal: last insert id: %w", err)
	}
	return id, nil
}

// ListRecent returns up to limit events, newest-first by insertion order.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	const q = selectEvents + ` ORDER BY id DESC LIMIT ?`
	return s.queryEvents(ctx, q, limit)
}

// ListByUser returns up to limit events for userID, newest-first.
func (s *SQLiteStore) ListByUser(ctx context.Context, userID string, limit int) ([]Event, error) {
	const q = selectEvents + ` WHERE user_id = ? ORDER BY id DESC LIMIT ?`
	return s.queryEvents(ctx, q, userID, limit)
}

// selectEvents is the shared column list for event queries.
const selectEvents = `
SELECT id, timestamp, user_id, user_query, signal_type, emotional_tone, drift_score,
       escalate_flag, selected_agent, reason, payload, relationship_context, diagnostic_notes
FROM   events`

// queryEvents runs q with args and scans the result rows into events.
func (s *SQLiteStore) queryEvents(ctx context.Context, q string, args ...any) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("signal: query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev       Event
			escalate int
			agent    string
			payload  sql.NullString
			relCtx   sql.NullString
			notes    sql.NullString
		)
		if err := rows.Scan(
			&ev.ID, &ev.Timestamp, &ev.UserID, &ev.UserQuery, &ev.SignalType,
			&ev.EmotionalTone, &ev.DriftScore, &escalate, &agent, &ev.Reason,
			&payload, &relCtx, &notes,
		); err != nil {
			return nil, fmt.Errorf("signal: scan event: %w", err)
		}
		ev.EscalateFlag = escalate != 0
		ev.SelectedAgent = routing.Agent(agent)
		if payload.Valid {
			ev.Payload = []byte(payload.String)
		}
		ev.RelationshipContext = relCtx.String
		ev.DiagnosticNotes = notes.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("signal: event rows: %w", err)
	}
	return events, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("signal: close: %w", err)
	}
	return nil
}

// boolInt stores booleans as SQLite INTEGER 0/1.
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullable maps the empty string to NULL so optional text columns stay NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

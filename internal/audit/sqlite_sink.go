package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Rick1330/cybersage/internal/types"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSink persists audit events to an append-only SQLite table.
// The database is opened in WAL mode for concurrent writers across
// workflow goroutines.
type SQLiteSink struct {
	conn *sql.DB
	path string
}

// SQLiteConfig holds configuration for the audit database.
type SQLiteConfig struct {
	Path            string        // Database file path
	MaxOpenConns    int           // Maximum number of open connections
	MaxIdleConns    int           // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum connection lifetime
	BusyTimeout     time.Duration // SQLite busy timeout
}

// DefaultSQLiteConfig returns sensible defaults for the audit database.
func DefaultSQLiteConfig(path string) SQLiteConfig {
	return SQLiteConfig{
		Path:            path,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     5 * time.Second,
	}
}

const createEventsTable = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	event       TEXT NOT NULL,
	timestamp   TEXT NOT NULL,
	details     TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_events_workflow ON audit_events(workflow_id, timestamp);
`

// OpenSQLiteSink opens (creating if needed) the audit database at path.
func OpenSQLiteSink(path string) (*SQLiteSink, error) {
	return OpenSQLiteSinkWithConfig(DefaultSQLiteConfig(path))
}

// OpenSQLiteSinkWithConfig opens the audit database with custom configuration.
// Enables WAL mode and sets a busy timeout for better concurrency.
func OpenSQLiteSinkWithConfig(cfg SQLiteConfig) (*SQLiteSink, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d",
		cfg.Path,
		int(cfg.BusyTimeout.Milliseconds()),
	)

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, types.WrapError(types.AUDIT_OPEN_FAILED, "failed to open audit database", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, types.WrapError(types.AUDIT_OPEN_FAILED, "failed to ping audit database", err)
	}

	if _, err := conn.ExecContext(ctx, createEventsTable); err != nil {
		conn.Close()
		return nil, types.WrapError(types.AUDIT_OPEN_FAILED, "failed to create audit schema", err)
	}

	return &SQLiteSink{conn: conn, path: cfg.Path}, nil
}

// LogEvent implements Sink by inserting a single row.
func (s *SQLiteSink) LogEvent(ctx context.Context, workflowID types.ID, event EventType, details map[string]any) (types.ID, error) {
	eventID := types.NewID()

	var detailsJSON []byte
	if details != nil {
		var err error
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			return "", types.WrapError(types.AUDIT_WRITE_FAILED, "failed to encode event details", err)
		}
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO audit_events (id, workflow_id, event, timestamp, details) VALUES (?, ?, ?, ?, ?)`,
		eventID.String(),
		workflowID.String(),
		event.String(),
		time.Now().UTC().Format(time.RFC3339Nano),
		string(detailsJSON),
	)
	if err != nil {
		return "", types.WrapError(types.AUDIT_WRITE_FAILED, "failed to insert audit event", err)
	}

	return eventID, nil
}

// EventsForWorkflow returns all recorded events for a workflow in
// timestamp order.
func (s *SQLiteSink) EventsForWorkflow(ctx context.Context, workflowID types.ID) ([]Event, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, workflow_id, event, timestamp, details FROM audit_events WHERE workflow_id = ? ORDER BY timestamp`,
		workflowID.String(),
	)
	if err != nil {
		return nil, types.WrapError(types.AUDIT_QUERY_FAILED, "failed to query audit events", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			id, wfID, event, ts string
			detailsJSON         sql.NullString
		)
		if err := rows.Scan(&id, &wfID, &event, &ts, &detailsJSON); err != nil {
			return nil, types.WrapError(types.AUDIT_QUERY_FAILED, "failed to scan audit event", err)
		}

		timestamp, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, types.WrapError(types.AUDIT_QUERY_FAILED, "failed to parse event timestamp", err)
		}

		e := Event{
			ID:         types.ID(id),
			WorkflowID: types.ID(wfID),
			Type:       EventType(event),
			Timestamp:  timestamp,
		}
		if detailsJSON.Valid && detailsJSON.String != "" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &e.Details); err != nil {
				return nil, types.WrapError(types.AUDIT_QUERY_FAILED, "failed to decode event details", err)
			}
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Path returns the audit database file path.
func (s *SQLiteSink) Path() string {
	return s.path
}

// Ensure SQLiteSink implements Sink at compile time.
var _ Sink = (*SQLiteSink)(nil)

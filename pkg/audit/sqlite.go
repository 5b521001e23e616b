package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteConfig contains configuration for the SQLite audit store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default audit store configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/audit.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements Store on SQLite with WAL journaling.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if necessary) the audit database at
// the configured path and initializes the schema.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "audit.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database %q: %w", config.Path, err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStore{db: db, config: config, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("audit store initialized",
		"path", config.Path,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

func (s *SQLiteStore) initialize() error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	if _, err := s.db.Exec(insertSchemaVersion, schemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

// Insert implements Store.
func (s *SQLiteStore) Insert(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event.EventData)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var traceID any
	if event.TraceID != "" {
		traceID = event.TraceID
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_events (trace_id, request_id, event_type, event_data, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		traceID, event.RequestID, event.EventType, string(payload), ts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Query implements Store. Results come back oldest first so the
// per-request event order matches emission order.
func (s *SQLiteStore) Query(ctx context.Context, query *EventQuery) ([]*Event, error) {
	sqlQuery := `SELECT id, trace_id, request_id, event_type, event_data, timestamp
	             FROM audit_events WHERE 1=1`
	var args []any

	if query.TraceID != "" {
		sqlQuery += " AND trace_id = ?"
		args = append(args, query.TraceID)
	}
	if query.RequestID != "" {
		sqlQuery += " AND request_id = ?"
		args = append(args, query.RequestID)
	}
	if query.EventType != "" {
		sqlQuery += " AND event_type = ?"
		args = append(args, query.EventType)
	}
	if query.UserID != "" {
		// user_id lives inside the JSON payload.
		sqlQuery += " AND json_extract(event_data, '$.user_id') = ?"
		args = append(args, query.UserID)
	}
	if !query.StartTime.IsZero() {
		sqlQuery += " AND timestamp >= ?"
		args = append(args, query.StartTime)
	}
	if !query.EndTime.IsZero() {
		sqlQuery += " AND timestamp <= ?"
		args = append(args, query.EndTime)
	}

	sqlQuery += " ORDER BY id ASC"
	if query.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", query.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			e       Event
			traceID sql.NullString
			payload string
		)
		if err := rows.Scan(&e.ID, &traceID, &e.RequestID, &e.EventType, &payload, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.TraceID = traceID.String
		if err := json.Unmarshal([]byte(payload), &e.EventData); err != nil {
			s.logger.Warn("malformed audit event payload", "event_id", e.ID, "error", err)
			e.EventData = map[string]any{}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

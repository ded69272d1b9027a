package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fluxorio/stormsocket/pkg/storm"
)

// SQLiteSink records disconnect events into a local SQLite file through
// database/sql, the driver model mattn/go-sqlite3 registers into -- the
// same pool-over-database/sql shape the teacher's pkg/db uses for its
// generic drivers, narrowed here to the one statement this sink needs.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens path (created if missing) and verifies it's usable.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("audit: sqlite path cannot be empty")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("audit: sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1) // go-sqlite3 serializes writers; avoid lock contention churn
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: sqlite ping: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// EnsureSchema creates the disconnect_events table if it doesn't already
// exist.
func (s *SQLiteSink) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS disconnect_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	connection_slot INTEGER NOT NULL,
	connection_generation INTEGER NOT NULL,
	frontend_id INTEGER NOT NULL,
	recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// RecordDisconnect implements storm.AuditSink.
func (s *SQLiteSink) RecordDisconnect(id storm.ConnectionId, fid storm.FrontendId) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO disconnect_events (connection_slot, connection_generation, frontend_id) VALUES (?, ?, ?)`,
		id.Slot, id.Generation, fid,
	)
	return err
}

// Close releases the underlying *sql.DB.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

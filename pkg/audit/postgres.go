// Package audit supplies durable AuditSink implementations: Postgres via
// pgx's native pool interface, and SQLite via database/sql, mirroring the
// teacher's pkg/db connection-pool conventions (fail-fast construction,
// context-scoped statements) adapted onto each driver's own idiom.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fluxorio/stormsocket/pkg/storm"
)

// PostgresSink records disconnect events into a Postgres table via pgxpool,
// the pool interface pgx/v5 itself recommends over wrapping database/sql.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to dsn and verifies it's reachable before
// returning, failing fast rather than deferring the error to the first
// RecordDisconnect call.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	if dsn == "" {
		return nil, fmt.Errorf("audit: postgres DSN cannot be empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: postgres pool init: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: postgres ping: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

// EnsureSchema creates the disconnect_events table if it doesn't already
// exist. Callers that manage their own migrations can skip this.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS disconnect_events (
	id BIGSERIAL PRIMARY KEY,
	connection_slot INTEGER NOT NULL,
	connection_generation INTEGER NOT NULL,
	frontend_id BIGINT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// RecordDisconnect implements storm.AuditSink.
func (s *PostgresSink) RecordDisconnect(id storm.ConnectionId, fid storm.FrontendId) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO disconnect_events (connection_slot, connection_generation, frontend_id) VALUES ($1, $2, $3)`,
		id.Slot, id.Generation, fid,
	)
	return err
}

// Close releases the pool's connections.
func (s *PostgresSink) Close() {
	s.pool.Close()
}

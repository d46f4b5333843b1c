package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS playground_requests (
	id           TEXT PRIMARY KEY,
	request_id   TEXT NOT NULL,
	endpoint     TEXT NOT NULL,
	backend      TEXT NOT NULL,
	code_hash    TEXT NOT NULL,
	result       TEXT NOT NULL,
	exit_code    INTEGER NOT NULL,
	timed_out    BOOLEAN NOT NULL,
	duration_ms  BIGINT NOT NULL,
	output_bytes INTEGER NOT NULL,
	remote_addr  TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS playground_requests_created_at ON playground_requests (created_at);
CREATE INDEX IF NOT EXISTS playground_requests_request_id ON playground_requests (request_id);
CREATE TABLE IF NOT EXISTS playground_security_events (
	id         TEXT PRIMARY KEY,
	audit_id   TEXT NOT NULL REFERENCES playground_requests (id) ON DELETE CASCADE,
	pattern    TEXT NOT NULL,
	severity   TEXT NOT NULL,
	source     TEXT NOT NULL,
	line       INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`

// DB wraps a PostgreSQL connection pool for audit logging.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, dsn string, maxConns int32) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database DSN: %w", err)
	}

	config.MaxConns = maxConns
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().Msg("connected to PostgreSQL")
	return &DB{pool: pool}, nil
}

// EnsureSchema creates the audit tables if they are missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating audit schema: %w", err)
	}
	return nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// LogRequest inserts rec and its security events in one transaction. The
// conflict clauses only make a retried write idempotent; ids are generated
// by the service.
func (db *DB) LogRequest(ctx context.Context, rec *AuditRecord) error {
	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO playground_requests (id, request_id, endpoint, backend, code_hash, result,
				exit_code, timed_out, duration_ms, output_bytes, remote_addr, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO NOTHING`,
			rec.ID, rec.RequestID, rec.Endpoint, rec.Backend, rec.CodeHash, rec.Result,
			rec.ExitCode, rec.TimedOut, rec.DurationMS, rec.OutputBytes,
			rec.RemoteAddr, rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting request: %w", err)
		}

		for i := range rec.SecurityEvents {
			ev := &rec.SecurityEvents[i]
			if ev.ID == "" {
				ev.ID = uuid.New().String()
			}
			if ev.CreatedAt.IsZero() {
				ev.CreatedAt = rec.CreatedAt
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO playground_security_events (id, audit_id, pattern, severity, source, line, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (id) DO NOTHING`,
				ev.ID, rec.ID, ev.Pattern, ev.Severity, ev.Source, ev.Line, ev.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("inserting security event: %w", err)
			}
		}
		return nil
	})
}

// Package postgres provides a PostgreSQL-backed change log.
//
// Events live in an append-only table keyed by a BIGSERIAL offset; committed
// offsets are tracked per consumer group in a separate table. Producers
// serialize on a transaction-scoped advisory lock so offsets become visible
// in commit order: without it, a slow transaction holding offset n could
// commit after a consumer has already fetched past n, and the event would
// never be delivered.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groundplane/groundplane/internal/logger"
	"github.com/groundplane/groundplane/pkg/changelog"
)

// appendLockID identifies the advisory lock that serializes producers. The
// value is arbitrary but must be shared by every instance appending to the
// same database.
const appendLockID = 828471

// Log implements changelog.Log backed by PostgreSQL.
type Log struct {
	// pool is the PostgreSQL connection pool
	pool *pgxpool.Pool

	// config holds the change log configuration
	config *Config

	// logger for structured logging
	logger *slog.Logger
}

var _ changelog.Log = (*Log)(nil)

// New creates a PostgreSQL-backed change log. When cfg.AutoMigrate is set
// the schema migrations run before the log is returned.
func New(ctx context.Context, cfg *Config) (*Log, error) {
	// Apply defaults before validation
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.With("component", "postgres_changelog")

	// Build pgxpool config
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// Apply connection pool settings
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod

	// Set query timeout as statement timeout
	if cfg.QueryTimeout > 0 {
		poolConfig.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%dms", cfg.QueryTimeout.Milliseconds())
	}

	log.Info("Creating PostgreSQL connection pool",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database,
		"user", cfg.User,
		"max_conns", cfg.MaxConns,
		"ssl_mode", cfg.SSLMode,
	)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	// Run migrations if AutoMigrate is enabled
	if cfg.AutoMigrate {
		log.Info("AutoMigrate is enabled, running migrations...")
		if err := runMigrations(ctx, cfg.ConnectionString(), log); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	} else {
		log.Info("AutoMigrate is disabled, skipping migrations")
	}

	log.Info("PostgreSQL change log initialized",
		"host", cfg.Host,
		"database", cfg.Database,
		"max_conns", cfg.MaxConns,
	)

	return &Log{
		pool:   pool,
		config: cfg,
		logger: log,
	}, nil
}

// Append validates the event, assigns it the next offset and persists it.
func (l *Log) Append(ctx context.Context, event changelog.Event) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := event.Validate(); err != nil {
		return 0, err
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if committed

	// Serialize producers for the duration of the transaction. BIGSERIAL
	// alone does not guarantee commit-order visibility.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", appendLockID); err != nil {
		return 0, fmt.Errorf("failed to acquire append lock: %w", err)
	}

	occurred := event.Time
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	var assigned int64
	err = tx.QueryRow(ctx,
		`INSERT INTO changelog_events (tenant_id, op, payload, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING event_offset`,
		event.TenantID, string(event.Op), event.Payload, occurred,
	).Scan(&assigned)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit event: %w", err)
	}

	return uint64(assigned), nil
}

// Fetch returns up to max events past the group's committed offset, in
// ascending offset order.
func (l *Log) Fetch(ctx context.Context, group string, max int) ([]changelog.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if group == "" {
		return nil, changelog.ErrInvalidGroup
	}
	if max <= 0 {
		return nil, nil
	}

	committed, err := l.committedOffset(ctx, group)
	if err != nil {
		return nil, err
	}

	rows, err := l.pool.Query(ctx,
		`SELECT event_offset, tenant_id, op, payload, created_at
		 FROM changelog_events
		 WHERE event_offset > $1
		 ORDER BY event_offset
		 LIMIT $2`,
		int64(committed), max,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []changelog.Event
	for rows.Next() {
		var (
			offset   int64
			tenantID string
			op       string
			payload  []byte
			created  time.Time
		)
		if err := rows.Scan(&offset, &tenantID, &op, &payload, &created); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, changelog.Event{
			TenantID: tenantID,
			Op:       changelog.Op(op),
			Payload:  payload,
			Offset:   uint64(offset),
			Time:     created,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	return events, nil
}

// Commit durably records the group's committed offset. Commits never move
// backwards.
func (l *Log) Commit(ctx context.Context, group string, offset uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if group == "" {
		return changelog.ErrInvalidGroup
	}

	// GREATEST keeps commits forward-only under concurrent or replayed
	// consumers.
	_, err := l.pool.Exec(ctx,
		`INSERT INTO changelog_offsets (consumer_group, committed_offset, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (consumer_group) DO UPDATE SET
			committed_offset = GREATEST(changelog_offsets.committed_offset, EXCLUDED.committed_offset),
			updated_at = now()`,
		group, int64(offset),
	)
	if err != nil {
		return fmt.Errorf("failed to commit offset: %w", err)
	}
	return nil
}

// Healthcheck verifies the PostgreSQL connection is healthy.
func (l *Log) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (l *Log) Close() error {
	l.logger.Info("Closing PostgreSQL change log...")
	l.pool.Close()
	return nil
}

func (l *Log) committedOffset(ctx context.Context, group string) (uint64, error) {
	var committed int64
	err := l.pool.QueryRow(ctx,
		`SELECT committed_offset FROM changelog_offsets WHERE consumer_group = $1`,
		group,
	).Scan(&committed)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read committed offset: %w", err)
	}
	return uint64(committed), nil
}

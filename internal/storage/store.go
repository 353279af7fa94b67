package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradewatch/internal/config"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	ensureSchemaSQL = `CREATE TABLE IF NOT EXISTS alert_events (
        id          BIGSERIAL PRIMARY KEY,
        alert_id    TEXT NOT NULL,
        symbol      TEXT NOT NULL,
        condition   TEXT NOT NULL,
        threshold   TEXT NOT NULL,
        price       DOUBLE PRECISION NOT NULL,
        notified    BOOLEAN NOT NULL DEFAULT FALSE,
        error       TEXT,
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS alert_events_created_at_idx ON alert_events (created_at DESC);`

	insertEventSQL = `INSERT INTO alert_events (
        alert_id,
        symbol,
        condition,
        threshold,
        price,
        notified,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING id, created_at;`

	listRecentEventsSQL = `SELECT
        id,
        alert_id,
        symbol,
        condition,
        threshold,
        price,
        notified,
        error,
        created_at
    FROM alert_events
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteEventsBeforeSQL = `DELETE FROM alert_events WHERE created_at < $1;`
)

// EventStore defines operations for trigger auditing.
type EventStore interface {
	RecordTrigger(ctx context.Context, event TriggerEvent) (TriggerEvent, error)
	ListRecentEvents(ctx context.Context, limit int) ([]TriggerEvent, error)
	DeleteEventsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// Store persists trigger events in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open configures a pool from runtime settings and makes sure the schema
// exists.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	store := NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the event table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, ensureSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// RecordTrigger persists a trigger event.
func (s *Store) RecordTrigger(ctx context.Context, event TriggerEvent) (TriggerEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return TriggerEvent{}, err
	}

	var errMsg interface{}
	if event.Error != nil {
		errMsg = *event.Error
	}

	row := pool.QueryRow(ctx, insertEventSQL,
		event.AlertID,
		event.Symbol,
		event.Condition,
		event.Threshold,
		event.Price,
		event.Notified,
		errMsg,
	)
	if scanErr := row.Scan(&event.ID, &event.CreatedAt); scanErr != nil {
		return TriggerEvent{}, fmt.Errorf("insert trigger event: %w", scanErr)
	}
	return event, nil
}

// ListRecentEvents lists the most recent trigger events.
func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]TriggerEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentEventsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent events: %w", queryErr)
	}
	defer rows.Close()

	events := make([]TriggerEvent, 0, limit)
	for rows.Next() {
		event, scanErr := scanTriggerEvent(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		events = append(events, event)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

// DeleteEventsBefore prunes historical events.
func (s *Store) DeleteEventsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteEventsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete events before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

func scanTriggerEvent(rows pgx.Rows) (TriggerEvent, error) {
	var (
		event  TriggerEvent
		errMsg sql.NullString
	)
	if err := rows.Scan(
		&event.ID,
		&event.AlertID,
		&event.Symbol,
		&event.Condition,
		&event.Threshold,
		&event.Price,
		&event.Notified,
		&errMsg,
		&event.CreatedAt,
	); err != nil {
		return TriggerEvent{}, err
	}
	if errMsg.Valid {
		msg := errMsg.String
		event.Error = &msg
	}
	return event, nil
}

var _ EventStore = (*Store)(nil)

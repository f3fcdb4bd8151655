// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/applytrail/tracker/internal/tracker"
)

// ApplicationStoreConfig controls the Postgres connection pool used for
// application rows.
type ApplicationStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// ApplicationStore persists application records in Postgres, enforcing key
// uniqueness through the job_url constraint.
type ApplicationStore struct {
	pool pgxQuerier
}

// NewApplicationStore creates a Postgres-backed ApplicationStore.
func NewApplicationStore(ctx context.Context, cfg ApplicationStoreConfig) (*ApplicationStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ApplicationStore{pool: pool}, nil
}

// NewApplicationStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewApplicationStoreWithPool(pool pgxQuerier) (*ApplicationStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ApplicationStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *ApplicationStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the database connection is usable.
func (s *ApplicationStore) Ping(ctx context.Context) error {
	var one int
	if err := s.pool.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// EnsureSchema creates the applications table when it does not exist yet.
func (s *ApplicationStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS applications (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	job_url TEXT UNIQUE,
	date_applied DATE,
	platform TEXT,
	company TEXT,
	position TEXT,
	application_status TEXT NOT NULL DEFAULT 'Applied',
	email_id TEXT,
	notes TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure applications schema: %w", err)
	}
	return nil
}

// Exists reports whether a record with the given key is already stored.
func (s *ApplicationStore) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM applications WHERE job_url = $1`, key).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query application existence: %w", err)
	}
	return true, nil
}

const insertSQL = `
INSERT INTO applications (job_url, date_applied, platform, company, position, application_status, email_id, notes)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
ON CONFLICT (job_url) DO NOTHING`

// InsertOne stores one record, reporting false when the key already exists.
func (s *ApplicationStore) InsertOne(ctx context.Context, rec tracker.ApplicationRecord) (bool, error) {
	tag, err := s.pool.Exec(ctx, insertSQL, insertArgs(rec)...)
	if err != nil {
		return false, fmt.Errorf("insert application: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertBatch stores all records inside one transaction and returns how many
// rows were actually written. Conflicting keys are dropped silently.
func (s *ApplicationStore) InsertBatch(ctx context.Context, recs []tracker.ApplicationRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin batch insert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	inserted := 0
	for _, rec := range recs {
		tag, err := tx.Exec(ctx, insertSQL, insertArgs(rec)...)
		if err != nil {
			return 0, fmt.Errorf("insert application %q: %w", rec.Key, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit batch insert: %w", err)
	}
	return inserted, nil
}

// UpdateStatus advances every record whose key contains keyPattern as a
// substring and whose status still equals from. It returns the number of
// rows transitioned; zero matches is not an error.
func (s *ApplicationStore) UpdateStatus(
	ctx context.Context,
	keyPattern string,
	from, to tracker.Status,
	confirmationID string,
) (int64, error) {
	if keyPattern == "" {
		return 0, fmt.Errorf("key pattern is required")
	}
	if !tracker.CanTransition(from, to) {
		return 0, fmt.Errorf("status transition %s -> %s is not allowed", from, to)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE applications
SET application_status = $1, email_id = $2
WHERE job_url LIKE $3 AND application_status = $4`,
		string(to), confirmationID, "%"+keyPattern+"%", string(from))
	if err != nil {
		return 0, fmt.Errorf("update application status: %w", err)
	}
	return tag.RowsAffected(), nil
}

// List returns all stored applications, newest first.
func (s *ApplicationStore) List(ctx context.Context) ([]tracker.ApplicationRecord, error) {
	rows, err := s.pool.Query(ctx, `
SELECT job_url, date_applied, platform, company, position, application_status, COALESCE(email_id, ''), COALESCE(notes, '')
FROM applications
ORDER BY date_applied DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var recs []tracker.ApplicationRecord
	for rows.Next() {
		var rec tracker.ApplicationRecord
		var status string
		if err := rows.Scan(
			&rec.Key,
			&rec.DateApplied,
			&rec.Platform,
			&rec.Company,
			&rec.Position,
			&status,
			&rec.ConfirmationID,
			&rec.Notes,
		); err != nil {
			return nil, fmt.Errorf("scan application row: %w", err)
		}
		rec.Status = tracker.Status(status)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate application rows: %w", err)
	}
	return recs, nil
}

func insertArgs(rec tracker.ApplicationRecord) []any {
	return []any{
		rec.Key,
		rec.DateApplied,
		rec.Platform,
		rec.Company,
		rec.Position,
		string(rec.Status),
		rec.ConfirmationID,
		rec.Notes,
	}
}

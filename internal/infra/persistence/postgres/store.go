// Package postgres stores snapshot buckets as JSONB rows in Postgres.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/rollcall?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Backend keeps one row per bucket in `state(bucket, payload JSONB)`.
type Backend struct {
	db *sql.DB
	mu sync.Mutex
}

// NewBackend opens the database at dsn (falls back to defaultDSN), pings it
// and ensures the state table exists.
func NewBackend(ctx context.Context, dsn string) (*Backend, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureStateTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Backend{db: db}, nil
}

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure state table: %w", err)
	}
	return nil
}

// Load returns the payload stored for bucket. ok is false when no row exists.
func (b *Backend) Load(ctx context.Context, bucket string) ([]byte, bool, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT payload FROM state WHERE bucket = $1`, bucket)
	if err != nil {
		return nil, false, fmt.Errorf("select %s: %w", bucket, err)
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, false, fmt.Errorf("iterate %s: %w", bucket, err)
		}
		return nil, false, nil
	}
	var payload []byte
	if err := rows.Scan(&payload); err != nil {
		return nil, false, fmt.Errorf("scan %s: %w", bucket, err)
	}
	return payload, true, nil
}

// Save upserts a single bucket.
func (b *Backend) Save(ctx context.Context, bucket string, payload []byte) error {
	return b.SaveBuckets(ctx, map[string][]byte{bucket: payload})
}

// SaveBuckets upserts every bucket in one transaction.
func (b *Backend) SaveBuckets(ctx context.Context, buckets map[string][]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for bucket, data := range buckets {
		if len(data) == 0 {
			return errors.New("postgres: empty payload for bucket " + bucket)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Close releases the database handle.
func (b *Backend) Close() error { return b.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (b *Backend) DB() *sql.DB { return b.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}

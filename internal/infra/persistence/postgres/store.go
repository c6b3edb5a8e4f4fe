// Package postgres persists the rule snapshot to a Postgres database.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"usbverifier/internal/infra/persistence/rulestable"
	"usbverifier/internal/registry"
)

const (
	driverName = "pgx"
	defaultDSN = "postgres://localhost/usbverifier?sslmode=disable"
)

const upsert = `INSERT INTO rules (descriptor, payload) VALUES ($1, $2)
	ON CONFLICT (descriptor) DO UPDATE SET payload = EXCLUDED.payload`

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store keeps one JSONB row per descriptor.
type Store struct {
	db *sql.DB
}

// New connects to dsn and ensures the rules table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(driverName, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS rules (
		descriptor TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure rules table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Load(ctx context.Context) (registry.Snapshot, error) {
	return rulestable.Load(ctx, s.db)
}

func (s *Store) Save(ctx context.Context, snap registry.Snapshot) error {
	return rulestable.Save(ctx, s.db, upsert, snap)
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the connection pool for integration hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the connection constructor for tests and returns a
// restore function.
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

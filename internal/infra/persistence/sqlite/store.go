// Package sqlite persists the rule snapshot to a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"usbverifier/internal/infra/persistence/rulestable"
	"usbverifier/internal/registry"
)

const defaultPath = "usbverifier.db"

const upsert = `INSERT INTO rules(descriptor, payload) VALUES(?, ?)
	ON CONFLICT(descriptor) DO UPDATE SET payload=excluded.payload`

// Store keeps one row per descriptor in the rules table.
type Store struct {
	db   *sql.DB
	path string
}

// New opens (or creates) the database at path.
func New(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS rules (
		descriptor TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create rules table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Load(ctx context.Context) (registry.Snapshot, error) {
	return rulestable.Load(ctx, s.db)
}

func (s *Store) Save(ctx context.Context, snap registry.Snapshot) error {
	return rulestable.Save(ctx, s.db, upsert, snap)
}

func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Package rulestable reads and writes registry snapshots to the SQL table
// shared by the sqlite and postgres stores. Every descriptor is one row
// holding its field values as a JSON object.
package rulestable

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"usbverifier/internal/registry"
	"usbverifier/pkg/verification"
)

// Table is the name of the rules table.
const Table = "rules"

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Load reads every row into a snapshot.
func Load(ctx context.Context, db *sql.DB) (registry.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT descriptor, payload FROM `+Table)
	if err != nil {
		return nil, fmt.Errorf("select rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snap := registry.Snapshot{}
	for rows.Next() {
		var (
			descriptor string
			payload    []byte
		)
		if err := rows.Scan(&descriptor, &payload); err != nil {
			return nil, fmt.Errorf("scan rules: %w", err)
		}
		var fields map[string][]verification.Value
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, fmt.Errorf("decode %s rules: %w", descriptor, err)
		}
		if len(fields) > 0 {
			snap[descriptor] = fields
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return snap, nil
}

// Save replaces the table content with snap inside one transaction.
// insert must take the descriptor and payload as its two parameters.
func Save(ctx context.Context, db *sql.DB, insert string, snap registry.Snapshot) (retErr error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if err := Write(ctx, tx, insert, snap); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rules: %w", err)
	}
	return nil
}

// Write clears the table and inserts one row per descriptor of snap in
// sorted order.
func Write(ctx context.Context, ex Execer, insert string, snap registry.Snapshot) error {
	if _, err := ex.ExecContext(ctx, `DELETE FROM `+Table); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}
	for _, descriptor := range slices.Sorted(maps.Keys(snap)) {
		fields := snap[descriptor]
		if len(fields) == 0 {
			continue
		}
		payload, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("encode %s rules: %w", descriptor, err)
		}
		if _, err := ex.ExecContext(ctx, insert, descriptor, payload); err != nil {
			return fmt.Errorf("insert %s rules: %w", descriptor, err)
		}
	}
	return nil
}

// Package store selects the persistence backend for the rule registries.
// It is the only package allowed to import internal/infra/persistence.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"usbverifier/internal/config"
	"usbverifier/internal/infra/persistence/memory"
	"usbverifier/internal/infra/persistence/postgres"
	"usbverifier/internal/infra/persistence/sqlite"
	"usbverifier/internal/registry"
)

// ErrUnsupportedDriver is returned by Open for unknown driver names.
var ErrUnsupportedDriver = errors.New("unsupported store driver")

// Store loads and saves the registry snapshot between command runs.
type Store interface {
	Load(ctx context.Context) (registry.Snapshot, error)
	Save(ctx context.Context, snap registry.Snapshot) error
	Close() error
}

// Open constructs the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case config.StoreMemory:
		s = memory.New()
	case config.StoreSQLite, "":
		s, err = sqlite.New(ctx, cfg.Path)
	case config.StorePostgres:
		s, err = postgres.New(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedDriver, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("rule store opened", zap.String("driver", cfg.Driver))
	return s, nil
}

// Hydrate restores set from the saved snapshot.
func Hydrate(ctx context.Context, s Store, set *registry.Set) error {
	snap, err := s.Load(ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	if err := set.Restore(snap); err != nil {
		return fmt.Errorf("restore rules: %w", err)
	}
	return nil
}

// Persist saves the current content of set.
func Persist(ctx context.Context, s Store, set *registry.Set) error {
	if err := s.Save(ctx, set.Snapshot()); err != nil {
		return fmt.Errorf("save rules: %w", err)
	}
	return nil
}

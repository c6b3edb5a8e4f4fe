// Package memory keeps the rule snapshot in process memory.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"usbverifier/internal/registry"
)

// Store holds the last saved snapshot.
type Store struct {
	mu   sync.RWMutex
	snap registry.Snapshot
}

// New returns an empty store.
func New() *Store { return &Store{snap: registry.Snapshot{}} }

// Load returns a copy of the saved snapshot.
func (s *Store) Load(context.Context) (registry.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.snap), nil
}

// Save replaces the stored snapshot with a copy of snap.
func (s *Store) Save(_ context.Context, snap registry.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = clone(snap)
	return nil
}

func (s *Store) Close() error { return nil }

func clone(in registry.Snapshot) registry.Snapshot {
	out := make(registry.Snapshot, len(in))
	for desc, fields := range in {
		cp := maps.Clone(fields)
		for name, values := range cp {
			cp[name] = slices.Clone(values)
		}
		out[desc] = cp
	}
	return out
}

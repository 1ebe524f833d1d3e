// Package cursor tracks the last announced check-in id per user.
//
// The in-memory cache is the fast path. When a durable backend is
// configured every write goes through to it and cache misses consult it,
// so cursors survive restarts. Without a backend cursors live for the
// process lifetime only and a restart re-seeds every user.
//
// Store is owned by a single execution path and is not safe for
// concurrent use.
package cursor

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"slappd/internal/storage"
)

// Store holds per-user cursors.
type Store struct {
	backend storage.Backend
	cache   map[string]int64
	log     *slog.Logger
}

// New creates a Store. backend may be nil for memory-only operation.
func New(backend storage.Backend, log *slog.Logger) *Store {
	return &Store{
		backend: backend,
		cache:   make(map[string]int64),
		log:     log,
	}
}

// Durable reports whether cursors are mirrored to a backend.
func (s *Store) Durable() bool {
	return s.backend != nil
}

// Load warms the cache from the backend for the given users.
func (s *Store) Load(ctx context.Context, users []string) error {
	if s.backend == nil {
		return nil
	}
	for _, user := range users {
		if _, _, err := s.Get(ctx, user); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the cursor for user; ok is false when the user was never synced.
func (s *Store) Get(ctx context.Context, user string) (int64, bool, error) {
	if id, ok := s.cache[user]; ok {
		return id, true, nil
	}
	if s.backend == nil {
		return 0, false, nil
	}

	id, ok, err := s.backend.GetCursor(ctx, user)
	if err != nil {
		return 0, false, fmt.Errorf("load cursor for %s: %w", user, err)
	}
	if !ok {
		return 0, false, nil
	}
	s.log.Debug("loaded cursor from backend", "user", user, "cursor", id)
	s.cache[user] = id
	return id, true, nil
}

// Set records id as the cursor for user. Setting the cached value again is a no-op.
// The cache is updated even when the backend write fails.
func (s *Store) Set(ctx context.Context, user string, id int64) error {
	if cur, ok := s.cache[user]; ok && cur == id {
		return nil
	}
	s.cache[user] = id
	if s.backend == nil {
		return nil
	}
	if err := s.backend.SetCursor(ctx, user, id); err != nil {
		return fmt.Errorf("store cursor for %s: %w", user, err)
	}
	s.log.Debug("stored cursor in backend", "user", user, "cursor", id)
	return nil
}

// Clear forgets the cursor for user so the next cycle re-seeds.
func (s *Store) Clear(ctx context.Context, user string) error {
	delete(s.cache, user)
	if s.backend == nil {
		return nil
	}
	if err := s.backend.DeleteCursor(ctx, user); err != nil {
		return fmt.Errorf("clear cursor for %s: %w", user, err)
	}
	return nil
}

// Snapshot returns a copy of the cached cursors.
func (s *Store) Snapshot() map[string]int64 {
	return maps.Clone(s.cache)
}

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Backend kinds accepted by Open.
const (
	KindNone   = "none"
	KindSQLite = "sqlite"
	KindRedis  = "redis"
)

// Open returns the backend of the given kind. KindNone yields a nil Backend.
// For SQLite the database directory is created when missing.
func Open(ctx context.Context, kind, databasePath, redisURL string) (Backend, error) {
	switch kind {
	case KindNone:
		return nil, nil
	case KindSQLite:
		if dir := filepath.Dir(databasePath); dir != "." && databasePath != ":memory:" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create data directory %s: %w", dir, err)
			}
		}
		s, err := NewSQLite(databasePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindRedis:
		r, err := NewRedis(ctx, redisURL)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown cursor backend %q", kind)
	}
}

// Package storage defines the durable cursor backend and its implementations.
package storage

import (
	"context"
	"time"
)

// Backend is a durable mirror of per-user cursors.
// A cursor is the id of the last announced check-in for a user.
type Backend interface {
	// GetCursor returns the stored cursor; ok is false when none exists.
	GetCursor(ctx context.Context, user string) (id int64, ok bool, err error)
	SetCursor(ctx context.Context, user string, id int64) error
	DeleteCursor(ctx context.Context, user string) error
	ListCursors(ctx context.Context) (map[string]int64, error)

	Close() error
}

// Reset records a cursor that was cleared.
type Reset struct {
	User      string
	CheckinID int64
	ResetAt   time.Time
}

// KeyPrefix namespaces cursor keys in key-value backends.
const KeyPrefix = "last_checkin:"

// Key returns the namespaced key for a user's cursor.
func Key(user string) string {
	return KeyPrefix + user
}

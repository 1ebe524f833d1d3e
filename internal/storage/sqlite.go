package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"slappd/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Backend backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// GetCursor returns the stored cursor for user.
func (s *SQLite) GetCursor(ctx context.Context, user string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT checkin_id FROM cursors WHERE user_name = ?`, user,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get cursor: %w", err)
	}
	return id, true, nil
}

// SetCursor inserts or replaces the cursor for user.
func (s *SQLite) SetCursor(ctx context.Context, user string, id int64) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cursors (user_name, checkin_id, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_name) DO UPDATE SET checkin_id = excluded.checkin_id, updated_at = excluded.updated_at`,
		user, id, now,
	)
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

// DeleteCursor removes the cursor for user and records the reset.
func (s *SQLite) DeleteCursor(ctx context.Context, user string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT checkin_id FROM cursors WHERE user_name = ?`, user).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get cursor: %w", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cursor_resets (user_name, checkin_id, reset_at) VALUES (?, ?, ?)`,
		user, id, now,
	); err != nil {
		return fmt.Errorf("record reset: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cursors WHERE user_name = ?`, user); err != nil {
		return fmt.Errorf("delete cursor: %w", err)
	}
	return tx.Commit()
}

// ListCursors returns every stored cursor keyed by user.
func (s *SQLite) ListCursors(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_name, checkin_id FROM cursors ORDER BY user_name`)
	if err != nil {
		return nil, fmt.Errorf("query cursors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int64)
	for rows.Next() {
		var user string
		var id int64
		if err := rows.Scan(&user, &id); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		out[user] = id
	}
	return out, rows.Err()
}

// ListResets returns the most recent cursor resets, newest first.
func (s *SQLite) ListResets(ctx context.Context, limit int) ([]Reset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_name, checkin_id, reset_at FROM cursor_resets ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query resets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var resets []Reset
	for rows.Next() {
		var r Reset
		var resetAt string
		if err := rows.Scan(&r.User, &r.CheckinID, &resetAt); err != nil {
			return nil, fmt.Errorf("scan reset: %w", err)
		}
		r.ResetAt, _ = time.Parse(timeLayout, resetAt)
		resets = append(resets, r)
	}
	return resets, rows.Err()
}

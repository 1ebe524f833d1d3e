package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisClient is the subset of *redis.Client used by Redis.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Close() error
}

// Redis implements Backend on a Redis server. Cursors are plain string
// values under "last_checkin:<user>" and never expire.
type Redis struct {
	client redisClient
}

// NewRedis connects to the Redis server at url and verifies it with PING.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client}, nil
}

// Close closes the client connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// GetCursor returns the stored cursor for user.
func (r *Redis) GetCursor(ctx context.Context, user string) (int64, bool, error) {
	val, err := r.client.Get(ctx, Key(user)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get cursor: %w", err)
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse cursor %q: %w", val, err)
	}
	return id, true, nil
}

// SetCursor stores the cursor for user.
func (r *Redis) SetCursor(ctx context.Context, user string, id int64) error {
	if err := r.client.Set(ctx, Key(user), strconv.FormatInt(id, 10), 0).Err(); err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

// DeleteCursor removes the cursor for user.
func (r *Redis) DeleteCursor(ctx context.Context, user string) error {
	if err := r.client.Del(ctx, Key(user)).Err(); err != nil {
		return fmt.Errorf("delete cursor: %w", err)
	}
	return nil
}

// ListCursors scans every cursor key. Values that fail to parse are skipped.
func (r *Redis) ListCursors(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, KeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan cursors: %w", err)
		}
		for _, key := range keys {
			user := strings.TrimPrefix(key, KeyPrefix)
			id, ok, err := r.GetCursor(ctx, user)
			if err != nil || !ok {
				continue
			}
			out[user] = id
		}
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

// Package syncer implements incremental check-in synchronisation.
//
// For every tracked user the engine keeps a cursor: the id of the newest
// check-in already announced. Each cycle fetches activity past the cursor,
// advances the cursor to the newest id in the batch and then announces
// every check-in strictly newer than the previous cursor, oldest first.
// The first cycle for a user only seeds the cursor.
//
// The cursor is advanced before notifications go out, so a crash halfway
// through a batch loses the remaining notifications instead of repeating
// the ones already sent.
package syncer

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"slappd/internal/fetcher"
	"slappd/internal/metrics"
	"slappd/internal/model"
)

// CursorStore holds the per-user cursor.
type CursorStore interface {
	Get(ctx context.Context, user string) (int64, bool, error)
	Set(ctx context.Context, user string, id int64) error
	Clear(ctx context.Context, user string) error
}

// Announcer delivers notifications. Implementations swallow delivery failures.
type Announcer interface {
	AnnounceCheckin(ctx context.Context, c model.Checkin)
	AnnounceBadge(ctx context.Context, c model.Checkin, b model.Badge)
}

// Options tunes engine policy.
type Options struct {
	// AnnounceSeed also announces the seeding batch. Used for previews.
	AnnounceSeed bool
	// ResetAfterFailures clears a user's cursor after this many consecutive
	// timeout or connection failures. Zero disables the reset.
	ResetAfterFailures int
}

// Result describes one user's cycle.
type Result struct {
	User      string
	HadCursor bool
	Previous  int64
	Cursor    int64
	Seeded    bool
	Reset     bool
	Checkins  int
	Badges    int
}

// Engine runs sync cycles over a fixed set of users. It is driven by a
// single goroutine and holds no locks.
type Engine struct {
	store     CursorStore
	source    fetcher.Source
	announcer Announcer
	users     []string
	opts      Options
	log       *slog.Logger
	metrics   *metrics.Metrics

	failures map[string]int
}

// New creates an Engine.
func New(store CursorStore, source fetcher.Source, announcer Announcer, users []string, opts Options, log *slog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		store:     store,
		source:    source,
		announcer: announcer,
		users:     slices.Clone(users),
		opts:      opts,
		log:       log,
		metrics:   m,
		failures:  make(map[string]int),
	}
}

// Users returns the tracked users in processing order.
func (e *Engine) Users() []string {
	return slices.Clone(e.users)
}

// RunCycle syncs every user in order. A failing user is logged and
// skipped; the returned error joins all per-user failures.
func (e *Engine) RunCycle(ctx context.Context) error {
	start := time.Now()
	defer func() { e.metrics.CycleDone(time.Since(start).Seconds()) }()

	var errs []error
	for _, user := range e.users {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res, err := e.syncUserSafe(ctx, user)
		if err != nil {
			e.log.Error("sync user", "user", user, "kind", fetcher.KindOf(err).String(), "cursor_reset", res.Reset, "error", err)
			errs = append(errs, err)
			continue
		}
		if res.Checkins > 0 {
			e.log.Info("announced checkins", "user", user, "count", res.Checkins, "badges", res.Badges, "cursor", res.Cursor)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) syncUserSafe(ctx context.Context, user string) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync %s: panic: %v", user, r)
		}
	}()
	return e.SyncUser(ctx, user)
}

// SyncUser runs one cycle for user.
func (e *Engine) SyncUser(ctx context.Context, user string) (Result, error) {
	res := Result{User: user}

	prev, ok, err := e.store.Get(ctx, user)
	if err != nil {
		return res, fmt.Errorf("read cursor: %w", err)
	}
	res.HadCursor, res.Previous, res.Cursor = ok, prev, prev

	var minID int64
	if ok {
		minID = prev
	}
	e.log.Debug("fetching checkins", "user", user, "cursor", minID)

	checkins, err := e.source.Fetch(ctx, user, minID)
	if err != nil {
		return res, e.fetchFailed(ctx, &res, err)
	}
	delete(e.failures, user)

	batch := normalize(checkins)
	if len(batch) == 0 {
		return res, nil
	}
	newest := batch[len(batch)-1].ID

	if !ok {
		e.advance(ctx, &res, newest)
		res.Seeded = true
		e.log.Info("seeded cursor", "user", user, "cursor", newest)
		if e.opts.AnnounceSeed {
			e.announce(ctx, &res, batch)
		}
		return res, nil
	}

	// Equal means nothing new. Older means the upstream returned stale data;
	// the cursor never moves backwards.
	if newest <= prev {
		return res, nil
	}

	e.advance(ctx, &res, newest)
	fresh := slices.DeleteFunc(batch, func(c model.Checkin) bool { return c.ID <= prev })
	e.announce(ctx, &res, fresh)
	return res, nil
}

// advance records newest as the cursor. A failed durable write is logged:
// the in-memory cursor has already moved, so this process will not repeat
// the batch.
func (e *Engine) advance(ctx context.Context, res *Result, newest int64) {
	if err := e.store.Set(ctx, res.User, newest); err != nil {
		e.log.Error("store cursor", "user", res.User, "cursor", newest, "error", err)
	}
	res.Cursor = newest
	e.metrics.CursorSet(res.User, newest)
}

func (e *Engine) announce(ctx context.Context, res *Result, batch []model.Checkin) {
	for _, c := range batch {
		e.announcer.AnnounceCheckin(ctx, c)
		res.Checkins++
		for _, b := range c.Badges {
			e.announcer.AnnounceBadge(ctx, c, b)
			res.Badges++
		}
	}
}

// fetchFailed applies failure policy. Only repeated timeout or connection
// failures clear the cursor; rate limiting and upstream errors leave it alone.
func (e *Engine) fetchFailed(ctx context.Context, res *Result, err error) error {
	kind := fetcher.KindOf(err)
	if kind == 0 {
		return fmt.Errorf("fetch: %w", err)
	}
	e.metrics.FetchError(kind.String())

	if kind != fetcher.KindTimeout && kind != fetcher.KindConnection {
		return fmt.Errorf("fetch: %w", err)
	}

	e.failures[res.User]++
	streak := e.failures[res.User]
	if e.opts.ResetAfterFailures <= 0 || streak < e.opts.ResetAfterFailures {
		return fmt.Errorf("fetch (failure %d): %w", streak, err)
	}

	delete(e.failures, res.User)
	if !res.HadCursor {
		return fmt.Errorf("fetch (failure %d): %w", streak, err)
	}
	if cerr := e.store.Clear(ctx, res.User); cerr != nil {
		return errors.Join(fmt.Errorf("fetch (failure %d): %w", streak, err), cerr)
	}
	res.Reset = true
	res.Cursor = 0
	e.metrics.CursorReset(res.User)
	e.log.Warn("cleared cursor after repeated fetch failures", "user", res.User, "previous", res.Previous, "failures", streak)
	return fmt.Errorf("fetch (failure %d, cursor cleared): %w", streak, err)
}

// normalize returns the batch sorted by ascending id with duplicates removed.
func normalize(checkins []model.Checkin) []model.Checkin {
	batch := slices.Clone(checkins)
	slices.SortStableFunc(batch, func(a, b model.Checkin) int { return cmp.Compare(a.ID, b.ID) })
	return slices.CompactFunc(batch, func(a, b model.Checkin) bool { return a.ID == b.ID })
}

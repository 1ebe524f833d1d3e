package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"slappd/internal/model"
)

var (
	checkinLinkRe = regexp.MustCompile(`/checkin/(\d+)`)
	feedTitleRe   = regexp.MustCompile(`^(.+?) is drinking an? (.+?) by (.+?)(?: at (.+))?$`)
)

// FeedOptions configures a FeedSource.
type FeedOptions struct {
	BaseURL   string
	Key       string
	Timeout   time.Duration
	SeedLimit int
}

// FeedSource reads check-ins from a user's public Untappd RSS feed.
// The feed carries no ratings or badges.
type FeedSource struct {
	client HTTPClient
	opts   FeedOptions
}

// NewFeedSource creates a FeedSource with the given HTTP client.
func NewFeedSource(client HTTPClient, opts FeedOptions) *FeedSource {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://untappd.com/rss"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.SeedLimit <= 0 {
		opts.SeedLimit = 1
	}
	return &FeedSource{client: client, opts: opts}
}

// Fetch downloads and parses the user's feed.
func (f *FeedSource) Fetch(ctx context.Context, user string, minID int64) ([]model.Checkin, error) {
	endpoint := fmt.Sprintf("%s/user/%s?key=%s",
		strings.TrimRight(f.opts.BaseURL, "/"), url.PathEscape(user), url.QueryEscape(f.opts.Key))

	status, body, err := get(ctx, f.client, endpoint, f.opts.Timeout, "slappd/1.0")
	if err != nil {
		return nil, withUser(err, user)
	}
	if status != http.StatusOK {
		return nil, statusError(user, status, "")
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, &Error{Kind: KindMalformed, User: user, Err: fmt.Errorf("parse feed: %w", err)}
	}

	var checkins []model.Checkin
	for _, item := range feed.Items {
		c, ok := feedItemCheckin(user, item)
		if !ok || c.ID <= minID {
			continue
		}
		checkins = append(checkins, c)
	}

	if minID == 0 && len(checkins) > f.opts.SeedLimit {
		sort.Slice(checkins, func(i, j int) bool { return checkins[i].ID > checkins[j].ID })
		checkins = checkins[:f.opts.SeedLimit]
	}
	return checkins, nil
}

// feedItemCheckin converts an RSS item. Items without a check-in link are skipped.
func feedItemCheckin(user string, item *gofeed.Item) (model.Checkin, bool) {
	m := checkinLinkRe.FindStringSubmatch(item.Link)
	if m == nil {
		m = checkinLinkRe.FindStringSubmatch(item.GUID)
	}
	if m == nil {
		return model.Checkin{}, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id <= 0 {
		return model.Checkin{}, false
	}

	c := model.Checkin{
		ID:      id,
		Comment: strings.TrimSpace(item.Description),
		User:    model.User{UserName: user},
	}
	if item.PublishedParsed != nil {
		c.CreatedAt = item.PublishedParsed.UTC()
	}
	if item.Image != nil {
		c.Beer.Label = item.Image.URL
	}

	title := strings.TrimSpace(item.Title)
	if t := feedTitleRe.FindStringSubmatch(title); t != nil {
		c.User.FirstName = t[1]
		c.Beer.Name = t[2]
		c.Brewery.Name = t[3]
		if t[4] != "" {
			c.Venue = &model.Venue{Name: t[4]}
		}
	} else {
		c.Beer.Name = title
	}
	return c, true
}

// Package fetcher retrieves check-in activity for a user from Untappd.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"slappd/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Source returns a user's check-ins newer than minID.
// A zero minID requests a small seeding batch of the most recent check-ins.
type Source interface {
	Fetch(ctx context.Context, user string, minID int64) ([]model.Checkin, error)
}

const maxBody = 5 * 1024 * 1024

// rateLimitErrorType is the meta.error_type Untappd reports once the hourly quota is spent.
const rateLimitErrorType = "invalid_limit"

// Options configures a Client.
type Options struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	SeedLimit    int
}

// Client fetches check-ins from the Untappd v4 JSON API.
type Client struct {
	client HTTPClient
	opts   Options
}

// New creates a Client with the given HTTP client.
func New(client HTTPClient, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.SeedLimit <= 0 {
		opts.SeedLimit = 1
	}
	return &Client{client: client, opts: opts}
}

// Fetch returns check-ins for user. With minID > 0 only check-ins after it
// are requested; otherwise the newest SeedLimit check-ins are returned.
func (c *Client) Fetch(ctx context.Context, user string, minID int64) ([]model.Checkin, error) {
	params := url.Values{}
	params.Set("client_id", c.opts.ClientID)
	params.Set("client_secret", c.opts.ClientSecret)
	if minID > 0 {
		params.Set("min_id", strconv.FormatInt(minID, 10))
	} else {
		params.Set("limit", strconv.Itoa(c.opts.SeedLimit))
	}
	endpoint := fmt.Sprintf("%s/user/checkins/%s?%s", c.opts.BaseURL, url.PathEscape(user), params.Encode())

	status, body, err := get(ctx, c.client, endpoint, c.opts.Timeout, "slappd ("+c.opts.ClientID+")")
	if err != nil {
		return nil, withUser(err, user)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if status != http.StatusOK {
			return nil, statusError(user, status, "")
		}
		return nil, &Error{Kind: KindMalformed, User: user, Err: fmt.Errorf("decode envelope: %w", err)}
	}
	if status == http.StatusTooManyRequests || env.Meta.ErrorType == rateLimitErrorType {
		return nil, &Error{Kind: KindRateLimited, User: user, Status: status, Detail: env.Meta.ErrorDetail}
	}
	if status != http.StatusOK {
		return nil, statusError(user, status, env.Meta.ErrorDetail)
	}
	if env.Meta.Code != http.StatusOK {
		return nil, statusError(user, env.Meta.Code, env.Meta.ErrorDetail)
	}

	checkins, err := parseCheckins(env.Response)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, User: user, Err: err}
	}
	return checkins, nil
}

func statusError(user string, status int, detail string) error {
	if status == http.StatusTooManyRequests {
		return &Error{Kind: KindRateLimited, User: user, Status: status, Detail: detail}
	}
	return &Error{Kind: KindUpstream, User: user, Status: status, Detail: detail}
}

// get performs a bounded GET and classifies transport failures.
func get(ctx context.Context, client HTTPClient, endpoint string, timeout time.Duration, userAgent string) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, classify(ctx, err, timeout)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return 0, nil, classify(ctx, err, timeout)
	}
	return resp.StatusCode, body, nil
}

// classify maps a transport error to a fetch Error. Cancellation of the
// caller's context is passed through untouched.
func classify(ctx context.Context, err error, timeout time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, Detail: "after " + timeout.String(), Err: err}
	}
	return &Error{Kind: KindConnection, Err: err}
}

func withUser(err error, user string) error {
	var fe *Error
	if errors.As(err, &fe) && fe.User == "" {
		fe.User = user
	}
	return err
}

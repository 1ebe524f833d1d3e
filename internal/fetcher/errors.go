package fetcher

import (
	"errors"
	"fmt"
)

// Kind classifies a fetch failure.
type Kind int

// Failure kinds. Timeout, connection and rate-limit failures are transient.
const (
	KindTimeout Kind = iota + 1
	KindConnection
	KindRateLimited
	KindUpstream
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindRateLimited:
		return "rate_limited"
	case KindUpstream:
		return "upstream"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against an *Error of the same kind.
var (
	ErrTimeout     = errors.New("untappd: timeout")
	ErrConnection  = errors.New("untappd: connection error")
	ErrRateLimited = errors.New("untappd: rate limited")
	ErrUpstream    = errors.New("untappd: upstream error")
	ErrMalformed   = errors.New("untappd: malformed response")
)

// Error is a classified fetch failure for one user.
type Error struct {
	Kind   Kind
	User   string
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindTimeout:
		msg = "Untappd API timed out"
	case KindConnection:
		msg = "error connecting to the Untappd API"
	case KindRateLimited:
		msg = "Untappd API rate limit reached, try again later"
	case KindUpstream:
		msg = fmt.Sprintf("Untappd API returned http code %d", e.Status)
	case KindMalformed:
		msg = "unexpected Untappd API response"
	default:
		msg = "Untappd API failure"
	}
	if e.User != "" {
		msg = e.User + ": " + msg
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

// Transient reports whether the next cycle may simply try again.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindConnection, KindRateLimited:
		return true
	}
	return false
}

// KindOf returns the kind of a fetch error, or 0 if err is not one.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

func sentinel(k Kind) error {
	switch k {
	case KindTimeout:
		return ErrTimeout
	case KindConnection:
		return ErrConnection
	case KindRateLimited:
		return ErrRateLimited
	case KindUpstream:
		return ErrUpstream
	case KindMalformed:
		return ErrMalformed
	}
	return nil
}

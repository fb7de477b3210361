// Package fetcher holds the types shared by the page fetch clients: the
// response shape, the structured failure kinds surfaced to the sweeper, and
// session lifetime helpers.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

// Response is the result of a single page fetch.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Kind classifies fetch failures that never produced an HTTP response.
type Kind int

// Failure kinds reported by fetch clients.
const (
	KindOther Kind = iota
	KindTimeout
)

func (k Kind) String() string {
	if k == KindTimeout {
		return "timeout"
	}
	return "other"
}

// Error is returned by fetch clients when the request failed at the
// network/IO layer.
type Error struct {
	URL  string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap converts a transport error into an *Error with its kind classified.
// A nil err returns nil.
func Wrap(url string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{URL: url, Kind: Classify(err), Err: err}
}

// Classify inspects err for read/connect timeout signals.
func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindOther
}

// IsTimeout reports whether err is a timeout-classified fetch failure.
func IsTimeout(err error) bool {
	return err != nil && Classify(err) == KindTimeout
}

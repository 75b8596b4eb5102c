// Package transport moves request and push bytes between the client and a
// JMAP server. The client core only sees the Transport interface and
// push.Source; connection reuse, TLS and socket-level retries live here.
package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ContentTypeJSON is the media type of every API request body.
const ContentTypeJSON = "application/json"

// Request is one HTTP exchange.
type Request struct {
	Method string
	URL    string
	Body   []byte
	Header http.Header
}

// Response is the status, headers and full body of an exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport performs exchanges. Implementations own retry policy; callers
// never retry.
type Transport interface {
	Exchange(ctx context.Context, req *Request) (*Response, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, req *Request) (*Response, error)

// Exchange calls f(ctx, req).
func (f Func) Exchange(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// StatusError is a non-2xx response. The body is kept for inspection and
// is not interpreted.
type StatusError struct {
	StatusCode int
	URL        string
	Body       []byte
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("TRANSPORT_STATUS: %s returned %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsStatusError returns true if err is a StatusError.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// CheckStatus returns a StatusError for any non-2xx response.
func CheckStatus(url string, resp *Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{StatusCode: resp.StatusCode, URL: url, Body: resp.Body}
}

// Credentials produce an Authorization header value.
type Credentials interface {
	Authorization() string
}

// Bearer is an API token sent as "Bearer <token>".
type Bearer string

// Authorization implements Credentials.
func (b Bearer) Authorization() string {
	return "Bearer " + string(b)
}

// Basic is a username and password sent as HTTP Basic authentication.
type Basic struct {
	Username string
	Password string
}

// Authorization implements Credentials.
func (b Basic) Authorization() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(b.Username+":"+b.Password))
}

// Reconnect bounds how push sources re-establish a dropped stream.
type Reconnect struct {
	// Attempts is how many consecutive failed connects are tolerated.
	Attempts int
	// Wait is the delay before each reconnect.
	Wait time.Duration
}

// DefaultReconnect is used when a source is given a zero Reconnect.
var DefaultReconnect = Reconnect{Attempts: 3, Wait: time.Second}

func (r Reconnect) withDefaults() Reconnect {
	if r.Attempts <= 0 {
		r.Attempts = DefaultReconnect.Attempts
	}
	if r.Wait <= 0 {
		r.Wait = DefaultReconnect.Wait
	}
	return r
}

// connect calls fn until it succeeds, fails with a StatusError, or the
// attempts run out.
func (r Reconnect) connect(ctx context.Context, logger *slog.Logger, url string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= r.Attempts; attempt++ {
		if err = fn(); err == nil || IsStatusError(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("push connect failed", "url", url, "attempt", attempt, "error", err)
		if attempt < r.Attempts {
			if werr := sleepCtx(ctx, r.Wait); werr != nil {
				return werr
			}
		}
	}
	return err
}

func authHeader(h http.Header, creds Credentials) http.Header {
	if h == nil {
		h = make(http.Header)
	}
	if creds != nil && h.Get("Authorization") == "" {
		h.Set("Authorization", creds.Authorization())
	}
	return h
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

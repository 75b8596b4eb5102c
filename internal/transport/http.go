package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// HTTPOptions configures the HTTP transport.
type HTTPOptions struct {
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	UserAgent    string
	Credentials  Credentials
	Logger       *slog.Logger
	// Client replaces the underlying *http.Client, mostly for tests.
	Client *http.Client
}

// HTTP is a Transport over net/http with bounded retries.
//
// Only failures where the request cannot have been processed are retried:
// connection errors, 429 and 503. Every other status is returned as is.
type HTTP struct {
	client    *retryablehttp.Client
	creds     Credentials
	userAgent string
}

// NewHTTP creates an HTTP transport.
func NewHTTP(opts HTTPOptions) *HTTP {
	c := retryablehttp.NewClient()
	if opts.Client != nil {
		c.HTTPClient = opts.Client
	}
	if opts.Timeout > 0 {
		c.HTTPClient.Timeout = opts.Timeout
	}
	c.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		c.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		c.RetryWaitMax = opts.RetryWaitMax
	}
	// A typed nil in the interface field would be called, so nil stays untyped.
	c.Logger = nil
	if opts.Logger != nil {
		c.Logger = opts.Logger
	}
	c.CheckRetry = checkRetry
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &HTTP{client: c, creds: opts.Credentials, userAgent: opts.UserAgent}
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true, nil
	}
	return false, nil
}

// Exchange sends req and reads the whole response body.
func (h *HTTP) Exchange(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	var body any
	if req.Body != nil {
		body = req.Body
	}
	r, err := retryablehttp.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	if req.Body != nil && r.Header.Get("Content-Type") == "" {
		r.Header.Set("Content-Type", ContentTypeJSON)
	}
	if r.Header.Get("Accept") == "" {
		r.Header.Set("Accept", ContentTypeJSON)
	}
	if h.userAgent != "" {
		r.Header.Set("User-Agent", h.userAgent)
	}
	authHeader(r.Header, h.creds)

	resp, err := h.client.Do(r)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.URL, err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

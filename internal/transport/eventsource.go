package transport

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// EventSourceOptions configures an EventSource.
type EventSourceOptions struct {
	// Client must not set a Timeout; the stream is long-lived.
	Client      *http.Client
	Credentials Credentials
	Logger      *slog.Logger
	Reconnect   Reconnect
}

// EventSource reads push payloads from a text/event-stream endpoint.
//
// Each event's data is returned as one payload; "state" events carry a
// StateChange and "ping" events carry {"interval":N}. A dropped stream is
// reopened on the next call to Next with Last-Event-ID set, after the
// server's retry delay. Next returns io.EOF once Close has been called.
type EventSource struct {
	url       string
	client    *http.Client
	creds     Credentials
	logger    *slog.Logger
	reconnect Reconnect

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	body       io.ReadCloser
	reader     *bufio.Reader
	cancelConn context.CancelFunc
	lastID     string
	retry      time.Duration
}

// NewEventSource creates a source for url. The connection is opened lazily.
func NewEventSource(url string, opts EventSourceOptions) *EventSource {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rc := opts.Reconnect.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &EventSource{
		url:       url,
		client:    client,
		creds:     opts.Credentials,
		logger:    logger,
		reconnect: rc,
		ctx:       ctx,
		cancel:    cancel,
		retry:     rc.Wait,
	}
}

// Next blocks until the next event arrives.
func (s *EventSource) Next(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.ctx.Err() != nil {
			return nil, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.body == nil {
			err := s.reconnect.connect(ctx, s.logger, s.url, func() error { return s.open(ctx) })
			if err != nil {
				if s.ctx.Err() != nil {
					return nil, io.EOF
				}
				return nil, err
			}
		}

		stop := context.AfterFunc(ctx, s.cancelConn)
		data, err := s.readEvent()
		stop()
		if err == nil {
			return data, nil
		}

		s.drop()
		if s.ctx.Err() != nil {
			return nil, io.EOF
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("event stream dropped", "url", s.url, "error", err, "retry", s.retry)
		if err := sleepCtx(ctx, s.retry); err != nil {
			return nil, err
		}
	}
}

// URL returns the stream endpoint.
func (s *EventSource) URL() string {
	return s.url
}

// Close stops the source. A blocked Next returns io.EOF.
func (s *EventSource) Close() error {
	s.cancel()
	return nil
}

func (s *EventSource) open(ctx context.Context) error {
	connCtx, cancel := context.WithCancel(s.ctx)
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	req, err := http.NewRequestWithContext(connCtx, http.MethodGet, s.url, nil)
	if err != nil {
		cancel()
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.lastID != "" {
		req.Header.Set("Last-Event-ID", s.lastID)
	}
	authHeader(req.Header, s.creds)

	resp, err := s.client.Do(req)
	if err != nil {
		cancel()
		return err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return &StatusError{StatusCode: resp.StatusCode, URL: s.url, Body: body}
	}

	s.body = resp.Body
	s.reader = bufio.NewReader(resp.Body)
	s.cancelConn = cancel
	s.logger.Debug("event stream opened", "url", s.url)
	return nil
}

func (s *EventSource) drop() {
	if s.body != nil {
		s.body.Close()
	}
	if s.cancelConn != nil {
		s.cancelConn()
	}
	s.body, s.reader, s.cancelConn = nil, nil, nil
}

// readEvent reads lines until a blank line ends an event with data. The
// event name is not needed; the payload identifies itself.
func (s *EventSource) readEvent() ([]byte, error) {
	var data []byte
	hasData := false
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData {
				return data, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, val, _ := strings.Cut(line, ":")
		val = strings.TrimPrefix(val, " ")
		switch field {
		case "data":
			if hasData {
				data = append(data, '\n')
			}
			data = append(data, val...)
			hasData = true
		case "id":
			if !strings.ContainsRune(val, 0) {
				s.lastID = val
			}
		case "retry":
			if ms, err := strconv.Atoi(val); err == nil && ms >= 0 {
				s.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
}

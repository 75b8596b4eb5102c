package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Subprotocol is the WebSocket subprotocol JMAP servers negotiate.
const Subprotocol = "jmap"

// WebSocketOptions configures a WebSocketSource.
type WebSocketOptions struct {
	Dialer      *websocket.Dialer
	Credentials Credentials
	Logger      *slog.Logger
	Reconnect   Reconnect
	// DataTypes limits the pushed types; nil asks for all of them.
	DataTypes []string
}

type pushEnable struct {
	Type      string   `json:"@type"`
	DataTypes []string `json:"dataTypes"`
}

// WebSocketSource reads push payloads from a JMAP WebSocket. After each
// connect it sends WebSocketPushEnable; every text message received is
// returned as one payload.
type WebSocketSource struct {
	url       string
	dialer    *websocket.Dialer
	creds     Credentials
	logger    *slog.Logger
	reconnect Reconnect
	dataTypes []string

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	connMu sync.Mutex
	conn   *websocket.Conn
}

// NewWebSocketSource creates a source for a ws:// or wss:// url.
func NewWebSocketSource(url string, opts WebSocketOptions) *WebSocketSource {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketSource{
		url:       url,
		dialer:    dialer,
		creds:     opts.Credentials,
		logger:    logger,
		reconnect: opts.Reconnect.withDefaults(),
		dataTypes: opts.DataTypes,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Next blocks until the next message arrives. A normal close from the
// server, or Close, ends the stream with io.EOF.
func (s *WebSocketSource) Next(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.ctx.Err() != nil {
			return nil, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		conn := s.current()
		if conn == nil {
			err := s.reconnect.connect(ctx, s.logger, s.url, func() error {
				var dialErr error
				conn, dialErr = s.dial(ctx)
				return dialErr
			})
			if err != nil {
				if s.ctx.Err() != nil {
					return nil, io.EOF
				}
				return nil, err
			}
		}

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		stopSrc := context.AfterFunc(s.ctx, func() { conn.Close() })
		_, data, err := conn.ReadMessage()
		stop()
		stopSrc()
		if err == nil {
			return data, nil
		}

		s.drop(conn)
		switch {
		case s.ctx.Err() != nil:
			return nil, io.EOF
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
			s.logger.Debug("websocket closed by server", "url", s.url)
			return nil, io.EOF
		}
		s.logger.Warn("websocket dropped", "url", s.url, "error", err)
		if err := sleepCtx(ctx, s.reconnect.Wait); err != nil {
			return nil, err
		}
	}
}

// Close sends a close frame and stops the source.
func (s *WebSocketSource) Close() error {
	s.cancel()
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteMessage(websocket.CloseMessage, msg)
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *WebSocketSource) current() *websocket.Conn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

func (s *WebSocketSource) drop(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	conn.Close()
	if s.conn == conn {
		s.conn = nil
	}
}

func (s *WebSocketSource) dial(ctx context.Context) (*websocket.Conn, error) {
	d := *s.dialer
	d.Subprotocols = []string{Subprotocol}

	header := authHeader(http.Header{}, s.creds)
	conn, resp, err := d.DialContext(ctx, s.url, header)
	if err != nil {
		if resp != nil && errors.Is(err, websocket.ErrBadHandshake) {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode, URL: s.url, Body: body}
		}
		return nil, err
	}

	enable := pushEnable{Type: "WebSocketPushEnable", DataTypes: s.dataTypes}
	if err := conn.WriteJSON(enable); err != nil {
		conn.Close()
		return nil, err
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	s.logger.Debug("websocket push enabled", "url", s.url)
	return conn, nil
}

// Package client ties the engine together: it discovers the session, hands
// out batch builders, sends finalized batches through a transport, and
// returns per-call typed results. It also dispatches push events.
//
// The Client is the only component that performs I/O, and it does so only
// through the transport.Transport and push.Source it is given.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/roach88/jmap/internal/capability"
	"github.com/roach88/jmap/internal/graph"
	"github.com/roach88/jmap/internal/method"
	"github.com/roach88/jmap/internal/push"
	"github.com/roach88/jmap/internal/session"
	"github.com/roach88/jmap/internal/transport"
)

// Client sends batches against one JMAP session.
//
// Thread-safety: all methods are safe for concurrent use. Batches built and
// sent from different goroutines share the session snapshot and the call id
// sequence, nothing else.
type Client struct {
	sessionURL string
	transport  transport.Transport
	creds      transport.Credentials
	registry   *capability.Registry
	decoder    *method.Decoder
	store      *session.Store
	ids        *graph.Sequence
	tokens     TokenGenerator
	logger     *slog.Logger
	metrics    *Metrics
	dispatcher *push.Dispatcher
	onPhase    func(Transition)
	httpOpts   transport.HTTPOptions
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRegistry replaces the capability registry used for building and decoding.
func WithRegistry(reg *capability.Registry) Option {
	return func(c *Client) {
		c.registry = reg
	}
}

// WithDecoder replaces the result decoder, for callers that register
// decoders for extension methods.
func WithDecoder(d *method.Decoder) Option {
	return func(c *Client) {
		c.decoder = d
	}
}

// WithCredentials sets the credentials used by the default HTTP transport
// and by push sources.
func WithCredentials(creds transport.Credentials) Option {
	return func(c *Client) {
		c.creds = creds
	}
}

// WithHTTPOptions configures the default HTTP transport.
func WithHTTPOptions(opts transport.HTTPOptions) Option {
	return func(c *Client) {
		c.httpOpts = opts
	}
}

// WithTransport replaces the HTTP transport entirely.
func WithTransport(t transport.Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithMetrics records exchanges in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTokenGenerator replaces the UUIDv7 batch token generator. Tests use a
// fixed generator for byte-stable logs.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(c *Client) {
		c.tokens = g
	}
}

// WithPhaseObserver calls fn on every phase change of every batch.
func WithPhaseObserver(fn func(Transition)) Option {
	return func(c *Client) {
		c.onPhase = fn
	}
}

// New creates a client for the session resource at sessionURL. No request
// is made; call RefreshSession or use Connect.
func New(sessionURL string, opts ...Option) *Client {
	c := &Client{
		sessionURL: sessionURL,
		registry:   capability.Default(),
		ids:        graph.NewSequence(),
		tokens:     UUIDv7Generator{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.decoder == nil {
		c.decoder = method.NewDecoder(c.registry)
	}
	if c.transport == nil {
		hopts := c.httpOpts
		if hopts.Credentials == nil {
			hopts.Credentials = c.creds
		}
		if hopts.Logger == nil {
			hopts.Logger = c.logger
		}
		c.transport = transport.NewHTTP(hopts)
	}
	c.store = session.NewStore(c.registry)
	c.dispatcher = push.NewDispatcher(c.logger)
	c.dispatcher.Subscribe(push.ObserverFunc(func(e push.Event) {
		c.metrics.push(push.EventName(e))
	}))
	return c
}

// Connect creates a client and discovers its session.
func Connect(ctx context.Context, sessionURL string, opts ...Option) (*Client, error) {
	c := New(sessionURL, opts...)
	if _, err := c.RefreshSession(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// RefreshSession fetches the session document and replaces the snapshot.
// On any failure the previous snapshot stays in place.
func (c *Client) RefreshSession(ctx context.Context) (*session.Snapshot, error) {
	snap, err := c.fetchSession(ctx)
	if err != nil {
		c.metrics.refresh("error")
		return nil, err
	}
	c.metrics.refresh("ok")
	c.logger.Info("session discovered",
		"state", snap.State,
		"capabilities", len(snap.CapabilityURIs()),
		"api_url", snap.APIURL,
	)
	return snap, nil
}

func (c *Client) fetchSession(ctx context.Context) (*session.Snapshot, error) {
	resp, err := c.transport.Exchange(ctx, &transport.Request{
		Method: http.MethodGet,
		URL:    c.sessionURL,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	if err := transport.CheckStatus(c.sessionURL, resp); err != nil {
		return nil, err
	}
	return c.store.Refresh(resp.Body)
}

// Session returns the current snapshot, or nil before discovery.
func (c *Client) Session() *session.Snapshot {
	return c.store.Snapshot()
}

// Registry returns the capability registry.
func (c *Client) Registry() *capability.Registry {
	return c.registry
}

// Decoder returns the result decoder, for registering extension methods.
func (c *Client) Decoder() *method.Decoder {
	return c.decoder
}

// NewBatch starts a batch against the current snapshot. Call ids come from
// a sequence shared by every batch of this client.
func (c *Client) NewBatch() (*graph.Builder, error) {
	snap := c.Session()
	if snap == nil {
		return nil, ErrNotConnected
	}
	return graph.NewBuilder(snap, graph.WithIDSource(c.ids), graph.WithRegistry(c.registry)), nil
}

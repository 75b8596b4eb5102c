package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/jmap/internal/capability"
	"github.com/roach88/jmap/internal/push"
	"github.com/roach88/jmap/internal/transport"
)

// Subscribe registers obs for push events and returns its unsubscribe func.
func (c *Client) Subscribe(obs push.Observer) func() {
	return c.dispatcher.Subscribe(obs)
}

// RunPush reads src until it ends or ctx is done, dispatching each event to
// the subscribed observers. Push runs independently of batch exchanges.
func (c *Client) RunPush(ctx context.Context, src push.Source) error {
	c.logger.Info("push started")
	err := c.dispatcher.Run(ctx, src)
	c.logger.Info("push stopped", "error", err)
	return err
}

// EventSource returns a push source on the session's event-source endpoint.
// An empty types list subscribes to every type; ping is the keep-alive
// interval in seconds, 0 for none.
func (c *Client) EventSource(types []string, ping int, opts transport.EventSourceOptions) (*transport.EventSource, error) {
	snap := c.Session()
	if snap == nil {
		return nil, ErrNotConnected
	}
	url, err := snap.EventSourceURLFor(types, "no", ping)
	if err != nil {
		return nil, err
	}
	if opts.Credentials == nil {
		opts.Credentials = c.creds
	}
	if opts.Logger == nil {
		opts.Logger = c.logger
	}
	return transport.NewEventSource(url, opts), nil
}

type webSocketCapability struct {
	URL          string `json:"url"`
	SupportsPush bool   `json:"supportsPush"`
}

// WebSocket returns a push source on the session's WebSocket endpoint. The
// session must declare the WebSocket capability with push support.
func (c *Client) WebSocket(opts transport.WebSocketOptions) (*transport.WebSocketSource, error) {
	snap := c.Session()
	if snap == nil {
		return nil, ErrNotConnected
	}
	raw, ok := snap.Capability(capability.WebSocket)
	if !ok {
		return nil, fmt.Errorf("session does not declare %s", capability.WebSocket)
	}
	var wc webSocketCapability
	if err := json.Unmarshal(raw, &wc); err != nil {
		return nil, fmt.Errorf("parse %s capability: %w", capability.WebSocket, err)
	}
	if wc.URL == "" || !wc.SupportsPush {
		return nil, fmt.Errorf("session WebSocket endpoint does not support push")
	}
	if opts.Credentials == nil {
		opts.Credentials = c.creds
	}
	if opts.Logger == nil {
		opts.Logger = c.logger
	}
	return transport.NewWebSocketSource(wc.URL, opts), nil
}

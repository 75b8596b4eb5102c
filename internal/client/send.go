package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/roach88/jmap/internal/graph"
	"github.com/roach88/jmap/internal/method"
	"github.com/roach88/jmap/internal/transport"
	"github.com/roach88/jmap/internal/value"
	"github.com/roach88/jmap/internal/wire"
)

// CallResult is the outcome of one call. Exactly one of Result and Err is
// set. Err is a *method.MethodError for a server rejection or a
// *method.UnsupportedMethodError when no decoder knows the method; Raw
// always holds the outcome JSON.
type CallResult struct {
	CallID graph.CallID
	Method string
	Result method.Result
	Err    error
	Raw    json.RawMessage
}

// Results holds every call outcome of a batch in the order the calls were
// sent. A call answered by several responses has several entries.
type Results struct {
	token        string
	entries      []CallResult
	byID         map[graph.CallID][]int
	sessionState string
	createdIDs   map[string]string
}

// Token returns the batch token the exchange was logged under.
func (r *Results) Token() string { return r.token }

// Len returns the number of entries.
func (r *Results) Len() int { return len(r.entries) }

// All returns a copy of every entry.
func (r *Results) All() []CallResult {
	out := make([]CallResult, len(r.entries))
	copy(out, r.entries)
	return out
}

// Get returns the first entry for id.
func (r *Results) Get(id graph.CallID) (CallResult, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return CallResult{}, false
	}
	return r.entries[idx[0]], true
}

// GetAll returns every entry for id in response order.
func (r *Results) GetAll(id graph.CallID) []CallResult {
	var out []CallResult
	for _, i := range r.byID[id] {
		out = append(out, r.entries[i])
	}
	return out
}

// Failed returns the entries that carry an error.
func (r *Results) Failed() []CallResult {
	var out []CallResult
	for _, e := range r.entries {
		if e.Err != nil {
			out = append(out, e)
		}
	}
	return out
}

// SessionState returns the session state token the server reported.
func (r *Results) SessionState() string { return r.sessionState }

// CreatedIDs returns the server's createdIds map, if it sent one.
func (r *Results) CreatedIDs() map[string]string { return r.createdIDs }

// Typed returns the result of call id as R, or the call's error.
func Typed[R method.Result](r *Results, id graph.CallID) (R, error) {
	var zero R
	cr, ok := r.Get(id)
	if !ok {
		return zero, fmt.Errorf("no result for call %s", id)
	}
	if cr.Err != nil {
		return zero, cr.Err
	}
	res, ok := method.As[R](cr.Result)
	if !ok {
		return zero, fmt.Errorf("call %s (%s) decoded as %T, not %T", id, cr.Method, cr.Result, zero)
	}
	return res, nil
}

// Call is an asynchronous send started by Go.
type Call struct {
	Batch   *graph.Batch
	Results *Results
	Error   error
	// Done receives the call itself once the exchange has finished.
	Done chan *Call
}

// Go sends batch on a new goroutine and returns immediately.
func (c *Client) Go(ctx context.Context, batch *graph.Batch) *Call {
	call := &Call{Batch: batch, Done: make(chan *Call, 1)}
	go func() {
		call.Results, call.Error = c.Send(ctx, batch)
		call.Done <- call
	}()
	return call
}

// Send encodes batch, exchanges it and decodes every call outcome. It
// blocks until the transport returns or ctx is done.
//
// A batch is sent at most once: a second Send of the same batch, even after
// a failure, returns BATCH_CONSUMED. Build, transport and protocol errors
// fail the whole batch; method errors are reported per call in Results.
// When ctx is cancelled mid-exchange any bytes received are discarded.
func (c *Client) Send(ctx context.Context, batch *graph.Batch) (*Results, error) {
	token := c.tokens.Generate()
	m := newMachine(token, c.onPhase)
	m.advance(PhaseBatchBuilding)

	res, err := c.send(ctx, m, batch)
	c.metrics.batch(outcomeLabel(err), batch.Len())
	if err != nil {
		c.logger.Warn("batch failed",
			"batch_token", token,
			"phase", m.phase,
			"outcome", outcomeLabel(err),
			"error", err,
		)
		return nil, err
	}
	return res, nil
}

func (c *Client) send(ctx context.Context, m *machine, batch *graph.Batch) (*Results, error) {
	snap := batch.Snapshot()

	body, err := wire.Encode(batch)
	if err != nil {
		return nil, m.fail(fmt.Errorf("encode batch: %w", err))
	}
	if limit := snap.Limits.MaxSizeRequest; limit > 0 && int64(len(body)) > limit {
		return nil, m.fail(&graph.BuildError{
			Code:    graph.ErrCodeRequestTooLarge,
			Message: fmt.Sprintf("encoded request is %d bytes, maxSizeRequest is %d", len(body), limit),
		})
	}
	if err := batch.Claim(); err != nil {
		return nil, m.fail(err)
	}

	fingerprint, err := value.Fingerprint(value.DomainBatch, wire.RequestValue(batch))
	if err != nil {
		return nil, m.fail(fmt.Errorf("fingerprint batch: %w", err))
	}
	c.logger.Debug("batch sent",
		"batch_token", m.token,
		"calls", batch.Len(),
		"bytes", len(body),
		"fingerprint", fingerprint,
	)

	m.advance(PhaseAwaitingResponse)
	start := time.Now()
	resp, err := c.transport.Exchange(ctx, &transport.Request{
		Method: http.MethodPost,
		URL:    snap.APIURL,
		Body:   body,
		Header: http.Header{"Content-Type": []string{transport.ContentTypeJSON}},
	})
	elapsed := time.Since(start)
	c.metrics.exchange(elapsed)

	m.advance(PhaseCorrelating)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, m.fail(ctxErr)
	}
	if err != nil {
		return nil, m.fail(err)
	}
	if err := transport.CheckStatus(snap.APIURL, resp); err != nil {
		return nil, m.fail(err)
	}

	correlated, err := wire.Correlate(resp.Body, batch.CallIDs())
	if err != nil {
		if wire.IsOrphanResponse(err) {
			c.logger.Error("orphan response", "batch_token", m.token, "error", err)
		}
		return nil, m.fail(err)
	}

	m.advance(PhaseDecoding)
	results, err := c.decode(m.token, correlated)
	if err != nil {
		return nil, m.fail(err)
	}
	m.advance(PhaseIdle)

	c.logger.Info("batch completed",
		"batch_token", m.token,
		"calls", batch.Len(),
		"entries", results.Len(),
		"method_errors", len(results.Failed()),
		"duration", elapsed,
	)

	if state := correlated.SessionState(); state != snap.State {
		c.onSessionDrift(ctx, m.token, snap.State, state)
	}
	return results, nil
}

func (c *Client) decode(token string, resp *wire.Response) (*Results, error) {
	entries := resp.Ordered()
	res := &Results{
		token:        token,
		entries:      make([]CallResult, 0, len(entries)),
		byID:         make(map[graph.CallID][]int, len(entries)),
		sessionState: resp.SessionState(),
		createdIDs:   resp.CreatedIDs(),
	}

	for _, e := range entries {
		cr := CallResult{CallID: e.CallID, Method: e.Method, Raw: e.Outcome.Result}
		if e.Outcome.IsError() {
			cr.Raw = e.Outcome.Error.Raw
		}

		decoded, err := c.decoder.DecodeEntry(e)
		if err != nil {
			var me *method.MethodError
			var ue *method.UnsupportedMethodError
			switch {
			case errors.As(err, &me):
				c.metrics.methodError(me.Kind.String())
			case errors.As(err, &ue):
				c.logger.Warn("no decoder for method", "batch_token", token, "method", e.Method, "call_id", e.CallID)
			default:
				return nil, err
			}
			cr.Err = err
		} else {
			cr.Result = decoded
		}

		res.byID[e.CallID] = append(res.byID[e.CallID], len(res.entries))
		res.entries = append(res.entries, cr)
	}
	return res, nil
}

// onSessionDrift refreshes the session after a response reports a state the
// snapshot does not have. Failures are logged; the batch result stands.
func (c *Client) onSessionDrift(ctx context.Context, token, have, got string) {
	if c.sessionURL == "" {
		return
	}
	if cur := c.Session(); cur != nil && cur.State == got {
		return
	}
	c.logger.Info("session state changed", "batch_token", token, "old_state", have, "new_state", got)
	if _, err := c.RefreshSession(ctx); err != nil {
		c.logger.Warn("session refresh failed", "batch_token", token, "error", err)
	}
}

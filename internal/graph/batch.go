package graph

import (
	"maps"
	"slices"
	"sync/atomic"

	"github.com/roach88/jmap/internal/session"
)

// Batch is a finalized, immutable list of calls ready to encode.
//
// A Batch may be sent once. Claim marks it consumed; a second Claim fails
// with BATCH_CONSUMED so that a failed exchange is never replayed without the
// caller asking for it through Resubmit.
type Batch struct {
	calls      []MethodCall
	using      []string
	createdIDs map[string]string
	snap       *session.Snapshot
	ids        IDSource
	consumed   atomic.Bool
}

// Len returns the number of calls.
func (b *Batch) Len() int {
	return len(b.calls)
}

// Calls returns the calls in submission order.
func (b *Batch) Calls() []MethodCall {
	out := make([]MethodCall, len(b.calls))
	for i, c := range b.calls {
		out[i] = c.clone()
	}
	return out
}

// Call returns the call with the given id.
func (b *Batch) Call(id CallID) (MethodCall, bool) {
	for _, c := range b.calls {
		if c.ID == id {
			return c.clone(), true
		}
	}
	return MethodCall{}, false
}

// CallIDs returns the call ids in submission order.
func (b *Batch) CallIDs() []CallID {
	ids := make([]CallID, len(b.calls))
	for i, c := range b.calls {
		ids[i] = c.ID
	}
	return ids
}

// Using returns the declared capability URIs in first-use order, core first.
func (b *Batch) Using() []string {
	return slices.Clone(b.using)
}

// CreatedIDs returns the createdIds map to send, or nil.
func (b *Batch) CreatedIDs() map[string]string {
	return maps.Clone(b.createdIDs)
}

// Snapshot returns the session snapshot the batch was validated against.
func (b *Batch) Snapshot() *session.Snapshot {
	return b.snap
}

// Claim marks the batch as sent.
func (b *Batch) Claim() error {
	if !b.consumed.CompareAndSwap(false, true) {
		return &BuildError{Code: ErrCodeBatchConsumed, Message: "batch was already sent; call Resubmit to send it again"}
	}
	return nil
}

// Consumed reports whether the batch has been claimed.
func (b *Batch) Consumed() bool {
	return b.consumed.Load()
}

// Resubmit returns an unclaimed copy of the batch. Every call gets a fresh
// id from the builder's id source and references are rewritten to follow,
// so no call id is sent twice. Calls with server-side effects run again
// when the copy is sent.
func (b *Batch) Resubmit() *Batch {
	renamed := make(map[CallID]CallID, len(b.calls))
	for _, c := range b.calls {
		renamed[c.ID] = b.ids.NextCallID()
	}

	calls := make([]MethodCall, len(b.calls))
	for i, c := range b.calls {
		c = c.clone()
		c.ID = renamed[c.ID]
		for name, arg := range c.Arguments {
			if ref, ok := arg.(ResultReference); ok {
				ref.SourceCall = renamed[ref.SourceCall]
				c.Arguments[name] = ref
			}
		}
		calls[i] = c
	}

	return &Batch{
		calls:      calls,
		using:      b.using,
		createdIDs: b.createdIDs,
		snap:       b.snap,
		ids:        b.ids,
	}
}

func sortedNames(args Arguments) []string {
	return slices.Sorted(maps.Keys(args))
}

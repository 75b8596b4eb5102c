package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/jmap/internal/graph"
)

// Outcome is the undecoded result of one call: a success object or an
// error tuple. Exactly one of Result and Error is set.
type Outcome struct {
	Result json.RawMessage
	Error  *ErrorOutcome
}

// IsError reports whether the outcome is an error tuple.
func (o Outcome) IsError() bool {
	return o.Error != nil
}

// ErrorOutcome is the body of an ["error", {...}, id] tuple.
type ErrorOutcome struct {
	Type        string
	Description string
	Raw         json.RawMessage
}

// Entry is one correlated response tuple.
type Entry struct {
	CallID  graph.CallID
	Method  string
	Outcome Outcome
}

// Response is a correlated batch response. It is immutable.
type Response struct {
	entries      []Entry
	byID         map[graph.CallID][]int
	sent         []graph.CallID
	sessionState string
	createdIDs   map[string]string
}

// Correlate parses a response body and matches every entry to one of the
// sent call ids.
//
// Correlate fails with MALFORMED_RESPONSE when the body does not have the
// batch-response shape or a sent call got no response at all, and with
// ORPHAN_RESPONSE when an entry names a call id that was not sent.
// The outcome objects themselves are not interpreted beyond telling success
// from error.
func Correlate(body []byte, sent []graph.CallID) (*Response, error) {
	var top struct {
		MethodResponses []json.RawMessage `json:"methodResponses"`
		SessionState    *string           `json:"sessionState"`
		CreatedIDs      map[string]string `json:"createdIds"`
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&top); err != nil {
		return nil, Malformed("", "response is not a batch-response object", err)
	}
	if dec.More() {
		return nil, Malformed("", "trailing data after response object", nil)
	}
	if top.MethodResponses == nil {
		return nil, Malformed("", "missing "+KeyMethodResponses, nil)
	}
	if top.SessionState == nil {
		return nil, Malformed("", "missing "+KeySessionState, nil)
	}

	known := make(map[graph.CallID]struct{}, len(sent))
	for _, id := range sent {
		known[id] = struct{}{}
	}

	resp := &Response{
		entries:      make([]Entry, 0, len(top.MethodResponses)),
		byID:         make(map[graph.CallID][]int, len(sent)),
		sent:         slices.Clone(sent),
		sessionState: *top.SessionState,
		createdIDs:   top.CreatedIDs,
	}

	var orphans []string
	for i, raw := range top.MethodResponses {
		var inv Invocation
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, Malformed("", fmt.Sprintf("methodResponses[%d]", i), err)
		}
		id := graph.CallID(inv.CallID)
		if _, ok := known[id]; !ok {
			orphans = append(orphans, inv.CallID)
			continue
		}

		entry := Entry{CallID: id, Method: inv.Name}
		if inv.Name == ErrorMethod {
			eo, err := parseErrorOutcome(inv.Arguments)
			if err != nil {
				return nil, Malformed(id, "error response", err)
			}
			entry.Outcome.Error = eo
		} else {
			entry.Outcome.Result = inv.Arguments
		}

		resp.byID[id] = append(resp.byID[id], len(resp.entries))
		resp.entries = append(resp.entries, entry)
	}

	if len(orphans) > 0 {
		return nil, &ProtocolError{
			Code:    ErrCodeOrphanResponse,
			CallID:  graph.CallID(orphans[0]),
			Message: fmt.Sprintf("response for unsent call ids [%s]", strings.Join(orphans, ", ")),
		}
	}

	for _, id := range sent {
		if _, ok := resp.byID[id]; !ok {
			return nil, Malformed(id, "no response for sent call", nil)
		}
	}

	return resp, nil
}

func parseErrorOutcome(raw json.RawMessage) (*ErrorOutcome, error) {
	var body struct {
		Type        *string `json:"type"`
		Description string  `json:"description"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	if body.Type == nil {
		return nil, fmt.Errorf("missing type")
	}
	return &ErrorOutcome{Type: *body.Type, Description: body.Description, Raw: raw}, nil
}

// Entries returns the entries in the order the server sent them.
func (r *Response) Entries() []Entry {
	return slices.Clone(r.entries)
}

// Ordered returns the entries in the order the calls were sent. Several
// entries for one call keep their server order.
func (r *Response) Ordered() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, id := range r.sent {
		for _, i := range r.byID[id] {
			out = append(out, r.entries[i])
		}
	}
	return out
}

// ByCallID returns every entry for id in server order.
func (r *Response) ByCallID(id graph.CallID) []Entry {
	idx := r.byID[id]
	out := make([]Entry, len(idx))
	for i, j := range idx {
		out[i] = r.entries[j]
	}
	return out
}

// First returns the first entry for id.
func (r *Response) First(id graph.CallID) (Entry, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return Entry{}, false
	}
	return r.entries[idx[0]], true
}

// Len returns the number of entries.
func (r *Response) Len() int {
	return len(r.entries)
}

// SessionState returns the server's session state token.
func (r *Response) SessionState() string {
	return r.sessionState
}

// CreatedIDs returns the createdIds map the server returned, or nil.
func (r *Response) CreatedIDs() map[string]string {
	return maps.Clone(r.createdIDs)
}

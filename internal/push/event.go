// Package push parses out-of-band push payloads into typed events and
// delivers them to observers.
//
// Delivery is at least once and unordered across notifications. Consumers
// must treat a repeated state token as a no-op; StateTracker shows how.
package push

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
)

// TypeStateChange is the @type of a state-change payload (RFC 8620 section 7.1).
const TypeStateChange = "StateChange"

// Event is a sealed interface for push events.
// Only StateChange, KeepAlive and Unknown implement it.
type Event interface {
	pushEvent() // Sealed
}

// StateChange reports new state tokens, keyed by account id then type name.
type StateChange struct {
	Changed map[string]map[string]string
}

func (StateChange) pushEvent() {}

// Change is one (account, type, state) triple of a StateChange.
type Change struct {
	AccountID string
	TypeName  string
	State     string
}

// Changes flattens the event into triples sorted by account then type.
func (e StateChange) Changes() []Change {
	var out []Change
	for _, acct := range slices.Sorted(maps.Keys(e.Changed)) {
		types := e.Changed[acct]
		for _, typ := range slices.Sorted(maps.Keys(types)) {
			out = append(out, Change{AccountID: acct, TypeName: typ, State: types[typ]})
		}
	}
	return out
}

// KeepAlive is a ping with no state change. Interval is the server's ping
// interval in seconds when it sent one.
type KeepAlive struct {
	Interval int
}

func (KeepAlive) pushEvent() {}

// Unknown is any payload that is neither a state change nor a keep-alive.
type Unknown struct {
	Raw []byte
}

func (Unknown) pushEvent() {}

// Parse classifies one raw payload. It never fails: anything it cannot
// recognise becomes Unknown.
func Parse(raw []byte) Event {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return KeepAlive{}
	}

	var probe struct {
		Type     *string                      `json:"@type"`
		Changed  map[string]map[string]string `json:"changed"`
		Interval *int                         `json:"interval"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return Unknown{Raw: slices.Clone(raw)}
	}

	switch {
	case probe.Type != nil && *probe.Type == TypeStateChange && probe.Changed != nil:
		return StateChange{Changed: probe.Changed}
	case probe.Type == nil && probe.Interval != nil:
		return KeepAlive{Interval: *probe.Interval}
	default:
		return Unknown{Raw: slices.Clone(raw)}
	}
}

package push

import "sync"

// StateTracker remembers the last state token seen per (account, type) and
// reports only real changes.
//
// Apply is idempotent: delivering the same StateChange twice reports its
// changes the first time and nothing the second. Out-of-order redelivery of
// an older token is reported as a change, since tokens are opaque and carry
// no order; the caller resynchronises with Foo/changes either way.
type StateTracker struct {
	mu     sync.Mutex
	states map[string]map[string]string
}

// NewStateTracker creates an empty tracker.
func NewStateTracker() *StateTracker {
	return &StateTracker{states: make(map[string]map[string]string)}
}

// Apply records the tokens in e and returns the changes that differ from
// what was recorded before.
func (t *StateTracker) Apply(e StateChange) []Change {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fresh []Change
	for _, c := range e.Changes() {
		types, ok := t.states[c.AccountID]
		if !ok {
			types = make(map[string]string)
			t.states[c.AccountID] = types
		}
		if types[c.TypeName] == c.State {
			continue
		}
		types[c.TypeName] = c.State
		fresh = append(fresh, c)
	}
	return fresh
}

// State returns the last token recorded for an account and type.
func (t *StateTracker) State(accountID, typeName string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[accountID][typeName]
	return s, ok
}

// Observer returns an observer that applies every StateChange and passes
// the fresh changes to fn. Other events are ignored.
func (t *StateTracker) Observer(fn func([]Change)) Observer {
	return ObserverFunc(func(e Event) {
		sc, ok := e.(StateChange)
		if !ok {
			return
		}
		if fresh := t.Apply(sc); len(fresh) > 0 {
			fn(fresh)
		}
	})
}

package push

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Event
	}{
		{
			name:  "state change",
			input: `{"@type":"StateChange","changed":{"u1":{"Email":"e2","Mailbox":"m7"}}}`,
			want:  StateChange{Changed: map[string]map[string]string{"u1": {"Email": "e2", "Mailbox": "m7"}}},
		},
		{"empty payload", ``, KeepAlive{}},
		{"whitespace payload", " \n", KeepAlive{}},
		{"ping", `{"interval":30}`, KeepAlive{Interval: 30}},
		{"not json", `hello`, Unknown{Raw: []byte(`hello`)}},
		{"other type", `{"@type":"Other"}`, Unknown{Raw: []byte(`{"@type":"Other"}`)}},
		{"state change without changed", `{"@type":"StateChange"}`, Unknown{Raw: []byte(`{"@type":"StateChange"}`)}},
		{"malformed changed", `{"@type":"StateChange","changed":{"u1":"x"}}`, Unknown{Raw: []byte(`{"@type":"StateChange","changed":{"u1":"x"}}`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse([]byte(tt.input)))
		})
	}
}

func TestStateChangeChangesSorted(t *testing.T) {
	e := StateChange{Changed: map[string]map[string]string{
		"u2": {"Email": "a"},
		"u1": {"Mailbox": "m", "Email": "e"},
	}}

	assert.Equal(t, []Change{
		{AccountID: "u1", TypeName: "Email", State: "e"},
		{AccountID: "u1", TypeName: "Mailbox", State: "m"},
		{AccountID: "u2", TypeName: "Email", State: "a"},
	}, e.Changes())
}

func TestDispatcherSubscribeAndUnsubscribe(t *testing.T) {
	d := NewDispatcher(discardLogger())

	var got []string
	unsubA := d.Subscribe(ObserverFunc(func(e Event) { got = append(got, "a:"+EventName(e)) }))
	d.Subscribe(ObserverFunc(func(e Event) { got = append(got, "b:"+EventName(e)) }))

	d.Dispatch(KeepAlive{})
	unsubA()
	unsubA()
	d.Dispatch(Unknown{})

	assert.Equal(t, []string{"a:keep_alive", "b:keep_alive", "b:unknown"}, got)
}

// sliceSource replays payloads, then ends with err.
type sliceSource struct {
	payloads [][]byte
	err      error
}

func (s *sliceSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.payloads) == 0 {
		return nil, s.err
	}
	p := s.payloads[0]
	s.payloads = s.payloads[1:]
	return p, nil
}

func TestDispatcherRun(t *testing.T) {
	d := NewDispatcher(discardLogger())
	var events []Event
	d.Subscribe(ObserverFunc(func(e Event) { events = append(events, e) }))

	src := &sliceSource{
		payloads: [][]byte{
			[]byte(`{"@type":"StateChange","changed":{"u1":{"Email":"e1"}}}`),
			[]byte(`{"interval":10}`),
		},
		err: io.EOF,
	}

	require.NoError(t, d.Run(context.Background(), src))
	require.Len(t, events, 2)
	assert.IsType(t, StateChange{}, events[0])
	assert.Equal(t, KeepAlive{Interval: 10}, events[1])
}

func TestDispatcherRunStopsOnError(t *testing.T) {
	d := NewDispatcher(discardLogger())
	boom := errors.New("connection reset")

	err := d.Run(context.Background(), &sliceSource{err: boom})
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = d.Run(ctx, &sliceSource{err: io.ErrUnexpectedEOF})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStateTrackerDuplicateDeliveryIsNoOp(t *testing.T) {
	tr := NewStateTracker()
	e := StateChange{Changed: map[string]map[string]string{"u1": {"Email": "e2"}}}

	assert.Equal(t, []Change{{AccountID: "u1", TypeName: "Email", State: "e2"}}, tr.Apply(e))
	assert.Empty(t, tr.Apply(e))

	state, ok := tr.State("u1", "Email")
	require.True(t, ok)
	assert.Equal(t, "e2", state)

	_, ok = tr.State("u1", "Mailbox")
	assert.False(t, ok)
}

func TestStateTrackerObserver(t *testing.T) {
	tr := NewStateTracker()
	d := NewDispatcher(discardLogger())

	var mu sync.Mutex
	var batches [][]Change
	d.Subscribe(tr.Observer(func(c []Change) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, c)
	}))

	e := StateChange{Changed: map[string]map[string]string{"u1": {"Email": "e2", "Mailbox": "m1"}}}
	d.Dispatch(e)
	d.Dispatch(e)
	d.Dispatch(KeepAlive{})
	d.Dispatch(StateChange{Changed: map[string]map[string]string{"u1": {"Email": "e3", "Mailbox": "m1"}}})

	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Equal(t, []Change{{AccountID: "u1", TypeName: "Email", State: "e3"}}, batches[1])
}

package push

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// Observer receives push events.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) {
	f(e)
}

// Source yields raw push payloads. Next blocks until a payload arrives, ctx
// is done, or the underlying stream ends; it returns io.EOF when a stream
// ends cleanly. Reconnecting is the source's business, not the dispatcher's.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
}

// Dispatcher fans events out to registered observers.
//
// Thread-safety: all methods are safe for concurrent use. Observers are
// called in subscription order on the goroutine that calls Dispatch.
type Dispatcher struct {
	mu        sync.RWMutex
	observers []subscription
	nextID    int
	logger    *slog.Logger
}

type subscription struct {
	id  int
	obs Observer
}

// NewDispatcher creates a dispatcher. A nil logger uses slog.Default().
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger}
}

// Subscribe registers obs and returns a function that removes it.
func (d *Dispatcher) Subscribe(obs Observer) (unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.observers = append(d.observers, subscription{id: id, obs: obs})

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, s := range d.observers {
				if s.id == id {
					d.observers = append(d.observers[:i:i], d.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Dispatch delivers e to every current observer.
func (d *Dispatcher) Dispatch(e Event) {
	d.mu.RLock()
	subs := make([]subscription, len(d.observers))
	copy(subs, d.observers)
	d.mu.RUnlock()

	d.logger.Debug("push event dispatched", "event", EventName(e), "observers", len(subs))
	for _, s := range subs {
		s.obs.Observe(e)
	}
}

// Run reads payloads from src until ctx is done or src fails, parsing and
// dispatching each one. A clean end of stream returns nil.
func (d *Dispatcher) Run(ctx context.Context, src Source) error {
	for {
		raw, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		d.Dispatch(Parse(raw))
	}
}

// EventName returns a stable label for e, for logs and metrics.
func EventName(e Event) string {
	switch e.(type) {
	case StateChange:
		return "state_change"
	case KeepAlive:
		return "keep_alive"
	default:
		return "unknown"
	}
}

package eventbus

import (
	"context"
	"sync"

	"github.com/dukex/licensehub/internal/idgen"
	"github.com/dukex/licensehub/pkg/events"
)

// NoopEventBus drops every event. Used when no broker is configured.
type NoopEventBus struct{}

func (NoopEventBus) Publish(context.Context, string, Event) error { return nil }
func (NoopEventBus) Handle(events.EventType, EventHandler) error { return nil }
func (NoopEventBus) Subscribe(context.Context) error { return nil }
func (NoopEventBus) Close() error { return nil }
func (NoopEventBus) GenerateID() string { return idgen.New() }

// Recorder keeps every published event in memory, in publication order.
type Recorder struct {
	NoopEventBus

	mu     sync.Mutex
	events []events.Event
	keys   []string
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, key string, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e := event.(type) {
	case events.Event:
		r.events = append(r.events, e)
	case *events.Event:
		r.events = append(r.events, *e)
	default:
		r.events = append(r.events, events.Event{Type: event.GetType()})
	}

	r.keys = append(r.keys, key)

	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]events.Event(nil), r.events...)
}

// Keys returns the partition keys of the recorded events.
func (r *Recorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.keys...)
}

// Types returns the types of the recorded events.
func (r *Recorder) Types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]events.EventType, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}

	return types
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = nil
	r.keys = nil
}

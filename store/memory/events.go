package memory

import (
	"context"
	"sync"

	core "github.com/DomeLiquid/pawnshop"
)

// EventRecorder keeps every emitted event in order.
type EventRecorder struct {
	mu     sync.Mutex
	events []core.Event
}

var _ core.EventSink = (*EventRecorder)(nil)

func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

func (r *EventRecorder) Emit(_ context.Context, event core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *EventRecorder) Events() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Event(nil), r.events...)
}

// OfType filters recorded events by type.
func (r *EventRecorder) OfType(t core.EventType) []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

package events

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
)

// Event is one notification on a topic. Data holds the payload type that
// messages.go pairs with the topic.
type Event struct {
	Type    string
	Data    any
	Context context.Context
}

// Observer receives events for the topics it accepts.
type Observer interface {
	OnEvent(event Event) error
	GetName() string
	ShouldHandle(eventType string) bool
}

// EventDispatcher fans events out to registered observers synchronously, in
// registration order. The observer list is copy-on-write so Dispatch never
// takes a lock.
type EventDispatcher struct {
	mu        sync.Mutex // serializes writers
	observers atomic.Pointer[[]Observer]
	logger    *slog.Logger
}

// NewEventDispatcher returns an empty dispatcher. A nil logger uses slog.Default.
func NewEventDispatcher(logger *slog.Logger) *EventDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &EventDispatcher{logger: logger.With("component", "events")}
	d.observers.Store(&[]Observer{})
	return d
}

func (d *EventDispatcher) current() []Observer {
	return *d.observers.Load()
}

// Register appends observer. Registering the same observer twice delivers
// each event to it twice.
func (d *EventDispatcher) Register(observer Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := append(slices.Clone(d.current()), observer)
	d.observers.Store(&next)
	d.logger.Debug("Registered observer", "observer", observer.GetName(), "count", len(next))
}

// Unregister removes the first registration of observer, if any.
func (d *EventDispatcher) Unregister(observer Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur := d.current()
	i := slices.Index(cur, observer)
	if i < 0 {
		return
	}
	next := slices.Delete(slices.Clone(cur), i, i+1)
	d.observers.Store(&next)
	d.logger.Debug("Unregistered observer", "observer", observer.GetName(), "count", len(next))
}

// Dispatch delivers event to every interested observer. A failing or
// panicking observer is logged and does not stop delivery to the rest.
func (d *EventDispatcher) Dispatch(event Event) {
	for _, obs := range d.current() {
		if !obs.ShouldHandle(event.Type) {
			continue
		}
		if err := d.deliver(obs, event); err != nil {
			d.logger.Warn("Observer failed to handle event",
				"observer", obs.GetName(), "event", event.Type, "error", err)
		}
	}
}

func (d *EventDispatcher) deliver(obs Observer, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panicked: %v", r)
		}
	}()
	return obs.OnEvent(event)
}

// ObserverCount returns the number of registrations.
func (d *EventDispatcher) ObserverCount() int {
	return len(d.current())
}

// NewTypedEvent builds an Event for topic carrying data.
func NewTypedEvent[T any](ctx context.Context, eventType string, data T) Event {
	return Event{Type: eventType, Data: data, Context: ctx}
}

// GetTypedData returns the payload as T, or false when it is absent or of
// another type.
func GetTypedData[T any](event Event) (T, bool) {
	typed, ok := event.Data.(T)
	return typed, ok
}

// Publisher is the narrow dispatch surface the stores depend on.
type Publisher interface {
	Dispatch(event Event)
}

// Publish dispatches a typed event through p. A nil publisher is a no-op.
func Publish[T any](ctx context.Context, p Publisher, eventType string, data T) {
	if p == nil {
		return
	}
	p.Dispatch(NewTypedEvent(ctx, eventType, data))
}

package websocket

import (
	"github.com/ramonehamilton/Pokedex-Companion/internal/events"
)

// Observer forwards engine events to WebSocket clients.
type Observer struct {
	hub    *Hub
	topics map[string]bool
}

// NewObserver forwards the given topics, or every topic when none are given.
func NewObserver(hub *Hub, topics ...string) *Observer {
	o := &Observer{hub: hub}
	if len(topics) > 0 {
		o.topics = make(map[string]bool, len(topics))
		for _, t := range topics {
			o.topics[t] = true
		}
	}
	return o
}

// OnEvent broadcasts the event payload under its topic.
func (o *Observer) OnEvent(event events.Event) error {
	if o.hub == nil {
		return nil
	}
	o.hub.BroadcastEvent(Event{Type: event.Type, Data: event.Data})
	return nil
}

// GetName returns the observer's name.
func (o *Observer) GetName() string {
	return "websocket"
}

// ShouldHandle reports whether eventType is forwarded.
func (o *Observer) ShouldHandle(eventType string) bool {
	return o.topics == nil || o.topics[eventType]
}

var _ events.Observer = (*Observer)(nil)

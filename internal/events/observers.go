package events

import (
	"log/slog"
)

// LoggingObserver logs every event at debug level.
type LoggingObserver struct {
	name    string
	verbose bool
	logger  *slog.Logger
}

// NewLoggingObserver creates a new observer that logs events.
func NewLoggingObserver(logger *slog.Logger, verbose bool) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{
		name:    "LoggingObserver",
		verbose: verbose,
		logger:  logger,
	}
}

// OnEvent logs the event details.
func (o *LoggingObserver) OnEvent(event Event) error {
	if o.verbose {
		o.logger.Debug("Event", "type", event.Type, "data", event.Data)
	} else {
		o.logger.Debug("Event", "type", event.Type)
	}
	return nil
}

// GetName returns the observer's name.
func (o *LoggingObserver) GetName() string {
	return o.name
}

// ShouldHandle returns true for all events.
func (o *LoggingObserver) ShouldHandle(string) bool {
	return true
}

// FuncObserver adapts a function to the Observer interface for a fixed set of topics.
type FuncObserver struct {
	name   string
	topics map[string]struct{}
	fn     func(Event) error
}

// NewFuncObserver creates an observer that calls fn for the given topics.
// No topics means every topic.
func NewFuncObserver(name string, fn func(Event) error, topics ...string) *FuncObserver {
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}
	return &FuncObserver{name: name, topics: set, fn: fn}
}

// OnEvent calls the wrapped function.
func (o *FuncObserver) OnEvent(event Event) error {
	return o.fn(event)
}

// GetName returns the observer's name.
func (o *FuncObserver) GetName() string {
	return o.name
}

// ShouldHandle reports whether eventType is one of the observer's topics.
func (o *FuncObserver) ShouldHandle(eventType string) bool {
	if len(o.topics) == 0 {
		return true
	}
	_, ok := o.topics[eventType]
	return ok
}

// Package ipc is a WebSocket client for the engine's event stream.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// AnyEvent registers a handler for every event type.
const AnyEvent = "*"

// Event is one message pushed by the engine.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.Type)
	}
	return json.Unmarshal(e.Data, v)
}

// EventHandler handles one event. Handlers run on the read loop and must
// not block.
type EventHandler func(Event)

// ClientConfig holds optional client settings.
type ClientConfig struct {
	// Origin is sent on the handshake. The engine rejects origins outside its
	// allow list.
	Origin string
	// ReconnectDelay is the wait between connection attempts. Default: 5s
	ReconnectDelay time.Duration
	// Topics narrows delivery to these event types, on the server and
	// locally. Empty receives everything.
	Topics []string
	Logger *slog.Logger
}

// Client subscribes to the engine's WebSocket endpoint.
type Client struct {
	url    string
	header http.Header
	delay  time.Duration
	topics []string
	logger *slog.Logger

	handlersMu sync.RWMutex
	handlers   map[string][]EventHandler

	connMu    sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// NewClient creates a client for url, e.g. ws://localhost:9999/ws.
func NewClient(url string, cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	header := http.Header{}
	if cfg.Origin != "" {
		header.Set("Origin", cfg.Origin)
	}
	return &Client{
		url:      url,
		header:   header,
		delay:    delay,
		topics:   cfg.Topics,
		logger:   logger.With("component", "ipc"),
		handlers: make(map[string][]EventHandler),
	}
}

// On registers a handler for eventType, or for every event with AnyEvent.
func (c *Client) On(eventType string, handler EventHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[eventType] = append(c.handlers[eventType], handler)
}

// Connect dials the engine once.
func (c *Client) Connect(ctx context.Context) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.url, c.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}
	if len(c.topics) > 0 {
		if err := conn.WriteJSON(subscribeFrame{Subscribe: c.topics}); err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to subscribe: %w", err)
		}
	}

	c.connMu.Lock()
	c.conn = conn
	c.connected = true
	c.connMu.Unlock()

	c.logger.Info("Connected to engine", "url", c.url)
	return nil
}

// Run reads events until ctx is cancelled, reconnecting after failures.
// It connects first if Connect was not called.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, c.closeConn)
	defer stop()
	defer c.closeConn()

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn := c.current()
		if conn == nil {
			if err := c.Connect(ctx); err != nil {
				c.logger.Warn("Connection attempt failed", "error", err)
				if !sleep(ctx, c.delay) {
					return nil
				}
				continue
			}
			conn = c.current()
		}

		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				c.logger.Info("Engine closed the connection", "code", closeErr.Code)
			} else {
				c.logger.Warn("Read failed", "error", err)
			}
			c.closeConn()
			if !sleep(ctx, c.delay) {
				return nil
			}
			continue
		}
		c.dispatch(event)
	}
}

// IsConnected reports whether a connection is open.
func (c *Client) IsConnected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.connected
}

// URL returns the endpoint the client dials.
func (c *Client) URL() string {
	return c.url
}

func (c *Client) current() *websocket.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

func (c *Client) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

type subscribeFrame struct {
	Subscribe []string `json:"subscribe"`
}

func (c *Client) dispatch(event Event) {
	// Events broadcast before the server applied the subscribe frame.
	if len(c.topics) > 0 && !slices.Contains(c.topics, event.Type) {
		return
	}
	c.handlersMu.RLock()
	handlers := append(append([]EventHandler(nil), c.handlers[event.Type]...), c.handlers[AnyEvent]...)
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

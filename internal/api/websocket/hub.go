// Package websocket pushes engine events to connected UI clients.
package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// Subscribe frames are the only inbound traffic.
	maxFrameSize = 4096

	clientBuffer = 256
	queueBuffer  = 256
)

// Event is the wire form of a broadcast event.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SubscribeRequest is the frame a client sends to narrow the topics it
// receives. An empty list restores delivery of every topic.
type SubscribeRequest struct {
	Subscribe []string `json:"subscribe"`
}

type outbound struct {
	topic   string
	payload []byte
}

// Client is one WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	topics atomic.Pointer[map[string]struct{}] // nil means every topic
}

func (c *Client) wants(topic string) bool {
	set := c.topics.Load()
	if set == nil {
		return true
	}
	_, ok := (*set)[topic]
	return ok
}

func (c *Client) subscribe(topics []string) {
	if len(topics) == 0 {
		c.topics.Store(nil)
		return
	}
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}
	c.topics.Store(&set)
}

// HubConfig configures a Hub.
type HubConfig struct {
	// AllowedOrigins are host patterns (path.Match syntax, e.g.
	// "localhost:*"). Empty allows every origin.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Hub tracks connected clients and fans queued events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	stopped bool

	queue    chan outbound
	done     chan struct{}
	stopOnce sync.Once

	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHub creates a hub. Run must be started before events are delivered.
func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	allowed := cfg.AllowedOrigins
	return &Hub{
		clients: make(map[*Client]struct{}),
		queue:   make(chan outbound, queueBuffer),
		done:    make(chan struct{}),
		logger:  logger.With("component", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r.Header.Get("Origin"), allowed)
			},
		},
	}
}

func originAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 || origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, pattern := range allowed {
		if ok, _ := path.Match(pattern, u.Host); ok {
			return true
		}
		if ok, _ := path.Match(pattern, origin); ok {
			return true
		}
	}
	return false
}

// Run delivers queued events until Stop, then disconnects every client.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.shutdown()
			return
		case msg := <-h.queue:
			h.fanout(msg)
		}
	}
}

func (h *Hub) fanout(msg outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(msg.topic) {
			continue
		}
		select {
		case c.send <- msg.payload:
		default:
			h.logger.Warn("Dropping slow WebSocket client", "topic", msg.topic)
			h.removeLocked(c)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	h.stopped = true
	for c := range h.clients {
		h.removeLocked(c)
	}
	h.mu.Unlock()
	h.logger.Info("WebSocket hub stopped")
}

func (h *Hub) attach(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Debug("WebSocket client connected", "clients", len(h.clients))
	return true
}

func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
	h.logger.Debug("WebSocket client disconnected", "clients", len(h.clients))
}

func (h *Hub) removeLocked(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// BroadcastEvent queues event for every subscribed client. Returns false if
// the hub has stopped or the event cannot be encoded.
func (h *Hub) BroadcastEvent(event Event) bool {
	if h.IsStopped() {
		return false
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("Failed to encode WebSocket event", "type", event.Type, "error", err)
		return false
	}
	select {
	case h.queue <- outbound{topic: event.Type, payload: payload}:
		return true
	case <-h.done:
		return false
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop signals Run to disconnect every client. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// IsStopped reports whether Run has finished disconnecting clients.
func (h *Hub) IsStopped() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stopped
}

// ServeWs upgrades the request and attaches the connection as a client.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	if h.IsStopped() {
		http.Error(w, "WebSocket hub is not running", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	c := &Client{hub: h, conn: conn, send: make(chan []byte, clientBuffer)}
	if !h.attach(c) {
		_ = conn.Close()
		return
	}
	go c.writeLoop()
	go c.readLoop()
}

// readLoop applies subscribe frames and keeps the read deadline moving on
// pongs. It detaches the client when the connection fails.
func (c *Client) readLoop() {
	defer func() {
		c.hub.detach(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("WebSocket read error", "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		var req SubscribeRequest
		if err := json.Unmarshal(frame, &req); err != nil {
			c.hub.logger.Debug("Ignoring malformed client frame", "error", err)
			continue
		}
		c.subscribe(req.Subscribe)
	}
}

func (c *Client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		var (
			kind = websocket.TextMessage
			body []byte
		)
		select {
		case msg, ok := <-c.send:
			if !ok {
				kind = websocket.CloseMessage
			}
			body = msg
		case <-ping.C:
			kind = websocket.PingMessage
		}

		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := c.conn.WriteMessage(kind, body); err != nil {
			c.hub.logger.Debug("WebSocket write error", "error", err)
			return
		}
		if kind == websocket.CloseMessage {
			return
		}
	}
}

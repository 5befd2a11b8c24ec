package ipc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/Pokedex-Companion/internal/api/websocket"
	"github.com/ramonehamilton/Pokedex-Companion/internal/events"
)

func startHub(t *testing.T, cfg websocket.HubConfig) (*websocket.Hub, string) {
	t.Helper()
	hub := websocket.NewHub(cfg)
	go hub.Run()
	t.Cleanup(hub.Stop)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	t.Cleanup(server.Close)
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) at(i int) Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[i]
}

func TestClient_ReceivesEvents(t *testing.T) {
	hub, url := startHub(t, websocket.HubConfig{})

	client := NewClient(url, ClientConfig{ReconnectDelay: 10 * time.Millisecond})
	tagged := &recorder{}
	all := &recorder{}
	client.On(events.TopicTagsRebuilt, tagged.handle)
	client.On(AnyEvent, all.handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, client.IsConnected())

	hub.BroadcastEvent(websocket.Event{Type: events.TopicTagsRebuilt, Data: events.TagsRebuiltEvent{Partition: "local", Caught: 4}})
	hub.BroadcastEvent(websocket.Event{Type: events.TopicBatchFlushed, Data: map[string]int{"succeeded": 2}})

	require.Eventually(t, func() bool { return all.len() == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, tagged.len())

	var payload events.TagsRebuiltEvent
	require.NoError(t, tagged.at(0).Decode(&payload))
	assert.Equal(t, "local", payload.Partition)
	assert.Equal(t, 4, payload.Caught)
	assert.Equal(t, events.TopicBatchFlushed, all.at(1).Type)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, client.IsConnected())
}

func TestClient_ReconnectsAfterServerRestart(t *testing.T) {
	hub, url := startHub(t, websocket.HubConfig{})

	client := NewClient(url, ClientConfig{ReconnectDelay: 10 * time.Millisecond})
	got := &recorder{}
	client.On(AnyEvent, got.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, client.Connect(ctx))
	go func() { _ = client.Run(ctx) }()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	// Dropping every client forces the read loop through a reconnect.
	hub.Stop()
	require.Eventually(t, func() bool { return !client.IsConnected() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, got.len())
}

func TestClient_RejectedOrigin(t *testing.T) {
	_, url := startHub(t, websocket.HubConfig{AllowedOrigins: []string{"localhost:*"}})

	client := NewClient(url, ClientConfig{Origin: "http://evil.example"})
	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.False(t, client.IsConnected())

	ok := NewClient(url, ClientConfig{Origin: "http://localhost:3000"})
	require.NoError(t, ok.Connect(context.Background()))
	assert.True(t, ok.IsConnected())
	ok.closeConn()
}

func TestClient_TopicsFilterStream(t *testing.T) {
	hub, url := startHub(t, websocket.HubConfig{})

	client := NewClient(url, ClientConfig{
		ReconnectDelay: 10 * time.Millisecond,
		Topics:         []string{events.TopicBatchFlushed},
	})
	got := &recorder{}
	client.On(AnyEvent, got.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Run(ctx) }()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	hub.BroadcastEvent(websocket.Event{Type: events.TopicTagsRebuilt})
	hub.BroadcastEvent(websocket.Event{Type: events.TopicBatchFlushed})

	require.Eventually(t, func() bool { return got.len() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, events.TopicBatchFlushed, got.at(0).Type)

	hub.BroadcastEvent(websocket.Event{Type: events.TopicVariantsChanged})
	hub.BroadcastEvent(websocket.Event{Type: events.TopicBatchFlushed})
	require.Eventually(t, func() bool { return got.len() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, events.TopicBatchFlushed, got.at(1).Type)
}

func TestEvent_DecodeEmpty(t *testing.T) {
	assert.Error(t, Event{Type: "x"}.Decode(&struct{}{}))
}

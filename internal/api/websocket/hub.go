// Package websocket fans the Event Bus out to connected dashboard
// clients. Grounded on the teacher's Hub/Client pair (register/
// unregister channels guarded by a mutex, per-client buffered send
// channel, ping/pong keepalive), adapted from a raw broadcast channel to
// subscribing on the Event Bus directly — each client gets its own
// eventbus.Subscription instead of sharing one global broadcast chan.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/skiffhost/skiffd/internal/eventbus"
	"github.com/skiffhost/skiffd/internal/metrics"
)

// Hub tracks connected clients so Stop can close them all together.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	bus     *eventbus.Bus
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(ctx context.Context, bus *eventbus.Bus, logger *slog.Logger) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		clients: make(map[*Client]bool),
		bus:     bus,
		logger:  logger,
		ctx:     hubCtx,
		cancel:  cancel,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	metrics.WebSocketConnectionsActive.Set(float64(len(h.clients)))
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		metrics.WebSocketConnectionsActive.Set(float64(len(h.clients)))
	}
	h.mu.Unlock()
}

// Stop cancels every client's subscription and closes its connection.
func (h *Hub) Stop() {
	h.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.Close()
		delete(h.clients, c)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// replayPayload is the envelope sent immediately on connect so a
// dashboard reconnecting after a restart can catch up before live
// events start arriving.
type replayPayload struct {
	Type   string      `json:"type"`
	Events interface{} `json:"events"`
}

func marshalReplay(events interface{}) ([]byte, error) {
	return json.Marshal(replayPayload{Type: "replay", Events: events})
}

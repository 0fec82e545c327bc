package websocket

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skiffhost/skiffd/internal/eventbus"
	"github.com/skiffhost/skiffd/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client bridges one websocket connection to an Event Bus subscription.
type Client struct {
	conn *websocket.Conn
	hub  *Hub
	sub  *eventbus.Subscription
	id   string
}

func newClient(hub *Hub, conn *websocket.Conn, id string, sub *eventbus.Subscription) *Client {
	return &Client{conn: conn, hub: hub, sub: sub, id: id}
}

// Close unsubscribes from the bus and closes the underlying connection.
func (c *Client) Close() {
	c.sub.Unsubscribe()
	_ = c.conn.Close()
}

// ReadPump discards client input beyond keepalive pongs; this stream is
// one-directional (server to dashboard). It exists to detect disconnects
// and to respond to ping/pong per the gorilla/websocket contract.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// WritePump relays events from the bus subscription to the connection
// and sends periodic pings to keep intermediaries from closing it idle.
func (c *Client) WritePump(logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.hub.unregister(c)
		c.Close()
	}()

	for {
		select {
		case event, ok := <-c.sub.Events():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				logger.Debug("websocket write failed", "client_id", c.id, "error", err)
				return
			}
			metrics.WebSocketMessagesSentTotal.Inc()

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// WebSocket timeout constants following Gorilla best practices
// See: https://github.com/gorilla/websocket/blob/master/examples/chat/client.go
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer. Inbound traffic is
	// keepalive/ack only; notifications flow outbound.
	maxMessageSize = 4 * 1024
)

// Client represents one live websocket connection.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan any
	sessionID string
	userID    uuid.UUID // uuid.Nil for untracked connections
	limiter   *rate.Limiter
	closeOnce sync.Once // Prevents double-close panics
}

func newClient(hub *Hub, conn *websocket.Conn, sessionID string, userID uuid.UUID) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan any, 16),
		sessionID: sessionID,
		userID:    userID,
		// Inbound frames are control traffic only; anything chattier
		// is a misbehaving peer.
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

// readPump consumes inbound frames until the connection drops.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.hub.log.Warnw("WebSocket read error",
					"session_id", c.sessionID,
					"error", err.Error(),
				)
			}
			return
		}

		if !c.limiter.Allow() {
			c.hub.log.Warnw("Dropping inbound message, rate limit exceeded",
				"session_id", c.sessionID,
			)
		}
		// Inbound payloads carry nothing actionable; the read loop
		// exists to observe disconnects and answer pings.
	}
}

// writePump writes queued payloads and keepalive pings to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.hub.ctx.Done():
			return
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(payload); err != nil {
				c.hub.log.Warnw("Write error",
					"session_id", c.sessionID,
					"error", err.Error(),
				)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close safely closes the client's send channel.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

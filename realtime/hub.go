package realtime

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/casevine/casevine/errors"
)

const userTopicPrefix = "user-"

// Hub owns the live websocket connections and implements Publisher over
// them. Connect and disconnect events feed the registry from the hub's
// run loop; publishes come in from request threads and the engine worker.
type Hub struct {
	registry *Registry
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*Client // session id -> client

	register   chan *Client
	unregister chan *Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a hub feeding the given registry.
func NewHub(registry *Registry, log *zap.SugaredLogger) *Hub {
	return NewHubWithContext(context.Background(), registry, log)
}

// NewHubWithContext creates a hub with a parent context.
func NewHubWithContext(ctx context.Context, registry *Registry, log *zap.SugaredLogger) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		registry: registry,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin enforcement happens at the platform's edge proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        hubCtx,
		cancel:     cancel,
	}
}

// Start begins the hub's run loop.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.run()
	h.log.Infow("WebSocket hub started")
}

// Stop closes every live connection and waits for the pumps to exit.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	for _, client := range h.clients {
		client.conn.Close()
		client.close()
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	h.wg.Wait()
	h.log.Infow("WebSocket hub stopped")
}

func (h *Hub) run() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.sessionID] = client
			h.mu.Unlock()

			h.registry.OnConnect(client.sessionID, client.userID)

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.sessionID]; ok && current == client {
				delete(h.clients, client.sessionID)
			}
			h.mu.Unlock()

			h.registry.OnDisconnect(client.sessionID)
			client.close()
		}
	}
}

// ServeWS upgrades an HTTP request to a websocket connection. The user id
// is resolved from the handshake (set by the auth middleware upstream); a
// connection without a resolvable user stays open but is never tracked for
// targeted delivery.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := resolveUserID(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("WebSocket upgrade failed", "error", err.Error())
		return
	}

	client := newClient(h, conn, uuid.NewString(), userID)

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		conn.Close()
		return
	}

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// resolveUserID extracts the authenticated user id placed on the handshake
// request. Absent or malformed ids resolve to uuid.Nil (untracked).
func resolveUserID(r *http.Request) uuid.UUID {
	raw := r.Header.Get("X-User-Id")
	if raw == "" {
		raw = r.URL.Query().Get("user_id")
	}
	if raw == "" {
		return uuid.Nil
	}

	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return userID
}

// Publish implements Publisher. The broadcast topic fans out to every
// connected client; a user topic resolves through the registry to that
// user's single live session. Publishing to an empty topic succeeds as a
// no-op.
func (h *Hub) Publish(topic string, payload any) error {
	if topic == BroadcastTopic {
		h.broadcast(payload)
		return nil
	}

	if raw, ok := strings.CutPrefix(topic, userTopicPrefix); ok {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return errors.Wrapf(err, "malformed user topic %q", topic)
		}
		h.sendToUser(userID, payload)
		return nil
	}

	return errors.Newf("unknown topic %q", topic)
}

func (h *Hub) broadcast(payload any) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		select {
		case client.send <- payload:
			sent++
		default:
			// Channel full - skip
		}
	}
	h.log.Debugw("Broadcast fanned out", "clients", len(clients), "sent", sent)
}

func (h *Hub) sendToUser(userID uuid.UUID, payload any) {
	sessionID, ok := h.registry.SessionFor(userID)
	if !ok {
		return
	}

	h.mu.RLock()
	client, ok := h.clients[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case client.send <- payload:
	default:
		h.log.Warnw("Client send channel full, dropping payload",
			"user_id", userID,
			"session_id", sessionID,
		)
	}
}

// ClientCount returns the number of live connections, tracked or not.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

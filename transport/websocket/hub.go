package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Outgoing messages buffered per client and in the hub.
	clientBuffer    = 256
	broadcastBuffer = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the greeting sent to a client when it subscribes
type Message struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type envelope struct {
	sessionID string
	data      []byte
}

// Client represents a WebSocket client
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
}

// Hub maintains the set of active clients and fans messages out per session
type Hub struct {
	// Registered clients by session ID. Written only by Run.
	sessions map[string]map[*Client]bool
	mu       sync.RWMutex

	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		broadcast:  make(chan envelope, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case env := <-h.broadcast:
			h.deliver(env)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// ServeWS upgrades the request and subscribes the connection to sessionID
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, clientBuffer),
		sessionID: sessionID,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Broadcast sends msg as JSON to every client subscribed to sessionID. It
// never blocks; messages are dropped when the hub falls behind.
func (h *Hub) Broadcast(sessionID string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("failed to marshal websocket message", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- envelope{sessionID: sessionID, data: data}:
	default:
		h.logger.Debug("websocket broadcast dropped", zap.String("session_id", sessionID))
	}
}

// HasSubscribers reports whether any client listens to sessionID
func (h *Hub) HasSubscribers(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID]) > 0
}

// ClientCount returns the number of clients subscribed to sessionID
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// registerClient adds a client to a session
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.sessions[client.sessionID] == nil {
		h.sessions[client.sessionID] = make(map[*Client]bool)
	}
	h.sessions[client.sessionID][client] = true
	total := len(h.sessions[client.sessionID])
	h.mu.Unlock()

	if data, err := json.Marshal(Message{Type: "connected", SessionID: client.sessionID}); err == nil {
		client.send <- data
	}
	h.logger.Info("websocket client registered",
		zap.String("session_id", client.sessionID),
		zap.Int("clients", total),
	)
}

// unregisterClient removes a client from a session
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

// removeLocked drops a client and closes its send channel. Callers hold mu.
func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.sessions[client.sessionID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)

	// Clean up empty sessions
	if len(clients) == 0 {
		delete(h.sessions, client.sessionID)
	}

	h.logger.Info("websocket client unregistered",
		zap.String("session_id", client.sessionID),
		zap.Int("remaining", len(clients)),
	)
}

// deliver sends a message to all clients in a session. A client whose
// buffer is full is disconnected.
func (h *Hub) deliver(env envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.sessions[env.sessionID] {
		select {
		case client.send <- env.data:
		default:
			h.removeLocked(client)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.sessions {
		for client := range clients {
			h.removeLocked(client)
		}
	}
}

// readPump keeps the connection alive and unregisters the client when the
// peer goes away. Incoming messages are ignored.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
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
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", zap.String("session_id", c.sessionID), zap.Error(err))
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// one JSON document per frame
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/projectcards/project-game-server/internal/config"
	"go.uber.org/zap"
)

// Message is the envelope pushed to WebSocket subscribers.
type Message struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Data      any    `json:"data,omitempty"`
}

// Push message types.
const (
	MessageState   = "state"
	MessageOutcome = "outcome"
)

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
}

type broadcast struct {
	sessionID string
	payload   []byte
}

// Hub fans session messages out to the WebSocket clients subscribed to
// that session. Registration and delivery run on the Run goroutine.
type Hub struct {
	cfg        config.WebSocketConfig
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	clients    map[string]map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan broadcast
	done       chan struct{}
	mu         sync.RWMutex
	count      int
}

// NewHub creates a hub. Call Run before serving clients.
func NewHub(cfg config.WebSocketConfig, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	return &Hub{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:    make(map[string]map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan broadcast, 64),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case c := <-h.register:
			if h.clients[c.sessionID] == nil {
				h.clients[c.sessionID] = make(map[*client]bool)
			}
			h.clients[c.sessionID][c] = true
			h.setCount(1)
			h.logger.Debug("websocket client registered", zap.String("session_id", c.sessionID))

		case c := <-h.unregister:
			h.remove(c)

		case msg := <-h.broadcast:
			for c := range h.clients[msg.sessionID] {
				select {
				case c.send <- msg.payload:
				default:
					// Slow consumer; drop it rather than block the hub.
					h.remove(c)
				}
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	subs := h.clients[c.sessionID]
	if !subs[c] {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.clients, c.sessionID)
	}
	close(c.send)
	h.setCount(-1)
	h.logger.Debug("websocket client unregistered", zap.String("session_id", c.sessionID))
}

func (h *Hub) closeAll() {
	for _, subs := range h.clients {
		for c := range subs {
			h.remove(c)
		}
	}
}

func (h *Hub) setCount(delta int) {
	h.mu.Lock()
	h.count += delta
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Publish queues msg for every subscriber of msg.SessionID.
func (h *Hub) Publish(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode websocket message",
			zap.String("session_id", msg.SessionID),
			zap.Error(err),
		)
		return
	}
	select {
	case h.broadcast <- broadcast{sessionID: msg.SessionID, payload: payload}:
	default:
		h.logger.Warn("websocket broadcast queue full; message dropped",
			zap.String("session_id", msg.SessionID),
			zap.String("type", msg.Type),
		)
	}
}

// Serve upgrades the request and subscribes the connection to sessionID.
// initial, when non-nil, is sent before any broadcast.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string, initial *Message) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	c := &client{
		conn:      conn,
		send:      make(chan []byte, 256),
		sessionID: sessionID,
	}
	if initial != nil {
		if payload, err := json.Marshal(initial); err == nil {
			c.send <- payload
		}
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump only services control frames; clients drive the game over HTTP.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(h.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * h.cfg.PingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * h.cfg.PingInterval))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package serve

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/agnvar/agnvar/internal/pipeline"
)

const (
	writeTimeout = 10 * time.Second
	pingPeriod   = 30 * time.Second
	sendBuffer   = 64
)

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	MsgStatus MessageType = "run_status"
	MsgSync   MessageType = "sync"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage encodes a message with the given type and payload.
func NewMessage(typ MessageType, payload any) ([]byte, error) {
	var p json.RawMessage
	if payload != nil {
		var err error
		if p, err = json.Marshal(payload); err != nil {
			return nil, err
		}
	}
	return json.Marshal(Message{Type: typ, Payload: p})
}

// StatusFunc returns the latest run status, or nil before a run starts.
type StatusFunc func() *pipeline.Status

// Hub fans run status out to every connected WebSocket client.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	logger     *slog.Logger
	status     StatusFunc
	done       chan struct{}
	mu         sync.RWMutex
}

type client struct {
	hub  *Hub
	send chan []byte
	conn *websocket.Conn
}

// NewHub creates a hub. status, when set, seeds new clients with the
// current run status.
func NewHub(logger *slog.Logger, status StatusFunc) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger,
		status:     status,
		done:       make(chan struct{}),
	}
}

// Run dispatches registrations and broadcasts until ctx is done. A hub
// cannot be restarted.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Debug("websocket client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected")

		case message := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastStatus queues a status update for all clients. It never blocks;
// updates are dropped while the queue is full.
func (h *Hub) BroadcastStatus(status *pipeline.Status) {
	msg, err := NewMessage(MsgStatus, status)
	if err != nil {
		h.logger.Error("encoding run status", "error", err)
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Debug("dropping status update, broadcast queue full")
	}
}

func (h *Hub) statusMessage() []byte {
	if h.status == nil {
		return nil
	}
	st := h.status()
	if st == nil {
		return nil
	}
	msg, err := NewMessage(MsgStatus, st)
	if err != nil {
		return nil
	}
	return msg
}

// HandleWebSocket upgrades the connection and streams status updates to it.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	c := &client{hub: h, send: make(chan []byte, sendBuffer), conn: conn}
	if msg := h.statusMessage(); msg != nil {
		c.send <- msg
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	case <-r.Context().Done():
		conn.Close(websocket.StatusGoingAway, "")
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *client) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == MsgSync {
			if reply := c.hub.statusMessage(); reply != nil {
				c.offer(reply)
			}
		}
	}
}

// offer queues msg unless the client is gone or its buffer is full.
func (c *client) offer(msg []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

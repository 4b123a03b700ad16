package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type MessageType string

const (
	RunCompleted MessageType = "run_completed"
	RunFailed    MessageType = "run_failed"
	Heartbeat    MessageType = "heartbeat"
)

// Message is the envelope every websocket client receives.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id"`
}

// RunEvent is the payload of run_completed and run_failed.
type RunEvent struct {
	RunID        int64  `json:"run_id,omitempty"`
	Model        string `json:"model"`
	Rows         int    `json:"rows"`
	OutputDigest string `json:"output_digest,omitempty"`
	Kind         string `json:"kind,omitempty"`
	Error        string `json:"error,omitempty"`
	DurationMS   int64  `json:"duration_ms"`
}

type HeartbeatMessage struct {
	Clients int    `json:"clients"`
	Status  string `json:"status"`
}

// ClientMessage is what clients send: subscribe or unsubscribe to a message
// type. A client with no subscriptions receives everything.
type ClientMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

type outbound struct {
	kind    MessageType
	payload []byte
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	id   string

	mu            sync.Mutex
	subscriptions map[MessageType]bool
}

func (c *client) wants(kind MessageType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscriptions) == 0 || c.subscriptions[kind]
}

// Hub fans run events out to websocket clients.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	broadcast  chan outbound
	register   chan *client
	unregister chan *client
	done       chan struct{}
	upgrader   websocket.Upgrader

	heartbeat time.Duration
	logger    *zap.Logger
	sent      atomic.Int64
	nextID    atomic.Int64
}

// NewHub returns a hub that sends a heartbeat every interval; zero disables
// heartbeats.
func NewHub(interval time.Duration, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		heartbeat: interval,
		logger:    logger,
	}
}

// Run serves the hub until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	var tick <-chan time.Time
	if h.heartbeat > 0 {
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client connected", zap.String("client", c.id), zap.Int("total", total))

		case c := <-h.unregister:
			h.drop(c)
			h.logger.Debug("client disconnected", zap.String("client", c.id))

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*client
			for c := range h.clients {
				if !c.wants(msg.kind) {
					continue
				}
				select {
				case c.send <- msg.payload:
					h.sent.Add(1)
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				h.drop(c)
			}

		case <-tick:
			if err := h.Publish(Heartbeat, HeartbeatMessage{Clients: h.ClientCount(), Status: "alive"}); err != nil {
				h.logger.Warn("heartbeat", zap.Error(err))
			}

		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

// Publish queues a message for every subscribed client. A full queue drops
// the message.
func (h *Hub) Publish(kind MessageType, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	msg, err := json.Marshal(Message{
		Type:      kind,
		Timestamp: time.Now().UTC(),
		Data:      payload,
		ID:        fmt.Sprintf("msg_%d", h.nextID.Add(1)),
	})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- outbound{kind: kind, payload: msg}:
	default:
		h.logger.Warn("broadcast queue full, dropping message", zap.String("type", string(kind)))
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) MessagesSent() int64 {
	return h.sent.Load()
}

// HandleWebSocket upgrades the request and attaches the connection to the hub.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn:          conn,
		send:          make(chan []byte, 256),
		id:            fmt.Sprintf("client_%d", h.nextID.Add(1)),
		subscriptions: make(map[MessageType]bool),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump(h.logger)
	go c.readPump(h)
}

func (c *client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("websocket write", zap.String("client", c.id), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		c.mu.Lock()
		switch msg.Type {
		case "subscribe":
			c.subscriptions[MessageType(msg.Topic)] = true
		case "unsubscribe":
			delete(c.subscriptions, MessageType(msg.Topic))
		}
		c.mu.Unlock()
	}
}

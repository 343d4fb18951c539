package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/realestate-marketplace/internal/auth"
	"github.com/wolfman30/realestate-marketplace/pkg/logging"
)

// PushMessage is what connected clients receive.
type PushMessage struct {
	Type         string        `json:"type"` // "connected", "notification", "pong"
	Notification *Notification `json:"notification,omitempty"`
}

type inboundMessage struct {
	Type string `json:"type"`
}

const (
	clientQueueSize = 16
	writeTimeout    = 10 * time.Second
)

// client owns one socket. Only its write loop writes to conn.
type client struct {
	conn *websocket.Conn
	send chan PushMessage
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan PushMessage, clientQueueSize),
		done: make(chan struct{}),
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// enqueue never blocks; false means the queue is full or the client is gone.
func (c *client) enqueue(msg PushMessage) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Hub fans notifications out to a user's open websocket connections.
type Hub struct {
	logger *logging.Logger

	mu    sync.RWMutex
	conns map[uuid.UUID]map[*client]struct{}
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		logger: logger,
		conns:  make(map[uuid.UUID]map[*client]struct{}),
	}
}

// HandleWebSocket upgrades an authenticated request and keeps the
// connection registered until the client goes away.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, principal.UserID)
	}).ServeHTTP(w, r)
}

func (h *Hub) serveWS(conn *websocket.Conn, userID uuid.UUID) {
	c := newClient(conn)
	h.register(userID, c)
	defer func() {
		h.unregister(userID, c)
		c.close()
	}()

	go h.writeLoop(c, userID)
	c.enqueue(PushMessage{Type: "connected"})
	h.logger.Debug("notify: websocket opened", "user_id", userID)

	for {
		var msg inboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("notify: websocket closed", "user_id", userID, "error", err)
			return
		}
		if msg.Type == "ping" {
			c.enqueue(PushMessage{Type: "pong"})
		}
	}
}

func (h *Hub) writeLoop(c *client, userID uuid.UUID) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := websocket.JSON.Send(c.conn, msg); err != nil {
				h.logger.Debug("notify: websocket write failed", "user_id", userID, "error", err)
				h.unregister(userID, c)
				c.close()
				return
			}
		}
	}
}

func (h *Hub) register(userID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[userID]
	if !ok {
		set = make(map[*client]struct{})
		h.conns[userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(userID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[userID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, userID)
	}
}

// Publish queues n for every connection of its recipient and returns how many
// accepted it. A connection whose queue is full is dropped.
func (h *Hub) Publish(n *Notification) int {
	if h == nil || n == nil {
		return 0
	}
	h.mu.RLock()
	targets := make([]*client, 0, len(h.conns[n.RecipientID]))
	for c := range h.conns[n.RecipientID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	msg := PushMessage{Type: "notification", Notification: n}
	for _, c := range targets {
		if c.enqueue(msg) {
			delivered++
			continue
		}
		h.logger.Warn("notify: dropping slow websocket", "user_id", n.RecipientID)
		h.unregister(n.RecipientID, c)
		c.close()
	}
	return delivered
}

// Connections reports how many sockets userID has open.
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

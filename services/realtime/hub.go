// Package realtime pushes chat messages to the clients connected to a room over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/chat"
	"github.com/trezcool/huddle/core/diag"
	"github.com/trezcool/huddle/core/user"
)

const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingInterval   = (pongTimeout * 9) / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 64
)

// event types
const (
	EventMessage = "message"
	EventError   = "error"
)

type (
	// Event is the envelope of every frame written to clients.
	Event struct {
		Type    string        `json:"type"`
		Message *chat.Message `json:"message,omitempty"`
		Error   string        `json:"error,omitempty"`
	}

	// inbound is a frame sent by a client.
	inbound struct {
		Body string `json:"body"`
	}

	// PostFunc saves a message sent by the client; the hub broadcasts it once saved.
	PostFunc func(ctx context.Context, body string) error

	client struct {
		id     string
		roomID string
		user   user.User
		conn   *websocket.Conn
		send   chan []byte
		hub    *Hub
	}

	Hub struct {
		mu       sync.RWMutex
		rooms    map[string]map[*client]bool
		upgrader websocket.Upgrader
		logger   core.Logger
	}
)

var (
	_ chat.Broadcaster   = (*Hub)(nil)
	_ diag.ClientCounter = (*Hub)(nil)
)

func NewHub(conf *core.Config, logger core.Logger) *Hub {
	origins := conf.Server.AllowedOrigins
	return &Hub{
		rooms: make(map[string]map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return originAllowed(r, origins) },
		},
		logger: logger,
	}
}

func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// Serve upgrades the request and subscribes the connection to the room until it closes.
// Frames read from the client are handed to post.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, roomID string, usr user.User, post PostFunc) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return errors.Wrap(err, "websocket upgrade")
	}
	c := &client{
		id:     uuid.NewString(),
		roomID: roomID,
		user:   usr,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    h,
	}
	h.register(c)
	h.logger.Debug("websocket connected", usr, map[string]interface{}{"roomId": roomID, "connectionId": c.id})

	go c.writePump()
	go c.readPump(post)
	return nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[c.roomID] == nil {
		h.rooms[c.roomID] = make(map[*client]bool)
	}
	h.rooms[c.roomID][c] = true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.rooms[c.roomID]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.rooms, c.roomID)
	}
}

// Broadcast sends m to every client of the room. Clients too slow to keep up are disconnected.
func (h *Hub) Broadcast(roomID string, m chat.Message) {
	data, err := json.Marshal(Event{Type: EventMessage, Message: &m})
	if err != nil {
		h.logger.Error("encoding chat event", err)
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.rooms[roomID] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("websocket send buffer full, disconnecting", map[string]interface{}{"connectionId": c.id, "roomId": roomID})
		h.unregister(c)
	}
}

// Clients returns the number of live connections.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var n int
	for _, clients := range h.rooms {
		n += len(clients)
	}
	return n
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID, clients := range h.rooms {
		for c := range clients {
			close(c.send)
		}
		delete(h.rooms, roomID)
	}
}

func (c *client) reply(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.rooms[c.roomID][c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *client) readPump(post PostFunc) {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		var in inbound
		if err := c.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read", err, c.user, map[string]interface{}{"connectionId": c.id})
			}
			return
		}
		if post == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := post(ctx, in.Body)
		cancel()
		if err != nil {
			c.reply(Event{Type: EventError, Error: errorText(err)})
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func errorText(err error) string {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	if core.IsNotFound(err) {
		return err.Error()
	}
	return "could not post the message"
}

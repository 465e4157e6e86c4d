// Package realtime pushes "room changed" events to browsers and CLI
// watchers over WebSocket.
package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 8
)

// Event is the JSON frame sent to subscribers.
type Event struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks WebSocket subscribers per room. AnnounceRoomChanged never
// blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu     sync.Mutex
	rooms  map[string]map[*client]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: slog.Default(),
		rooms:  make(map[string]map[*client]struct{}),
	}
}

// AnnounceRoomChanged notifies every subscriber of the room.
func (h *Hub) AnnounceRoomChanged(roomCode string) {
	data, _ := json.Marshal(Event{Type: "room_changed", Room: roomCode})

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[roomCode] {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("dropping room event for slow subscriber", "room", roomCode)
		}
	}
}

// Subscribers returns the number of open connections for the room.
func (h *Hub) Subscribers(roomCode string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomCode])
}

// Connections returns the number of open connections across all rooms.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, clients := range h.rooms {
		n += len(clients)
	}
	return n
}

// ServeRoom upgrades the request and streams the room's events until the
// peer disconnects. The caller has already authorized the subscription.
func (h *Hub) ServeRoom(w http.ResponseWriter, r *http.Request, roomCode string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(roomCode, c) {
		conn.Close()
		return
	}

	go h.writeLoop(c)
	h.readLoop(roomCode, c)
}

func (h *Hub) register(roomCode string, c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.rooms[roomCode] == nil {
		h.rooms[roomCode] = make(map[*client]struct{})
	}
	h.rooms[roomCode][c] = struct{}{}
	hello, _ := json.Marshal(Event{Type: "connected", Room: roomCode})
	c.send <- hello
	return true
}

func (h *Hub) unregister(roomCode string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.rooms[roomCode]
	if _, ok := subs[c]; !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.rooms, roomCode)
	}
	close(c.send)
}

// readLoop discards inbound frames and returns when the peer goes away.
func (h *Hub) readLoop(roomCode string, c *client) {
	defer func() {
		h.unregister(roomCode, c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed", "room", roomCode, "error", err)
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for code, subs := range h.rooms {
		for c := range subs {
			close(c.send)
		}
		delete(h.rooms, code)
	}
}

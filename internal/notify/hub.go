// Package notify broadcasts post-mutation change events to connected
// websocket subscribers. Delivery is fire-and-forget: no persistence, no
// replay, no per-subscriber backpressure beyond dropping slow clients.
package notify

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Publisher is the capability the gateway holds for emitting change
// events. It is injected at construction so tests can substitute a
// recording double and multiple independent instances can coexist.
type Publisher interface {
	Publish(event string, payload any)
}

// Event is the wire envelope pushed to subscribers.
type Event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from the SPA origin; auth happens via the
	// token they present after upgrade, not the Origin header.
	CheckOrigin: func(*http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to every connected client.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		logger:     logger.With("component", "notify"),
	}
}

// Run owns the client set. Start it once, in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Slow consumer, drop it.
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Publish encodes and broadcasts an event. It never blocks the caller;
// if the broadcast buffer is full the event is dropped and logged.
func (h *Hub) Publish(event string, payload any) {
	raw, err := json.Marshal(Event{Event: event, Payload: payload})
	if err != nil {
		h.logger.Error("encode event", "event", event, "error", err)
		return
	}
	select {
	case h.broadcast <- raw:
	default:
		h.logger.Warn("broadcast buffer full, dropping event", "event", event)
	}
}

// ServeWS upgrades an HTTP request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	h.register <- c
	go c.writeLoop()
	go c.readLoop(h)
}

func (c *client) writeLoop() {
	defer c.conn.Close()
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readLoop discards inbound frames; subscribers are listen-only. Its job
// is detecting disconnects so the hub can drop the client.
func (c *client) readLoop(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

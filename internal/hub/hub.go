// Package hub is the websocket push channel between the overlay service and
// its display clients (graphics and the operator dashboard).
package hub

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// EventHello is sent once on connect and carries the client's id.
const EventHello = "hello"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 64 << 10
	sendQueue  = 32
)

// ErrUnknownClient is returned by Send for an id that is not connected.
var ErrUnknownClient = errors.New("unknown client")

// Message is the wire envelope in both directions.
type Message struct {
	Event    string          `json:"event"`
	ClientID string          `json:"clientId,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// HandlerFunc handles one inbound event. from is the connection the message
// arrived on; msg.ClientID is whatever id the sender chose to attach.
type HandlerFunc func(from *Client, msg Message)

// Options tunes a Hub.
type Options struct {
	// Inbound rate per client; zero means unlimited.
	RatePerSecond float64
	Burst         int
	Logger        *log.Logger
}

// Hub fans events out to connected clients and dispatches inbound events.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	handlers map[string]HandlerFunc

	upgrader websocket.Upgrader
	opts     Options
	logger   *log.Logger
}

// New creates an empty hub.
func New(opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	return &Hub{
		clients:  make(map[string]*Client),
		handlers: make(map[string]HandlerFunc),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Graphics are loaded from OBS browser sources with arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		opts:   opts,
		logger: logger.WithPrefix("hub"),
	}
}

// On registers the handler for an inbound event name.
func (h *Hub) On(event string, fn HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[event] = fn
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends event to every client except exclude.
func (h *Hub) Broadcast(event string, payload any, exclude string) {
	frame, err := encode(event, payload)
	if err != nil {
		h.logger.Error("encode broadcast", "event", event, "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		if id == exclude {
			continue
		}
		c.enqueue(frame)
	}
}

// Send delivers event to a single client.
func (h *Hub) Send(clientID, event string, payload any) error {
	frame, err := encode(event, payload)
	if err != nil {
		return err
	}
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownClient
	}
	c.enqueue(frame)
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

// ServeHTTP upgrades the request to a websocket and runs the client until it
// disconnects. A client may pick its own id with ?id=.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		id = uuid.NewString()
	}
	c := &Client{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendQueue),
		done: make(chan struct{}),
	}
	if h.opts.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(h.opts.RatePerSecond), h.opts.Burst)
	}

	h.mu.Lock()
	if old, ok := h.clients[id]; ok {
		old.close()
	}
	h.clients[id] = c
	h.mu.Unlock()
	h.logger.Info("client connected", "id", id, "remote", r.RemoteAddr)

	hello, _ := encode(EventHello, map[string]string{"clientId": id})
	c.enqueue(hello)

	go c.writePump(h.logger)
	h.readPump(c)

	h.mu.Lock()
	if h.clients[id] == c {
		delete(h.clients, id)
	}
	h.mu.Unlock()
	c.close()
	h.logger.Info("client disconnected", "id", id)
}

func (h *Hub) readPump(c *Client) {
	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("read failed", "id", c.id, "err", err)
			}
			return
		}
		if c.limiter != nil && !c.limiter.Allow() {
			h.logger.Warn("dropping message over rate limit", "id", c.id, "event", msg.Event)
			continue
		}

		h.mu.RLock()
		fn, ok := h.handlers[msg.Event]
		h.mu.RUnlock()
		if !ok {
			h.logger.Debug("no handler for event", "id", c.id, "event", msg.Event)
			continue
		}
		fn(c, msg)
	}
}

func encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Event: event, Data: data})
}

// Client is one connected websocket.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	closeOnce sync.Once
	done      chan struct{}
}

// ID returns the client's id.
func (c *Client) ID() string { return c.id }

// enqueue drops the frame when the client is not keeping up.
func (c *Client) enqueue(frame []byte) {
	select {
	case <-c.done:
	case c.send <- frame:
	default:
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) writePump(logger *log.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Warn("write failed", "id", c.id, "err", err)
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

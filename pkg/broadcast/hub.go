package broadcast

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrHubClosed is returned when a closed Hub is asked to accept clients.
var ErrHubClosed = errors.New("broadcast: hub closed")

const (
	defaultQueueSize = 64
	writeWait        = 10 * time.Second
)

// HubConfig configures a Hub.
type HubConfig struct {
	// QueueSize is the number of encoded events buffered per client. Events
	// published while a client's queue is full are dropped for that client.
	QueueSize int
}

// Hub is a WebSocket fan-out server. It implements Sink and http.Handler:
// every event passed to Publish is sent to all connected subscribers, each
// in the codec it asked for with the "codec" query parameter.
type Hub struct {
	queueSize int
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	hub     *Hub
	conn    *websocket.Conn
	codec   Codec
	send    chan []byte
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewHub returns an empty hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Hub{
		queueSize: cfg.QueueSize,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request to a WebSocket subscription.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	codec, err := CodecByName(r.URL.Query().Get("codec"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("broadcast: upgrade failed", "error", err)
		return
	}
	c := &client{
		hub:   h,
		conn:  conn,
		codec: codec,
		send:  make(chan []byte, h.queueSize),
		done:  make(chan struct{}),
	}
	if err := h.add(c); err != nil {
		conn.Close()
		return
	}
	slog.Info("broadcast: subscriber connected", "remote", r.RemoteAddr, "codec", codec.Name())

	go c.writeLoop()
	c.readLoop()
}

func (h *Hub) add(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.clients[c] = struct{}{}
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok && c.conn != nil {
		slog.Info("broadcast: subscriber disconnected", "remote", c.conn.RemoteAddr(), "dropped", c.dropped.Load())
	}
	c.close()
}

// Publish encodes ev once per codec in use and queues it for every client.
func (h *Hub) Publish(ev *Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	encoded := make(map[Codec][]byte, 2)
	for c := range h.clients {
		data, ok := encoded[c.codec]
		if !ok {
			var err error
			data, err = c.codec.Marshal(ev)
			if err != nil {
				slog.Error("broadcast: encode event", "codec", c.codec.Name(), "kind", ev.Kind, "error", err)
				encoded[c.codec] = nil
				continue
			}
			encoded[c.codec] = data
		}
		if data == nil {
			continue
		}
		select {
		case c.send <- data:
		default:
			if n := c.dropped.Add(1); n == 1 || n%100 == 0 {
				slog.Warn("broadcast: subscriber queue full, dropping events", "dropped", n)
			}
		}
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	clear(h.clients)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	return nil
}

// close stops the writer, which sends a close frame and releases the
// connection.
func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readLoop discards inbound frames and returns when the peer goes away.
func (c *client) readLoop() {
	defer c.hub.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writeLoop() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("broadcast: writer panic", "panic", r)
		}
		c.hub.remove(c)
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.codec.MessageType(), data); err != nil {
				slog.Debug("broadcast: write failed", "error", err)
				return
			}
		}
	}
}

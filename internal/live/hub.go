package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rwa-platform/channel-service/internal/events"
)

// ErrClosed is returned by ServeHTTP after Close.
var ErrClosed = errors.New("live: hub closed")

// Config holds hub settings.
type Config struct {
	BufferSize   int           // Frames queued per subscriber (default: 64)
	WriteTimeout time.Duration // Deadline for each write (default: 5s)
	PingInterval time.Duration // Keepalive ping period (default: 30s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:   64,
		WriteTimeout: 5 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// Stats is a snapshot of hub counters.
type Stats struct {
	Subscribers int   `json:"subscribers"`
	Sent        int64 `json:"sent"`
	Dropped     int64 `json:"dropped"`
}

// Hub fans frames out to connected subscribers.
type Hub struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	sent    atomic.Int64
	dropped atomic.Int64
}

// NewHub creates a Hub.
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	return &Hub{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and subscribes the connection until either
// side closes it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.cfg.BufferSize),
		done: make(chan struct{}),
	}
	if !h.add(c) {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ErrClosed.Error()),
			time.Now().Add(time.Second),
		)
		conn.Close()
		return
	}

	h.logger.Debug("live subscriber connected", "remote", r.RemoteAddr)
	go c.writeLoop()
	c.readLoop()
}

// Broadcast sends v, encoded as JSON, to every subscriber.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to encode live frame", "error", err)
		return
	}
	h.broadcast(data)
}

// Sink returns an events.Sink that forwards messages on the given topics to
// subscribers. Other topics are ignored.
func (h *Hub) Sink(topics ...string) events.Sink {
	return events.SinkFunc(func(_ context.Context, msg events.Message) error {
		if slices.Contains(topics, msg.Topic) {
			h.broadcast(msg.Value)
		}
		return nil
	})
}

// Stats returns current metrics.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	return Stats{
		Subscribers: n,
		Sent:        h.sent.Load(),
		Dropped:     h.dropped.Load(),
	}
}

// Close disconnects every subscriber and rejects new ones.
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
	h.mu.Unlock()

	for _, c := range clients {
		c.close(websocket.CloseGoingAway)
	}
	h.logger.Info("live hub closed", "subscribers", len(clients))
	return nil
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
			h.sent.Add(1)
		default:
			h.dropped.Add(1)
			h.logger.Warn("live subscriber buffer full, dropping frame")
		}
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// client is one subscriber connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close(code int) {
	c.closeOnce.Do(func() {
		c.hub.remove(c)
		close(c.done)
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""),
			time.Now().Add(time.Second),
		)
		c.conn.Close()
	})
}

// readLoop discards inbound frames and returns when the peer goes away.
func (c *client) readLoop() {
	defer c.close(websocket.CloseNormalClosure)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop delivers queued frames and keeps the connection alive.
func (c *client) writeLoop() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.hub.logger.Debug("live write failed", "error", err)
				c.close(websocket.CloseInternalServerErr)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.hub.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.hub.logger.Debug("failed to send ping", "error", err)
				c.close(websocket.CloseInternalServerErr)
				return
			}
		}
	}
}

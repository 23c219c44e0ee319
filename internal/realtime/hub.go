package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"cipherlink/internal/domain"
	"cipherlink/internal/metrics"
)

const (
	defaultQueue = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// Config tunes a Hub.
type Config struct {
	// Queue is the per-connection outbound buffer, in events.
	Queue   int
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// Hub fans events out to websocket connections.
type Hub struct {
	upgrader websocket.Upgrader
	queue    int
	log      logrus.FieldLogger
	metrics  *metrics.Metrics

	mu     sync.RWMutex
	conns  map[domain.UserID]map[*conn]struct{}
	closed bool
}

type conn struct {
	user domain.UserID
	ws   *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// enqueue hands msg to the writer without blocking. It reports false when
// the queue is full. Messages for a closed connection are discarded.
func (c *conn) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// NewHub returns an empty Hub.
func NewHub(cfg Config) *Hub {
	if cfg.Queue <= 0 {
		cfg.Queue = defaultQueue
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Callers authenticate with a bearer token, not cookies.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		queue:   cfg.Queue,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		conns:   make(map[domain.UserID]map[*conn]struct{}),
	}
}

// Serve upgrades the request and streams user's events until the client
// goes away. It blocks for the life of the connection.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, user domain.UserID) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).WithField("user", user).Warn("websocket upgrade failed")
		return
	}
	c := &conn{user: user, ws: ws, send: make(chan []byte, h.queue)}
	if !h.add(c) {
		_ = ws.Close()
		return
	}
	h.log.WithField("user", user).Info("realtime client connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.write(c)
	}()
	h.read(c)
	h.remove(c)
	<-done
	h.log.WithField("user", user).Info("realtime client disconnected")
}

// Publish implements domain.Publisher.
func (h *Hub) Publish(_ context.Context, to domain.UserID, ev domain.Event) {
	msg, err := domain.EncodeEvent(ev)
	if err != nil {
		h.log.WithError(err).WithField("event", ev.Name()).Error("encode event")
		return
	}
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns[to]))
	for c := range h.conns[to] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.deliver(targets, msg, ev)
}

// Broadcast implements domain.Publisher.
func (h *Hub) Broadcast(_ context.Context, ev domain.Event) {
	msg, err := domain.EncodeEvent(ev)
	if err != nil {
		h.log.WithError(err).WithField("event", ev.Name()).Error("encode event")
		return
	}
	h.mu.RLock()
	var targets []*conn
	for _, set := range h.conns {
		for c := range set {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	h.deliver(targets, msg, ev)
}

// Connected returns how many connections user holds.
func (h *Hub) Connected(user domain.UserID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[user])
}

// Close disconnects everyone and refuses new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*conn
	for _, set := range h.conns {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()
	for _, c := range all {
		_ = c.ws.Close()
	}
}

func (h *Hub) deliver(targets []*conn, msg []byte, ev domain.Event) {
	for _, c := range targets {
		if !c.enqueue(msg) {
			h.log.WithFields(logrus.Fields{"user": c.user, "event": ev.Name()}).Warn("realtime client too slow, dropping")
			h.remove(c)
			_ = c.ws.Close()
		}
	}
}

func (h *Hub) add(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.conns[c.user]
	if !ok {
		set = make(map[*conn]struct{})
		h.conns[c.user] = set
	}
	set[c] = struct{}{}
	h.metrics.RealtimeConnections(1)
	return true
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	set := h.conns[c.user]
	_, present := set[c]
	if present {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, c.user)
		}
	}
	h.mu.Unlock()
	if present {
		h.metrics.RealtimeConnections(-1)
	}
	c.close()
}

// read consumes client frames so control messages are processed. Clients
// have nothing to say on this channel.
func (h *Hub) read(c *conn) {
	c.ws.SetReadLimit(512)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) write(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Compile-time assertion that Hub implements domain.Publisher.
var _ domain.Publisher = (*Hub)(nil)

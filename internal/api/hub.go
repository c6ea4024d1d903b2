package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rileyhilliard/dozer/internal/logger"
	"github.com/rileyhilliard/dozer/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second

	// sendBuffer is how many events a listener may fall behind before it is
	// dropped.
	sendBuffer = 16
)

// Event is one message on the event stream.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type listener struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (l *listener) close() {
	l.closeOnce.Do(func() { close(l.send) })
}

// Hub fans events out to websocket listeners. Publish never blocks: a
// listener whose buffer is full is disconnected.
type Hub struct {
	mu        sync.Mutex
	listeners map[*listener]struct{}
	greeting  func() Event
	closed    bool

	upgrader websocket.Upgrader
	log      logger.Logger
	metrics  *observability.Metrics
}

// NewHub creates an empty hub.
func NewHub(log logger.Logger, metrics *observability.Metrics) *Hub {
	if log == nil {
		log = logger.Noop()
	}
	return &Hub{
		listeners: make(map[*listener]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:     log,
		metrics: metrics,
	}
}

// SetGreeting sets the event each new listener receives first.
func (h *Hub) SetGreeting(fn func() Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.greeting = fn
}

// Publish sends ev to every listener.
func (h *Hub) Publish(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("Failed to encode %s event: %v", ev.Type, err)
		return
	}

	var dropped []string
	h.mu.Lock()
	for l := range h.listeners {
		select {
		case l.send <- payload:
		default:
			dropped = append(dropped, l.id)
			h.removeLocked(l)
		}
	}
	h.mu.Unlock()

	// Logged after unlocking: the logger may itself publish.
	for _, id := range dropped {
		h.log.Warn("Event listener %s is too slow, disconnecting", id)
	}
}

// Listeners returns the number of connected listeners.
func (h *Hub) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// Close disconnects every listener and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for l := range h.listeners {
		h.removeLocked(l)
	}
}

func (h *Hub) add(l *listener) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.greeting != nil {
		if payload, err := json.Marshal(h.greeting()); err == nil {
			l.send <- payload
		}
	}
	h.listeners[l] = struct{}{}
	h.gauge()
	return true
}

func (h *Hub) remove(l *listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(l)
}

func (h *Hub) removeLocked(l *listener) {
	if _, ok := h.listeners[l]; !ok {
		return
	}
	delete(h.listeners, l)
	l.close()
	h.gauge()
}

func (h *Hub) gauge() {
	if h.metrics != nil {
		h.metrics.EventListeners.Set(float64(len(h.listeners)))
	}
}

// Handle upgrades the request and streams events until either side goes away.
func (h *Hub) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("WebSocket upgrade error: %v", err)
		return
	}

	l := &listener{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.add(l) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.log.Info("Event listener connected: %s", l.id)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(l)
	}()

	h.readLoop(l)
	h.remove(l)
	<-done
	h.log.Info("Event listener disconnected: %s", l.id)
}

// readLoop discards client messages; it exists to process control frames
// and notice when the client leaves.
func (h *Hub) readLoop(l *listener) {
	l.conn.SetReadLimit(1024)
	_ = l.conn.SetReadDeadline(time.Now().Add(pongWait))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := l.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.log.Debug("WebSocket error for %s: %v", l.id, err)
			}
			return
		}
	}
}

func (h *Hub) writeLoop(l *listener) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		l.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-l.send:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = l.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := l.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(l)
				return
			}
		case <-ticker.C:
			if err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				h.remove(l)
				return
			}
		}
	}
}

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leavend/genstudio/internal/infra"
	"github.com/leavend/genstudio/internal/middleware"
	"github.com/leavend/genstudio/internal/relay"
)

const (
	sendBuffer = 16
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// frame is what clients receive on the socket.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type client struct {
	userID string
	send   chan []byte
}

// Hub tracks websocket connections per user and delivers relay events to
// them. A slow client drops events rather than blocking delivery.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	logger   infra.Logger
	upgrader websocket.Upgrader
}

// NewHub accepts upgrades from the same host, from clients that send no
// Origin, and from the browser origins the HTTP API allows.
func NewHub(logger infra.Logger, allowedOrigins []string) *Hub {
	origins := middleware.NewOrigins(allowedOrigins)
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		logger:  infra.Component(logger, "hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return checkOrigin(r, origins)
			},
		},
	}
}

func checkOrigin(r *http.Request, origins middleware.Origins) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if origins.Allowed(strings.TrimRight(origin, "/")) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// Run forwards events from sub until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, sub relay.Subscriber) error {
	return sub.Subscribe(ctx, h.Deliver)
}

// Deliver sends evt to every connection of its user.
func (h *Hub) Deliver(evt relay.Event) {
	body, err := json.Marshal(frame{Type: evt.Type, Data: evt.Payload})
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[evt.UserID] {
		select {
		case c.send <- body:
		default:
			h.logger.Debug().Str("user_id", evt.UserID).Str("event", evt.Type).Msg("client buffer full, event dropped")
		}
	}
}

// Connected reports whether userID has at least one open connection.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// Connections reports the number of open connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug().Str("user_id", c.userID).Msg("websocket client connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if set, ok := h.clients[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
	h.logger.Debug().Str("user_id", c.userID).Msg("websocket client disconnected")
}

// ServeWS upgrades the request and blocks until the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{userID: userID, send: make(chan []byte, sendBuffer)}
	h.register(c)
	defer h.unregister(c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		readPump(conn)
	}()
	writePump(conn, c.send, done)
	_ = conn.Close()
}

// readPump discards client frames and keeps the read deadline fresh.
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case msg := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

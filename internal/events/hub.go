// Package events streams per-session progress to browsers over WebSocket.
package events

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/vizai/internal/logger"
	"github.com/shehryarbajwa/vizai/pkg/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	conn *websocket.Conn
	send chan models.ProgressEvent
}

// Hub fans progress events out to every listener of a session.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	now     func() time.Time
	log     zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		now:     time.Now,
		log:     logger.With("events"),
	}
}

// Publish sends a stage update to the session's listeners. Slow listeners drop events.
func (h *Hub) Publish(sessionID, stage, message string) {
	ev := models.ProgressEvent{SessionID: sessionID, Stage: stage, Message: message, At: h.now()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[sessionID] {
		select {
		case c.send <- ev:
		default:
			h.log.Warn().Str("session", sessionID).Str("stage", stage).Msg("listener buffer full, event dropped")
		}
	}
}

// Listeners returns how many connections follow the session.
func (h *Hub) Listeners(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// Close disconnects every listener of the session.
func (h *Hub) Close(sessionID string) {
	h.mu.Lock()
	clients := h.clients[sessionID]
	delete(h.clients, sessionID)
	h.mu.Unlock()

	for c := range clients {
		close(c.send)
	}
}

// ServeWS upgrades the request and streams the session's events until either side closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	c := &client{conn: conn, send: make(chan models.ProgressEvent, sendBuffer)}
	h.register(sessionID, c)
	h.log.Debug().Str("session", sessionID).Msg("listener connected")

	go h.writePump(c)
	h.readPump(sessionID, c)
}

func (h *Hub) register(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[*client]struct{})
	}
	h.clients[sessionID][c] = struct{}{}
}

func (h *Hub) unregister(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[sessionID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clients, sessionID)
		}
	}
}

// readPump only watches for the peer going away; clients send nothing.
func (h *Hub) readPump(sessionID string, c *client) {
	defer func() {
		h.unregister(sessionID, c)
		c.conn.Close()
		h.log.Debug().Str("session", sessionID).Msg("listener disconnected")
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Str("session", sessionID).Msg("websocket error")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
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

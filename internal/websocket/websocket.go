package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/scottschroeder/storyestimate/internal/logger"
	"github.com/scottschroeder/storyestimate/internal/models"
)

// Message types pushed to subscribers
const (
	TypeSessionUpdate  = "session_update"
	TypeSessionDeleted = "session_deleted"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 32
)

// SessionLookup loads the current view of a session for new subscribers.
type SessionLookup interface {
	Lookup(ctx context.Context, sessionID string) (*models.PublicSession, error)
}

type sessionMessage struct {
	sessionID string
	message   models.WSMessage
	closing   bool
}

// Hub keeps the subscribers of every session and fans out updates to them.
type Hub struct {
	log        logger.Logger
	sessions   SessionLookup
	upgrader   websocket.Upgrader
	clients    map[string]map[*Client]bool
	broadcast  chan sessionMessage
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	stopOnce   sync.Once
	mutex      sync.RWMutex
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	id        string
	sessionID string
	hub       *Hub
	conn      *websocket.Conn
	send      chan models.WSMessage
}

// New creates a new Hub. When allowedOrigins is empty every origin may connect.
func New(log logger.Logger, sessions SessionLookup, allowedOrigins []string) *Hub {
	h := &Hub{
		log:        log.With("component", "hub"),
		sessions:   sessions,
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan sessionMessage, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

// Start begins the hub's main loop in a goroutine
func (h *Hub) Start() {
	go h.run()
}

// Stop ends the main loop and disconnects every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			h.mutex.Lock()
			for sessionID, subs := range h.clients {
				for client := range subs {
					close(client.send)
				}
				delete(h.clients, sessionID)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			subs, ok := h.clients[client.sessionID]
			if !ok {
				subs = make(map[*Client]bool)
				h.clients[client.sessionID] = subs
			}
			subs[client] = true
			h.mutex.Unlock()
			h.log.Debug("client subscribed", "client_id", client.id, "session_id", client.sessionID)

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients[msg.sessionID] {
				select {
				case client.send <- msg.message:
				default:
					// Slow consumer, drop it.
					delete(h.clients[msg.sessionID], client)
					close(client.send)
				}
			}
			if msg.closing {
				for client := range h.clients[msg.sessionID] {
					close(client.send)
				}
				delete(h.clients, msg.sessionID)
			}
			h.mutex.Unlock()
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	subs := h.clients[client.sessionID]
	if _, ok := subs[client]; !ok {
		return
	}
	delete(subs, client)
	close(client.send)
	if len(subs) == 0 {
		delete(h.clients, client.sessionID)
	}
	h.log.Debug("client unsubscribed", "client_id", client.id, "session_id", client.sessionID)
}

// ClientCount returns the number of subscribers of a session.
func (h *Hub) ClientCount(sessionID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients[sessionID])
}

// BroadcastSessionUpdate implements services.Broadcaster. A nil session tells
// subscribers the session is gone and disconnects them.
func (h *Hub) BroadcastSessionUpdate(sessionID string, session *models.PublicSession) {
	msg := sessionMessage{sessionID: sessionID}
	if session == nil {
		msg.closing = true
		msg.message = models.WSMessage{
			Type:    TypeSessionDeleted,
			Payload: map[string]string{"session_id": sessionID},
		}
	} else {
		msg.message = models.WSMessage{Type: TypeSessionUpdate, Payload: session}
	}

	select {
	case h.broadcast <- msg:
	case <-h.quit:
	}
}

// ServeSession upgrades the request and subscribes it to sessionID. The
// current state of the session is sent first.
func (h *Hub) ServeSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		id:        uuid.NewString(),
		sessionID: sessionID,
		hub:       h,
		conn:      conn,
		send:      make(chan models.WSMessage, sendBuffer),
	}

	if public, err := h.sessions.Lookup(r.Context(), sessionID); err != nil {
		h.log.Warn("failed to load session for new subscriber", "session_id", sessionID, "error", err)
	} else if public != nil {
		client.send <- models.WSMessage{Type: TypeSessionUpdate, Payload: public}
	}

	select {
	case h.register <- client:
	case <-h.quit:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump drains the connection so control frames are processed. Clients
// only listen.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket error", "client_id", c.id, "error", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.hub.log.Error("failed to encode message", "type", message.Type, "error", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// Package ws pushes SLA alerts to connected browsers.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	authpkg "github.com/mark3748/helpdesk-sla/cmd/api/auth"
	"github.com/mark3748/helpdesk-sla/internal/metrics"
	"github.com/mark3748/helpdesk-sla/internal/notify"
)

const writeWait = 10 * time.Second

// Hub maintains the set of active clients and relays events from the Redis
// events channel to them.
type Hub struct {
	rdb        *redis.Client
	register   chan *Client
	unregister chan *Client
	clients    map[*Client]bool
	broadcast  chan notify.Event
	done       chan struct{}
}

// NewHub constructs a Hub. rdb may be nil to disable cross-process broadcasting.
func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		rdb:        rdb,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan notify.Event, 16),
		done:       make(chan struct{}),
	}
}

// Run starts the hub loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	var ch <-chan *redis.Message
	if h.rdb != nil {
		sub := h.rdb.Subscribe(ctx, notify.EventsChannel)
		ch = sub.Channel()
		defer sub.Close()
	}
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case msg, ok := <-ch:
			if !ok {
				ch = nil
				continue
			}
			var ev notify.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Msg("ws: bad event payload")
				continue
			}
			h.deliver(ev)
		case c := <-h.register:
			h.clients[c] = true
			metrics.WSClients.Inc()
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
		case ev := <-h.broadcast:
			h.deliver(ev)
		}
	}
}

func (h *Hub) deliver(ev notify.Event) {
	for c := range h.clients {
		if !c.wants(ev) {
			continue
		}
		select {
		case c.send <- ev:
		default:
			// slow consumer
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	metrics.WSClients.Dec()
}

// Broadcast enqueues an event for local clients. It drops the event when
// the hub is stopped or backed up.
func (h *Hub) Broadcast(ev notify.Event) {
	select {
	case h.broadcast <- ev:
	case <-h.done:
	default:
		log.Warn().Str("type", ev.Type).Msg("ws: broadcast queue full")
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Client represents a WebSocket connection. Agents only receive events for
// tickets assigned to them; supervisors receive everything.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan notify.Event
	userID string
	all    bool
}

// NewClient constructs a client.
func NewClient(h *Hub, conn *websocket.Conn, userID string, all bool) *Client {
	return &Client{hub: h, conn: conn, send: make(chan notify.Event, 8), userID: userID, all: all}
}

func (c *Client) wants(ev notify.Event) bool {
	return c.all || (ev.AssigneeID != "" && ev.AssigneeID == c.userID)
}

// ReadPump reads messages from the WebSocket to detect disconnects.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// WritePump writes events to the WebSocket connection.
func (c *Client) WritePump() {
	defer func() { _ = c.conn.Close() }()
	for ev := range c.send {
		b, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Upgrader with permissive CORS; the route is behind the auth middleware.
var Upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Handler upgrades an authenticated request and attaches it to hub.
func Handler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := authpkg.Current(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		conn, err := Upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Ctx(c.Request.Context()).Warn().Err(err).Msg("ws upgrade")
			return
		}
		client := NewClient(hub, conn, u.ID, u.HasRole(authpkg.RoleSupervisor, authpkg.RoleAdmin))
		hub.Register(client)
		go client.WritePump()
		client.ReadPump()
	}
}

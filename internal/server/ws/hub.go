// Package ws implements the WebSocket fan-out hub. Each subscriber gets a
// stable identity, a channel-filtered event stream, and an application-level
// heartbeat; everything on the wire is a JSON text frame.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lumenlabs/stellarb/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// client represents a single WebSocket subscriber.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]bool
	// awaitingPong is set when a heartbeat probe goes out and cleared by any
	// inbound frame. A subscriber still awaiting at the next probe is dead.
	awaitingPong bool
}

// inboundMsg is the envelope clients send. Only Type is required; Channel
// applies to subscribe and unsubscribe.
type inboundMsg struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}

// Config holds the hub parameters.
type Config struct {
	// MaxSubscribers caps concurrent connections. Connections beyond the cap
	// are accepted and immediately closed with a try-again-later code.
	MaxSubscribers int
	// HeartbeatInterval is the cadence of server ping events. A subscriber
	// that leaves a ping unanswered by the time the next one fires is
	// presumed dead and evicted.
	HeartbeatInterval time.Duration
}

// Hub manages connected WebSocket subscribers and fans events out to them.
type Hub struct {
	cfg    Config
	logger *slog.Logger

	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan envelope
	mu         sync.RWMutex
}

// envelope carries an outbound message with its source channel so the hub can
// route it only to subscribers of that channel.
type envelope struct {
	channel string
	data    []byte
}

// NewHub creates a hub with the given limits.
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	if cfg.MaxSubscribers <= 0 {
		cfg.MaxSubscribers = 100
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	return &Hub{
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "ws_hub")),
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan envelope, 256),
	}
}

// Broadcast marshals message and queues it for delivery to every subscriber
// of the given channel. An empty channel delivers to all subscribers. Slow
// subscribers have the message dropped rather than stalling the hub.
func (h *Hub) Broadcast(message any, channel string) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("broadcast marshal failed", slog.String("error", err.Error()))
		return
	}
	h.broadcast <- envelope{channel: channel, data: data}
}

// Run drives the hub's event loop: registration, fan-out, and the heartbeat
// sweep. It blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("subscriber connected",
				slog.String("subscriber_id", c.id),
				slog.Int("total", total),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("subscriber disconnected",
				slog.String("subscriber_id", c.id),
				slog.Int("total", total),
			)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if msg.channel != "" && !c.isSubscribed(msg.channel) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					// Send buffer full; drop rather than stall the loop.
					h.logger.Warn("dropping message for slow subscriber",
						slog.String("subscriber_id", c.id),
					)
				}
			}
			h.mu.RUnlock()

		case <-ticker.C:
			h.sweepAndPing()
		}
	}
}

// sweepAndPing evicts subscribers whose previous probe is still unanswered
// and sends a ping event to the rest. A subscriber that goes silent right
// after connecting is therefore gone within two heartbeat intervals.
func (h *Hub) sweepAndPing() {
	ping, _ := json.Marshal(map[string]any{
		"type":      "ping",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})

	h.mu.RLock()
	var stale []*client
	for c := range h.clients {
		if c.markProbed() {
			stale = append(stale, c)
			continue
		}
		select {
		case c.send <- ping:
		default:
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.logger.Warn("evicting unresponsive subscriber",
			slog.String("subscriber_id", c.id),
		)
		// Closing the connection makes the read pump exit and unregister.
		_ = c.conn.Close()
	}
}

// SubscriberCount returns the number of currently connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades an HTTP request to a WebSocket connection, assigns the
// subscriber its identity, and starts its pumps. Connections above the
// capacity limit are closed immediately with a try-again-later close code.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	if h.SubscriberCount() >= h.cfg.MaxSubscribers {
		h.logger.Warn("subscriber capacity exceeded",
			slog.Int("max", h.cfg.MaxSubscribers),
		)
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, domain.ErrCapacityExceeded.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	c := &client{
		id:   uuid.Must(uuid.NewRandom()).String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}

	h.register <- c
	c.sendWelcome()

	go c.writePump()
	go c.readPump()
}

// touch records inbound activity for the liveness sweep.
func (c *client) touch() {
	c.mu.Lock()
	c.awaitingPong = false
	c.mu.Unlock()
}

// markProbed notes that a probe is going out and reports whether the previous
// one was never answered.
func (c *client) markProbed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.awaitingPong {
		return true
	}
	c.awaitingPong = true
	return false
}

// readPump reads client messages: pong responses, subscription changes, and
// anything else, which earns an error event back to the sender only.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close",
					slog.String("subscriber_id", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		c.touch()

		var msg inboundMsg
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError("invalid message: not a JSON object")
			continue
		}

		switch msg.Type {
		case "pong":
			// Liveness already recorded by touch.
		case "subscribe":
			c.mu.Lock()
			c.subs[msg.Channel] = true
			c.mu.Unlock()
			c.sendEvent(map[string]any{"type": "subscribed", "channel": msg.Channel})
		case "unsubscribe":
			c.mu.Lock()
			if msg.Channel == "" {
				// No channel named: drop every subscription.
				c.subs = make(map[string]bool)
			} else {
				delete(c.subs, msg.Channel)
			}
			c.mu.Unlock()
			c.sendEvent(map[string]any{"type": "unsubscribed", "channel": msg.Channel})
		default:
			c.sendError("unknown message type: " + msg.Type)
		}
	}
}

// sendWelcome pushes the connection acknowledgement with the subscriber's
// assigned identity.
func (c *client) sendWelcome() {
	c.sendEvent(map[string]any{
		"type":          "connected",
		"subscriber_id": c.id,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

// sendError delivers an error event to this subscriber only. Protocol
// mistakes never terminate the connection.
func (c *client) sendError(detail string) {
	c.sendEvent(map[string]any{"type": "error", "error": detail})
}

func (c *client) sendEvent(event map[string]any) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// isSubscribed checks whether the client is subscribed to the given channel.
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[channel]
}

// writePump pumps queued messages to the WebSocket connection as JSON text
// frames.
func (c *client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	// The hub closed the channel.
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Compile-time interface check.
var _ domain.Broadcaster = (*Hub)(nil)

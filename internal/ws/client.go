package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is one live connection. The hub indexes it by id, symbol and user;
// the read and write pumps below are its only goroutines.
type client struct {
	id            string
	userID        string
	conn          *websocket.Conn
	send          chan Event
	subscriptions map[string]struct{}
}

// inbound is one named client-to-server frame.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type subscribePayload struct {
	Symbols []string `json:"symbols"`
}

// HandleWS upgrades the request and runs the connection until it closes.
// Authentication is opportunistic: a missing or invalid token leaves the
// connection anonymous but still able to subscribe to public price streams.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:            uuid.New().String(),
		userID:        h.resolveUser(r),
		conn:          conn,
		send:          make(chan Event, sendBuffer),
		subscriptions: make(map[string]struct{}),
	}

	h.register(c)

	go c.writePump()
	c.readPump(h, r)
}

func (h *Hub) resolveUser(r *http.Request) string {
	if h.auth == nil {
		return ""
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		if header := r.Header.Get("Authorization"); len(header) > 7 && header[:7] == "Bearer " {
			token = header[7:]
		}
	}
	if token == "" {
		return ""
	}

	userID, err := h.auth.UserIDFromToken(token)
	if err != nil {
		logger.Log.Warn("Invalid connection token, continuing as anonymous", zap.Error(err))
		return ""
	}
	return userID
}

// readPump dispatches inbound frames until the connection drops, then
// unregisters the client.
func (c *client) readPump(h *Hub, r *http.Request) {
	defer func() {
		h.unregister(c)
		close(c.send)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame inbound
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Warn("Websocket read error",
					zap.String("client_id", c.id),
					zap.Error(err),
				)
			}
			return
		}

		switch frame.Event {
		case "subscribe":
			var payload subscribePayload
			if err := json.Unmarshal(frame.Data, &payload); err != nil {
				c.enqueue(Event{Event: "error", Data: map[string]string{"message": "malformed subscribe payload"}})
				continue
			}
			valid, prices := h.Subscribe(r.Context(), c, payload.Symbols)
			c.enqueue(Event{Event: "subscribed", Data: map[string]any{
				"symbols":       valid,
				"currentPrices": prices,
			}})

		case "unsubscribe":
			var payload subscribePayload
			if err := json.Unmarshal(frame.Data, &payload); err != nil {
				c.enqueue(Event{Event: "error", Data: map[string]string{"message": "malformed unsubscribe payload"}})
				continue
			}
			removed := h.Unsubscribe(c, payload.Symbols)
			c.enqueue(Event{Event: "unsubscribed", Data: map[string]any{"symbols": removed}})

		case "getSubscriptions":
			symbols := make([]string, 0, len(c.subscriptions))
			for symbol := range c.subscriptions {
				symbols = append(symbols, symbol)
			}
			c.enqueue(Event{Event: "subscriptions", Data: map[string]any{"symbols": symbols}})

		case "ping":
			c.enqueue(Event{Event: "pong", Data: map[string]any{"timestamp": time.Now().UTC()}})

		default:
			c.enqueue(Event{Event: "error", Data: map[string]string{"message": "unknown event: " + frame.Event}})
		}
	}
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue hands an event to the write pump without blocking. Slow clients
// drop events rather than stall the broadcaster.
func (c *client) enqueue(event Event) {
	defer func() {
		// The send channel closes when the read pump exits; a racing
		// broadcast must not crash the hub.
		_ = recover()
	}()

	select {
	case c.send <- event:
	default:
		logger.Log.Warn("Event dropped due to slow client",
			zap.String("client_id", c.id),
			zap.String("event", event.Event),
		)
	}
}

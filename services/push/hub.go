// Package pushsvc delivers push notifications over websockets.
// The Hub runs on the backend and the Notifier on the client.
package pushsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/session"
)

const (
	defaultWriteWait  = 10 * time.Second
	defaultPingPeriod = 54 * time.Second
	maxMessageSize    = 512
	sendBufferSize    = 64
)

// MessageNotification is the type of Message carrying a session.Notification.
const MessageNotification = "notification"

// ErrHubClosed is returned once the Hub stopped running.
var ErrHubClosed = errors.New("push hub closed")

// Message is the websocket frame exchanged with devices.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type (
	// conn is one connected device.
	conn struct {
		hub    *Hub
		userID string
		ws     *websocket.Conn
		send   chan []byte
	}

	delivery struct {
		userIDs []string
		payload []byte
		reached chan int
	}

	// Hub keeps the connected devices of every user. Only Run touches the connection map.
	Hub struct {
		clients    map[string]map[*conn]bool
		register   chan *conn
		unregister chan *conn
		deliver    chan delivery
		done       chan struct{}
		logger     core.Logger
		writeWait  time.Duration
		pingPeriod time.Duration
	}
)

func NewHub(logger core.Logger, conf core.PushConfig) *Hub {
	h := &Hub{
		clients:    make(map[string]map[*conn]bool),
		register:   make(chan *conn),
		unregister: make(chan *conn),
		deliver:    make(chan delivery),
		done:       make(chan struct{}),
		logger:     logger,
		writeWait:  conf.WriteTimeout,
		pingPeriod: conf.PingInterval,
	}
	if h.writeWait <= 0 {
		h.writeWait = defaultWriteWait
	}
	if h.pingPeriod <= 0 {
		h.pingPeriod = defaultPingPeriod
	}
	return h
}

// Run dispatches deliveries until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for _, conns := range h.clients {
			for c := range conns {
				close(c.send)
			}
		}
		h.clients = nil
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			if h.clients[c.userID] == nil {
				h.clients[c.userID] = make(map[*conn]bool)
			}
			h.clients[c.userID][c] = true
		case c := <-h.unregister:
			h.drop(c)
		case d := <-h.deliver:
			n := 0
			for _, id := range d.userIDs {
				for c := range h.clients[id] {
					select {
					case c.send <- d.payload:
						n++
					default:
						// slow device
						h.drop(c)
					}
				}
			}
			d.reached <- n
		}
	}
}

func (h *Hub) drop(c *conn) {
	conns, ok := h.clients[c.userID]
	if !ok || !conns[c] {
		return
	}
	delete(conns, c)
	close(c.send)
	if len(conns) == 0 {
		delete(h.clients, c.userID)
	}
}

// Send delivers n to every connected device of userIDs and returns how many devices it reached.
func (h *Hub) Send(ctx context.Context, userIDs []string, n session.Notification) (int, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}
	data, err := json.Marshal(n)
	if err != nil {
		return 0, errors.Wrap(err, "encoding notification")
	}
	payload, err := json.Marshal(Message{Type: MessageNotification, Data: data})
	if err != nil {
		return 0, errors.Wrap(err, "encoding message")
	}

	d := delivery{userIDs: userIDs, payload: payload, reached: make(chan int, 1)}
	select {
	case h.deliver <- d:
	case <-h.done:
		return 0, ErrHubClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return <-d.reached, nil
}

// ServeWS upgrades the request and registers the connection of userID.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return errors.Wrap(err, "upgrading connection")
	}

	c := &conn{hub: h, userID: userID, ws: ws, send: make(chan []byte, sendBufferSize)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = ws.Close()
		return ErrHubClosed
	}

	go c.writePump()
	go c.readPump()
	return nil
}

// readPump only watches for the device going away. Devices never send anything but pongs.
func (c *conn) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.ws.Close()
	}()

	pongWait := c.hub.pingPeriod * 10 / 9
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("push connection closed unexpectedly", err, map[string]interface{}{"user_id": c.userID})
			}
			return
		}
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.hub.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

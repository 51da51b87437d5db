package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nhle/order-console/internal/channel"
	"github.com/nhle/order-console/internal/logging"
	"github.com/nhle/order-console/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local development only.
	CheckOrigin: func(*http.Request) bool { return true },
}

type wsClient struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
}

// Hub fans change notifications out to every connected console,
// including the one whose intent caused the change.
type Hub struct {
	store *MemoryStore
	delay time.Duration

	clients    map[string]*wsClient
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	mu         sync.RWMutex
}

func newHub(store *MemoryStore, delay time.Duration) *Hub {
	return &Hub{
		store:      store,
		delay:      delay,
		clients:    make(map[string]*wsClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
	}
}

// Run manages client registration and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			n := len(h.clients)
			h.mu.Unlock()
			logging.Debug(subsystem, "ws client %s connected (total %d)", c.id, n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			logging.Debug(subsystem, "ws client %s disconnected (total %d)", c.id, n)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for id, c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow consumer.
					close(c.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected consoles.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify broadcasts a change notification for orderID.
func (h *Hub) Notify(event, orderID string) {
	data, err := json.Marshal(channel.Notification{OrderID: orderID})
	if err != nil {
		logging.Error(subsystem, err, "encoding notification")
		return
	}
	frame, err := json.Marshal(channel.Envelope{Event: event, Data: data})
	if err != nil {
		logging.Error(subsystem, err, "encoding envelope")
		return
	}
	send := func() {
		select {
		case h.broadcast <- frame:
		default:
			logging.Warn(subsystem, "broadcast queue full, dropping %s for %s", event, orderID)
		}
	}
	if h.delay > 0 {
		time.AfterFunc(h.delay, send)
		return
	}
	send()
}

// apply handles one inbound intent frame.
func (h *Hub) apply(c *wsClient, env channel.Envelope) {
	switch env.Event {
	case channel.EventUpdateOrderStatus:
		var in channel.OrderStatusIntent
		if err := json.Unmarshal(env.Data, &in); err != nil {
			logging.Warn(subsystem, "ws %s: bad %s payload: %v", c.id, env.Event, err)
			return
		}
		if err := h.store.SetOrderStatus(in.OrderID, model.OrderStatus(in.Status)); err != nil {
			logging.Warn(subsystem, "ws %s: %s %s: %v", c.id, env.Event, in.OrderID, err)
			return
		}
		logging.Info(subsystem, "order %s status -> %s by %s", in.OrderID, in.Status, in.UserID)
		h.Notify(channel.EventOrderStatusUpdated, in.OrderID)

	case channel.EventUpdatePaymentStatus:
		var in channel.PaymentStatusIntent
		if err := json.Unmarshal(env.Data, &in); err != nil {
			logging.Warn(subsystem, "ws %s: bad %s payload: %v", c.id, env.Event, err)
			return
		}
		if err := h.store.SetPaymentStatus(in.OrderID, model.PaymentStatus(in.PaymentStatus)); err != nil {
			logging.Warn(subsystem, "ws %s: %s %s: %v", c.id, env.Event, in.OrderID, err)
			return
		}
		logging.Info(subsystem, "order %s payment -> %s by %s", in.OrderID, in.PaymentStatus, in.UserID)
		h.Notify(channel.EventPaymentStatusUpdated, in.OrderID)

	default:
		logging.Debug(subsystem, "ws %s: ignoring event %q", c.id, env.Event)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := s.tokens.Verify(tokenFromRequest(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid authorization token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn(subsystem, "ws upgrade: %v", err)
		return
	}

	c := &wsClient{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    s.hub,
	}
	select {
	case s.hub.register <- c:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env channel.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug(subsystem, "ws %s read: %v", c.id, err)
			}
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				continue
			}
			return
		}
		c.hub.apply(c, env)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

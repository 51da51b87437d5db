package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/nhle/order-console/internal/logging"
)

const subsystem = "channel"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// ErrUnavailable is returned by Emit while no connection is open.
// Emitted events are never queued for later delivery.
var ErrUnavailable = errors.New("channel unavailable")

// Handler receives the raw data of an inbound event.
type Handler func(data json.RawMessage)

// Client is a persistent websocket connection to the backend's event
// channel. Delivery is at-most-once: nothing is acknowledged, nothing is
// replayed after a reconnect, and events of different names may arrive in
// any order.
//
// Handlers registered with On survive reconnects and are invoked outside
// the client's locks, so a handler may call back into the client.
type Client struct {
	url        string
	token      string
	dialer     *websocket.Dialer
	newBackOff func() backoff.BackOff
	onState    func(connected bool)
	pongWait   time.Duration
	pingPeriod time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	cancel   context.CancelFunc
	done     chan struct{}
	handlers map[string]map[uint64]Handler
	nextID   uint64

	writeMu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithBackOff sets the policy used between reconnect attempts.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) {
		c.newBackOff = f
	}
}

// WithKeepalive sets how often the client pings the server and how long
// a silent connection is trusted. pingPeriod must be shorter than pongWait.
func WithKeepalive(pongWait, pingPeriod time.Duration) Option {
	return func(c *Client) {
		c.pongWait = pongWait
		c.pingPeriod = pingPeriod
	}
}

// WithStateListener registers a callback for connect and disconnect
// transitions. It is called from the client's goroutines.
func WithStateListener(f func(connected bool)) Option {
	return func(c *Client) {
		c.onState = f
	}
}

// New creates a client for the websocket endpoint at url. The token is
// sent in the Authorization header of the handshake.
func New(url, token string, opts ...Option) *Client {
	c := &Client{
		url:    url,
		token:  token,
		dialer: websocket.DefaultDialer,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		handlers:   make(map[string]map[uint64]Handler),
		pongWait:   pongWait,
		pingPeriod: pingPeriod,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens the connection and starts the read loop. A dropped
// connection is re-established in the background until Disconnect is
// called. Connecting an already connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		cancel()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	logging.Info(subsystem, "connected to %s", c.url)
	c.notifyState(true)

	go c.run(runCtx, conn, done)
	return nil
}

// Disconnect closes the connection and stops reconnecting. Registered
// handlers are kept.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	cancel, conn, done := c.cancel, c.conn, c.done
	c.cancel, c.conn, c.done = nil, nil, nil
	if cancel != nil {
		// Cancelled under mu so run never installs a fresh connection
		// after this point.
		cancel()
	}
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}

	var err error
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = conn.Close()
	}
	<-done

	logging.Info(subsystem, "disconnected from %s", c.url)
	return err
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Emit sends one event. It returns ErrUnavailable when disconnected.
func (c *Client) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", event, err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("emitting %s: %w", event, ErrUnavailable)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Envelope{Event: event, Data: data}); err != nil {
		return fmt.Errorf("emitting %s: %w: %v", event, ErrUnavailable, err)
	}
	return nil
}

// On registers a handler for an inbound event and returns a func that
// removes exactly that handler.
func (c *Client) On(event string, h Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uint64]Handler)
	}
	c.handlers[event][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.handlers[event], id)
			if len(c.handlers[event]) == 0 {
				delete(c.handlers, event)
			}
		})
	}
}

// Off removes every handler registered for event.
func (c *Client) Off(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

// HandlerCount returns how many handlers are registered for event.
func (c *Client) HandlerCount(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[event])
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", c.token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, backoff.Permanent(fmt.Errorf("dialing %s: unauthorized", c.url))
		}
		return nil, fmt.Errorf("dialing %s: %w", c.url, err)
	}
	return conn, nil
}

// run reads from conn and reconnects with backoff whenever the read loop
// ends, until ctx is cancelled.
func (c *Client) run(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		stopPing := make(chan struct{})
		go c.pingLoop(conn, stopPing)
		err := c.readLoop(conn)
		close(stopPing)
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
		c.notifyState(false)
		logging.Warn(subsystem, "connection lost: %v; reconnecting", err)

		next, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
			return c.dial(ctx)
		},
			backoff.WithBackOff(c.newBackOff()),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(func(err error, d time.Duration) {
				logging.Debug(subsystem, "reconnect failed, retrying in %s: %v", d, err)
			}),
		)
		if err != nil {
			c.mu.Lock()
			if ctx.Err() == nil {
				logging.Error(subsystem, err, "giving up reconnecting to %s", c.url)
				c.cancel()
				c.cancel, c.done = nil, nil
			}
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		if ctx.Err() != nil {
			c.mu.Unlock()
			next.Close()
			return
		}
		c.conn = next
		c.mu.Unlock()

		logging.Info(subsystem, "reconnected to %s", c.url)
		c.notifyState(true)
		conn = next
	}
}

// readLoop dispatches inbound events until the connection fails. A peer
// that sends nothing, not even a pong or ping, for pongWait is treated as
// gone.
func (c *Client) readLoop(conn *websocket.Conn) error {
	extend := func() error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait))
	}
	_ = extend()
	conn.SetPongHandler(func(string) error { return extend() })
	conn.SetPingHandler(func(data string) error {
		_ = extend()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	})

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				logging.Warn(subsystem, "dropping malformed frame: %v", err)
				continue
			}
			return err
		}
		_ = extend()
		c.dispatch(env)
	}
}

// pingLoop pings conn every pingPeriod until stop is closed or a ping
// cannot be written.
func (c *Client) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				logging.Debug(subsystem, "ping failed: %v", err)
				return
			}
		}
	}
}

func (c *Client) dispatch(env Envelope) {
	c.mu.Lock()
	hs := make([]Handler, 0, len(c.handlers[env.Event]))
	for _, h := range c.handlers[env.Event] {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	if len(hs) == 0 {
		logging.Debug(subsystem, "no handler for %s", env.Event)
		return
	}
	for _, h := range hs {
		h(env.Data)
	}
}

func (c *Client) notifyState(connected bool) {
	if c.onState != nil {
		c.onState(connected)
	}
}

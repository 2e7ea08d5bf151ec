// Package stream owns the single websocket connection to the backend event
// endpoint: connect, fixed-delay retry, teardown. Frames are delivered to
// one handler in arrival order from one goroutine; no concurrent dispatch.
package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

// Reconnection policy is deliberately fixed-delay with a hard ceiling:
// exhausting the ceiling is fatal to the session and requires an external
// restart, not in-process recovery.
const (
	reconnectDelay       = 3 * time.Second
	maxReconnectAttempts = 5
)

// Handler receives one raw frame at a time.
type Handler func(raw []byte)

// StateHook observes connectivity changes, e.g. to drive a presence
// indicator or a gauge.
type StateHook func(state ConnState)

type Client struct {
	url     string
	handler Handler
	onState StateHook
	dialer  websocket.Dialer
	log     zerolog.Logger

	// delay is reconnectDelay unless a test shortens it.
	delay       time.Duration
	maxAttempts int

	mu       sync.Mutex
	conn     *websocket.Conn
	state    ConnState
	attempts int
	timer    *time.Timer
	closed   bool
	exhaust  bool
}

func NewClient(url string, handler Handler, onState StateHook, log zerolog.Logger) *Client {
	return &Client{
		url:     url,
		handler: handler,
		onState: onState,
		log:     log.With().Str("component", "stream").Logger(),
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 4 * time.Second,
		},
		delay:       reconnectDelay,
		maxAttempts: maxReconnectAttempts,
		state:       StateDisconnected,
	}
}

// Start begins connecting. It returns immediately; connectivity is reported
// through the state hook.
func (c *Client) Start() {
	go c.connect()
}

func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Exhausted reports whether the retry ceiling was hit and the client has
// stopped permanently.
func (c *Client) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhaust
}

// Send writes one JSON message best-effort. When not connected it is a
// logged no-op; callers must not assume delivery.
func (c *Client) Send(v any) {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != StateConnected || conn == nil {
		c.log.Debug().Msg("send skipped: not connected")
		return
	}
	if err := conn.WriteJSON(v); err != nil {
		c.log.Warn().Err(err).Msg("send failed")
	}
}

// Close tears the client down: any pending reconnect timer is cancelled and
// an open socket is closed. Neither outlives the caller.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	conn, _, err := c.dialer.Dial(c.url, nil)
	if err != nil {
		c.log.Warn().Err(err).Str("url", c.url).Msg("connect failed")
		c.dropAndMaybeReconnect(nil)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.attempts = 0
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.log.Info().Str("url", c.url).Msg("connected to event stream")
	c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.log.Warn().Err(err).Msg("event stream closed")
			}
			c.dropAndMaybeReconnect(conn)
			return
		}
		if c.handler != nil {
			c.handler(raw)
		}
	}
}

// dropAndMaybeReconnect transitions to disconnected and schedules the next
// attempt after the fixed delay, unless the ceiling is reached or the client
// was closed.
func (c *Client) dropAndMaybeReconnect(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != nil && (conn == nil || c.conn == conn) {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.setStateLocked(StateDisconnected)
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.maxAttempts {
		c.exhaust = true
		c.mu.Unlock()
		c.log.Error().Int("attempts", c.maxAttempts).Msg("reconnect attempts exhausted; giving up")
		return
	}
	c.attempts++
	attempt := c.attempts
	c.timer = time.AfterFunc(c.delay, c.connect)
	c.mu.Unlock()

	c.log.Info().Int("attempt", attempt).Dur("delay", c.delay).Msg("reconnect scheduled")
}

// setStateLocked runs the hook under the client lock so state notifications
// arrive in order. Hooks must not call back into the client.
func (c *Client) setStateLocked(s ConnState) {
	if c.state == s {
		return
	}
	c.state = s
	if c.onState != nil {
		c.onState(s)
	}
}

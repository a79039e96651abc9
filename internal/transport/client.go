// Package transport owns the single WebSocket connection to a QLC+ host.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/qlcremote/internal/eventbus"
	"github.com/dokzlo13/qlcremote/internal/protocol"
)

// ErrNotConnected is returned by Send when there is no open connection.
// The line is dropped: commands are never queued for later delivery.
var ErrNotConnected = errors.New("not connected")

// State is the connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "disconnected"
	}
}

// MarshalText renders the state in JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config holds dial parameters.
type Config struct {
	Path             string        // WebSocket path, defaults to protocol.EndpointPath
	HandshakeTimeout time.Duration // Dial handshake limit
	WriteTimeout     time.Duration // Per-frame write deadline
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		Path:             protocol.EndpointPath,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     2 * time.Second,
	}
}

// Client is a WebSocket client with explicit connection state.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	cancel context.CancelFunc
	gen    uint64
	addr   string

	writeMu sync.Mutex

	lines  *eventbus.Bus[string]
	states *eventbus.Bus[State]
}

// New creates a disconnected client.
func New(cfg Config) *Client {
	if cfg.Path == "" {
		cfg.Path = protocol.EndpointPath
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		lines:  eventbus.New[string]("transport.lines"),
		states: eventbus.New[State]("transport.state"),
	}
}

// URL returns the endpoint for host and port.
func (c *Client) URL(host string, port int) string {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   c.cfg.Path,
	}
	return u.String()
}

// Lines carries every inbound text frame.
func (c *Client) Lines() *eventbus.Bus[string] { return c.lines }

// States carries connection state transitions. Transitions are published
// while the client lock is held, so subscribers should use DropNewest.
func (c *Client) States() *eventbus.Bus[State] { return c.states }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Address returns the last host:port dialled.
func (c *Client) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

func (c *Client) setState(s State) {
	c.state = s
	c.states.Publish(context.Background(), s)
}

// Connect opens the connection. It is a no-op while connected or while
// another Connect is in flight.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	c.mu.Lock()
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	c.addr = net.JoinHostPort(host, strconv.Itoa(port))
	c.setState(Connecting)
	c.mu.Unlock()

	endpoint := c.URL(host, port)
	log.Info().Str("url", endpoint).Msg("Connecting to QLC+")

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		// Disconnect won the race
		if conn != nil {
			conn.Close()
		}
		return nil
	}
	if err != nil {
		c.setState(Failed)
		log.Warn().Err(err).Str("url", endpoint).Msg("QLC+ connection failed")
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = cancel
	c.setState(Connected)
	log.Info().Str("url", endpoint).Msg("Connected to QLC+")

	go c.readLoop(readCtx, conn, gen)
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.fail(gen, err)
			return
		}
		c.lines.Publish(ctx, string(data))
	}
}

// fail records a socket error for connection generation gen.
func (c *Client) fail(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.conn == nil {
		return
	}
	c.conn.Close()
	c.conn = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.setState(Failed)

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		log.Warn().Int("code", closeErr.Code).Str("text", closeErr.Text).Msg("QLC+ closed the connection")
		return
	}
	log.Warn().Err(err).Msg("QLC+ connection lost")
}

// Disconnect closes the connection. Safe to call in any state.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	conn := c.conn
	c.conn = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if conn != nil {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		conn.Close()
		log.Info().Msg("Disconnected from QLC+")
	}
	if c.state != Disconnected {
		c.setState(Disconnected)
	}
}

// Send writes one line. It returns ErrNotConnected without blocking when no
// connection is open.
func (c *Client) Send(line protocol.Line) error {
	c.mu.Lock()
	conn, gen := c.conn, c.gen
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err == nil {
		err = conn.WriteMessage(websocket.TextMessage, []byte(line))
	}
	c.writeMu.Unlock()

	if err != nil {
		c.fail(gen, err)
		return fmt.Errorf("send %q: %w", line, err)
	}
	log.Trace().Str("line", string(line)).Msg("Sent")
	return nil
}

// Close disconnects and ends every subscription.
func (c *Client) Close() {
	c.Disconnect()
	c.lines.Close()
	c.states.Close()
}

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"pkt.systems/pslog"
	"pkt.systems/termplex/internal/clock"
	"pkt.systems/termplex/schema"
)

const (
	defaultReconnectMin     = 500 * time.Millisecond
	defaultReconnectMax     = 10 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 10 * time.Second
)

// Config configures the websocket channel.
type Config struct {
	URL              string
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
	HandshakeTimeout time.Duration
	Header           http.Header
}

// Deps captures optional dependencies for the websocket channel.
type Deps struct {
	Clock  clock.Clock
	Logger pslog.Logger
	Dialer *websocket.Dialer
}

// Channel is a reconnecting websocket client shared by every terminal unit.
// Sends while disconnected return schema.ErrNotReady and are not queued.
type Channel struct {
	cfg    Config
	dialer *websocket.Dialer
	clock  clock.Clock
	log    pslog.Logger
	subs   *fanout

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	running bool
	cancel  context.CancelFunc

	writeMu sync.Mutex
}

// NewChannel validates cfg and constructs a disconnected channel.
func NewChannel(cfg Config, deps Deps) (*Channel, error) {
	if cfg.URL == "" {
		return nil, errors.New("transport url is required")
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = defaultReconnectMin
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = defaultReconnectMax
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		return nil, fmt.Errorf("%w: reconnect max below reconnect min", schema.ErrInvalidConfig)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	dialer := deps.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Channel{
		cfg:    cfg,
		dialer: dialer,
		clock:  deps.Clock,
		log:    logger.With("url", cfg.URL),
		subs:   newFanout(),
	}, nil
}

// IsReady reports whether a connection is established.
func (c *Channel) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes one frame as a text message.
func (c *Channel) Send(frame schema.Frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return schema.ErrNotReady
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Subscribe registers a handler for every inbound frame.
func (c *Channel) Subscribe(handler func(raw []byte)) func() {
	return c.subs.subscribe(handler)
}

// OnReady registers fn for every transition to connected.
func (c *Channel) OnReady(fn func()) func() {
	return c.subs.onReady(fn)
}

// Run connects and keeps the connection alive until ctx is done or Close is
// called, backing off exponentially between attempts.
func (c *Channel) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return schema.ErrClosed
	}
	if c.running {
		c.mu.Unlock()
		return errors.New("transport already running")
	}
	c.running = true
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	delay := c.cfg.ReconnectMin
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			c.log.Info("transport stopped")
			return nil
		}
		if connected {
			delay = c.cfg.ReconnectMin
		}
		c.log.Warn("transport disconnected", "err", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			c.log.Info("transport stopped")
			return nil
		case <-c.clock.After(delay):
		}
		delay *= 2
		if delay > c.cfg.ReconnectMax {
			delay = c.cfg.ReconnectMax
		}
	}
}

// session dials once and reads until the connection fails. It reports
// whether the dial succeeded.
func (c *Channel) session(ctx context.Context) (bool, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.log.Info("transport connected")
	c.subs.notifyReady()

	stop := context.AfterFunc(ctx, func() {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	})
	defer stop()
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		c.log.Trace("transport frame", "bytes", len(data))
		c.subs.emit(data)
	}
}

// Close stops Run and drops the connection. Subscribers stay registered.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Package streaming manages the persistent duplex connection used for
// continuous analysis such as live scene description and outdoor navigation.
//
// The package separates the transport (dial, send, receive, close) from the
// session policy implemented by Manager: push cadence, backpressure, message
// routing, and reconnection.
package streaming

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/VietHungUET/SightTech/logger"
)

// Default connection constants.
const (
	DefaultDialTimeout      = 10 * time.Second
	DefaultWriteWait        = 10 * time.Second
	DefaultMaxMessageSize   = 4 * 1024 * 1024 // 4MB
	DefaultCloseGracePeriod = 2 * time.Second
)

// Close codes.
const (
	CloseNormal   = websocket.CloseNormalClosure
	CloseAbnormal = websocket.CloseAbnormalClosure
)

// jitterFactor is the +-25% jitter applied to backoff delays.
const jitterFactor = 0.25

// jitterPrecision is the granularity for crypto/rand jitter generation.
const jitterPrecision = 1000

// jitterHalfPrecision normalizes jitter output to the range [-1, 1].
const jitterHalfPrecision = jitterPrecision / 2

// ErrNotConnected is returned when sending on a closed transport.
var ErrNotConnected = errors.New("websocket is not connected")

// CloseError describes how a connection ended.
type CloseError struct {
	Code   int
	Reason string
}

// Error implements the error interface.
func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("connection closed (%d)", e.Code)
	}
	return fmt.Sprintf("connection closed (%d): %s", e.Code, e.Reason)
}

// Normal reports whether the close was intentional.
func (e *CloseError) Normal() bool {
	return e.Code == CloseNormal
}

// AsCloseError converts a receive error into a *CloseError. Errors without a
// close frame are abnormal.
func AsCloseError(err error) *CloseError {
	if err == nil {
		return nil
	}
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce
	}
	var wsErr *websocket.CloseError
	if errors.As(err, &wsErr) {
		return &CloseError{Code: wsErr.Code, Reason: wsErr.Text}
	}
	return &CloseError{Code: CloseAbnormal, Reason: err.Error()}
}

// Sink receives transport events. Callbacks are invoked from the transport's
// read goroutine.
type Sink struct {
	// Message delivers one complete message.
	Message func(data []byte)
	// Closed reports the end of the connection exactly once.
	Closed func(err *CloseError)
}

// Transport is an open duplex connection.
type Transport interface {
	Send(data []byte) error
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, sink Sink) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, sink Sink) (Transport, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, sink Sink) (Transport, error) {
	return f(ctx, sink)
}

// ConnConfig configures the WebSocket connection behavior.
type ConnConfig struct {
	// URL is the WebSocket endpoint URL.
	URL string

	// Headers are sent during the WebSocket handshake.
	Headers http.Header

	// DialTimeout is the handshake timeout. Defaults to DefaultDialTimeout.
	DialTimeout time.Duration

	// WriteWait is the write deadline for each message. Defaults to DefaultWriteWait.
	WriteWait time.Duration

	// MaxMessageSize is the read limit. Defaults to DefaultMaxMessageSize.
	MaxMessageSize int64

	// Binary sends frames as binary messages instead of text.
	Binary bool

	// CloseReason is sent with the normal close frame.
	CloseReason string

	// CloseGracePeriod is the deadline for writing the close frame.
	// Defaults to DefaultCloseGracePeriod.
	CloseGracePeriod time.Duration

	// PingInterval enables keepalive pings when positive.
	PingInterval time.Duration

	// Logger receives debug/warn/error log messages. Optional.
	Logger logger.Logger
}

func (c *ConnConfig) defaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.WriteWait == 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.CloseGracePeriod == 0 {
		c.CloseGracePeriod = DefaultCloseGracePeriod
	}
	if c.Logger == nil {
		c.Logger = logger.Default()
	}
}

// WSDialer dials gorilla WebSocket connections.
type WSDialer struct {
	cfg ConnConfig
}

// NewWSDialer creates a dialer for cfg.URL.
func NewWSDialer(cfg ConnConfig) *WSDialer {
	cfg.defaults()
	return &WSDialer{cfg: cfg}
}

// Dial implements Dialer. On success the connection's read loop is running
// and feeding sink.
func (d *WSDialer) Dial(ctx context.Context, sink Sink) (Transport, error) {
	c := NewConn(d.cfg)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	c.Start(sink)
	return c, nil
}

// Conn manages one WebSocket connection.
type Conn struct {
	cfg ConnConfig

	conn      *websocket.Conn
	mu        sync.Mutex
	writeMu   sync.Mutex // serializes writes (gorilla/websocket requirement)
	closed    bool
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewConn creates a new Conn. Call Connect to establish the connection.
func NewConn(cfg ConnConfig) *Conn {
	cfg.defaults()
	return &Conn{
		cfg:     cfg,
		closeCh: make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New("connection is closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.DialTimeout,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
	}

	c.cfg.Logger.Debug("streaming: connecting", "url", logger.RedactSensitiveData(c.cfg.URL))

	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, c.cfg.Headers)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
			c.cfg.Logger.Error("streaming: dial failed", "error", err, "status", resp.StatusCode)
		}
		return fmt.Errorf("failed to connect: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn = conn
	c.cfg.Logger.Info("streaming: connected")
	return nil
}

// Start runs the read loop, and the ping loop when configured, delivering
// to sink until the connection ends.
func (c *Conn) Start(sink Sink) {
	go c.readLoop(sink)
	if c.cfg.PingInterval > 0 {
		go c.heartbeatLoop(c.cfg.PingInterval)
	}
}

func (c *Conn) readLoop(sink Sink) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.reportClosed(sink, &CloseError{Code: CloseAbnormal, Reason: ErrNotConnected.Error()})
		return
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			ce := AsCloseError(err)
			if c.IsClosed() && ce.Code == CloseAbnormal {
				// Local close interrupts the read without a close frame.
				ce = &CloseError{Code: CloseNormal, Reason: c.cfg.CloseReason}
			}
			c.reportClosed(sink, ce)
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		if sink.Message != nil {
			sink.Message(data)
		}
	}
}

func (c *Conn) reportClosed(sink Sink, ce *CloseError) {
	c.closeOnce.Do(func() {
		c.cfg.Logger.Debug("streaming: connection ended", "code", ce.Code, "reason", ce.Reason)
		if sink.Closed != nil {
			sink.Closed(ce)
		}
	})
}

// Send writes one message. Frames are text unless the config selects binary.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	msgType := websocket.TextMessage
	if c.cfg.Binary {
		msgType = websocket.BinaryMessage
	}
	if err := conn.WriteMessage(msgType, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (c *Conn) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			if !c.sendPing() {
				return
			}
		}
	}
}

func (c *Conn) sendPing() bool {
	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return false
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.cfg.WriteWait)
	if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		c.cfg.Logger.Warn("streaming: ping failed", "error", err)
		return false
	}
	return true
}

// Close sends a normal close frame and closes the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeCh)

	if c.conn == nil {
		return nil
	}

	c.writeMu.Lock()
	closeMsg := websocket.FormatCloseMessage(CloseNormal, c.cfg.CloseReason)
	_ = c.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(c.cfg.CloseGracePeriod))
	c.writeMu.Unlock()

	return c.conn.Close()
}

// IsClosed returns whether Close has been called.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// calculateBackoff computes base*2^attempt with +-25% jitter, capped at maxDelay.
func calculateBackoff(attempt int, base, maxDelay time.Duration) time.Duration {
	delay := float64(base) * math.Pow(2, float64(attempt))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	// Jitter: +-25% using crypto/rand.
	n, err := rand.Int(rand.Reader, big.NewInt(jitterPrecision))
	if err != nil {
		return time.Duration(delay)
	}
	jitter := delay * jitterFactor * (float64(n.Int64())/jitterHalfPrecision - 1)
	result := delay + jitter
	if result < 0 {
		result = float64(base)
	}
	if result > float64(maxDelay) {
		result = float64(maxDelay)
	}
	return time.Duration(math.Max(result, 0))
}

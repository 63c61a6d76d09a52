package streaming

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/VietHungUET/SightTech/command"
	"github.com/VietHungUET/SightTech/events"
	"github.com/VietHungUET/SightTech/logger"
	"github.com/VietHungUET/SightTech/scheduler"
)

// Push intervals used by the built-in features.
const (
	NavigationInterval       = 200 * time.Millisecond
	SceneDescriptionInterval = 3000 * time.Millisecond
)

// Reconnect backoff bounds.
const (
	DefaultReconnectBase = 1 * time.Second
	DefaultReconnectMax  = 30 * time.Second
)

// MessageConnectionLost is routed to the error surface on abnormal closure.
const MessageConnectionLost = "Connection lost"

// Status notices routed when a session opens and when the user stops it.
const (
	MessageConnected = "Navigation system connected"
	MessageStopped   = "Navigation stopped"
)

// ErrClosed is returned by Connect after Close.
var ErrClosed = errors.New("streaming manager is closed")

// ConnState is the connection state.
type ConnState int

// Connection states.
const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateError
)

// String returns the state name.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// FrameSource supplies the most recent encoded frame. ok is false when no
// frame is available.
type FrameSource interface {
	Frame() (data []byte, ok bool)
}

// FrameSourceFunc adapts a function to FrameSource.
type FrameSourceFunc func() ([]byte, bool)

// Frame implements FrameSource.
func (f FrameSourceFunc) Frame() ([]byte, bool) {
	return f()
}

// Config configures a Manager.
type Config struct {
	// FrameInterval is the push cadence. Defaults to NavigationInterval.
	FrameInterval time.Duration

	// InFlightTimeout releases a frame left unanswered for this long.
	// Zero waits for a reply indefinitely.
	InFlightTimeout time.Duration

	// MaxReconnectAttempts enables automatic reconnection after an abnormal
	// close. Zero requires an explicit Connect.
	MaxReconnectAttempts int
	ReconnectBase        time.Duration
	ReconnectMax         time.Duration

	// DialTimeout bounds each dial.
	DialTimeout time.Duration

	// Codec defaults to JSONCodec.
	Codec Codec

	// Filter, when set, drops results whose text should not be spoken.
	Filter *GuidanceFilter

	Logger logger.Logger
	Events *events.Emitter
}

func (c *Config) applyDefaults() {
	if c.FrameInterval <= 0 {
		c.FrameInterval = NavigationInterval
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = DefaultReconnectBase
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = DefaultReconnectMax
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.Codec == nil {
		c.Codec = JSONCodec{}
	}
	if c.Logger == nil {
		c.Logger = logger.Default()
	}
}

// Snapshot describes the manager.
type Snapshot struct {
	SessionID         string
	State             ConnState
	Epoch             uint64
	InFlight          bool
	ReconnectAttempts int
	ReconnectPending  bool
	LastClose         *CloseError
}

// Manager owns one streaming session. It must only be used from the
// scheduler thread.
type Manager struct {
	cfg    Config
	sched  scheduler.Scheduler
	tasks  *scheduler.Group
	dialer Dialer
	source FrameSource
	router command.Router
	log    logger.Logger
	events *events.Emitter

	sessionID string
	state     ConnState
	epoch     uint64
	transport Transport
	budget    *FrameBudget
	closed    bool

	attempts  int
	lastClose *CloseError

	pushTask      scheduler.Task
	inFlightTask  scheduler.Task
	reconnectTask scheduler.Task
	dialCancel    context.CancelFunc
}

// NewManager creates a disconnected manager.
func NewManager(sched scheduler.Scheduler, dialer Dialer, source FrameSource, router command.Router, cfg Config) (*Manager, error) {
	if sched == nil {
		return nil, errors.New("scheduler is required")
	}
	if dialer == nil {
		return nil, errors.New("dialer is required")
	}
	if source == nil {
		return nil, errors.New("frame source is required")
	}
	if router == nil {
		router = command.RouterFuncs{}
	}
	cfg.applyDefaults()

	return &Manager{
		cfg:       cfg,
		sched:     sched,
		tasks:     scheduler.NewGroup(sched),
		dialer:    dialer,
		source:    source,
		router:    router,
		log:       cfg.Logger,
		events:    cfg.Events,
		sessionID: uuid.NewString(),
		budget:    NewFrameBudget(cfg.FrameInterval),
	}, nil
}

// State returns the connection state.
func (m *Manager) State() ConnState {
	return m.state
}

// SessionID identifies this manager in logs and events.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// Snapshot returns the current manager state.
func (m *Manager) Snapshot() Snapshot {
	return Snapshot{
		SessionID:         m.sessionID,
		State:             m.state,
		Epoch:             m.epoch,
		InFlight:          m.budget.InFlight(),
		ReconnectAttempts: m.attempts,
		ReconnectPending:  m.reconnectTask != nil,
		LastClose:         m.lastClose,
	}
}

// Connect opens the connection. It is a no-op while connecting or
// connected. An explicit Connect resets the reconnect attempt counter.
func (m *Manager) Connect() error {
	if m.closed {
		return ErrClosed
	}
	if m.state == StateConnecting || m.state == StateConnected {
		return nil
	}
	m.cancelReconnect()
	m.attempts = 0
	m.dial("connect")
	return nil
}

// Disconnect stops the push loop, cancels pending reconnects, and closes the
// connection normally. Stopping a live session routes MessageStopped.
func (m *Manager) Disconnect() {
	m.disconnect(true)
}

// Close disconnects without a notice and rejects further Connect calls.
func (m *Manager) Close() {
	m.disconnect(false)
	m.closed = true
}

func (m *Manager) disconnect(notify bool) {
	wasLive := m.state != StateDisconnected
	m.epoch++
	m.tasks.CancelAll()
	m.pushTask = nil
	m.inFlightTask = nil
	m.reconnectTask = nil
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	m.budget.Reset()
	m.attempts = 0

	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			m.log.Debug("streaming: close failed", "error", err)
		}
		m.transport = nil
	}
	m.setState(StateDisconnected, CloseNormal, "disconnect")
	if notify && wasLive {
		m.router.OnStreamStatus(MessageStopped)
	}
}

func (m *Manager) setState(to ConnState, code int, reason string) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.log.Debug("streaming: state", "from", from.String(), "to", to.String(), "epoch", m.epoch, "reason", reason)
	m.events.StreamStateChanged(&events.StreamStateData{
		From:      from.String(),
		To:        to.String(),
		Epoch:     m.epoch,
		CloseCode: code,
		Reason:    reason,
	})
}

func (m *Manager) dial(reason string) {
	m.epoch++
	epoch := m.epoch
	m.setState(StateConnecting, 0, reason)

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	ctx = logger.WithSessionID(ctx, m.sessionID)
	ctx = logger.WithEpoch(ctx, strconv.FormatUint(epoch, 10))
	m.dialCancel = cancel

	sink := Sink{
		Message: func(data []byte) {
			m.sched.Post(func() { m.onMessage(epoch, data) })
		},
		Closed: func(ce *CloseError) {
			m.sched.Post(func() { m.onClosed(epoch, ce) })
		},
	}

	m.sched.Go(func() {
		transport, err := m.dialer.Dial(ctx, sink)
		m.sched.Post(func() { m.onDialed(epoch, transport, err) })
	})
}

func (m *Manager) onDialed(epoch uint64, transport Transport, err error) {
	if m.dialCancel != nil && epoch == m.epoch {
		m.dialCancel()
		m.dialCancel = nil
	}
	if epoch != m.epoch || m.state != StateConnecting {
		if transport != nil {
			_ = transport.Close()
		}
		return
	}
	if err != nil {
		m.log.Warn("streaming: dial failed", "error", err, "epoch", epoch)
		m.fail(&CloseError{Code: CloseAbnormal, Reason: err.Error()})
		return
	}

	m.transport = transport
	m.lastClose = nil
	m.budget.Reset()
	if m.cfg.Filter != nil {
		m.cfg.Filter.Reset(m.sched.Now())
	}
	m.setState(StateConnected, 0, "open")
	m.log.Info("streaming: session connected", "session_id", m.sessionID, "epoch", epoch, "interval", m.cfg.FrameInterval)
	m.pushTask = m.tasks.Every(m.cfg.FrameInterval, m.tick)
	m.router.OnStreamStatus(MessageConnected)
}

// tick sends one frame when the budget allows.
func (m *Manager) tick() {
	if m.state != StateConnected || m.transport == nil {
		return
	}
	now := m.sched.Now()
	if reason := m.budget.Check(now); reason != "" {
		m.events.StreamFrameSkipped(reason)
		return
	}
	data, ok := m.source.Frame()
	if !ok || len(data) == 0 {
		m.events.StreamFrameSkipped(SkipNoFrame)
		return
	}

	encoded, err := m.cfg.Codec.EncodeFrame(&Frame{Type: TypeFrame, Data: data, Timestamp: now.UnixMilli()})
	if err != nil {
		m.log.Error("streaming: encode frame failed", "error", err)
		return
	}
	if err := m.transport.Send(encoded); err != nil {
		m.log.Debug("streaming: send failed", "error", err)
		m.events.StreamFrameSkipped("send_failed")
		return
	}

	m.budget.MarkSent(now)
	m.events.StreamFrameSent(len(encoded))
	if m.cfg.InFlightTimeout > 0 {
		epoch := m.epoch
		m.inFlightTask = m.tasks.AfterFunc(m.cfg.InFlightTimeout, func() {
			m.inFlightTask = nil
			if epoch != m.epoch || !m.budget.InFlight() {
				return
			}
			m.log.Debug("streaming: frame reply timed out", "timeout", m.cfg.InFlightTimeout)
			m.budget.Release()
		})
	}
}

func (m *Manager) releaseFrame() {
	m.budget.Release()
	if m.inFlightTask != nil {
		m.inFlightTask.Cancel()
		m.inFlightTask = nil
	}
}

func (m *Manager) onMessage(epoch uint64, data []byte) {
	if epoch != m.epoch || m.state != StateConnected {
		return
	}
	msg, err := m.cfg.Codec.Decode(data)
	if err != nil {
		m.log.Debug("streaming: dropping undecodable message", "error", err)
		m.releaseFrame()
		return
	}

	now := m.sched.Now()
	switch msg.Type {
	case TypeResult, TypeNavigationUpdate:
		latency := time.Duration(0)
		if sent := m.budget.LastSent(); !sent.IsZero() && m.budget.InFlight() {
			latency = now.Sub(sent)
		}
		m.releaseFrame()
		m.events.StreamResult(msg.Type, latency)

		result := command.StreamResult{Type: msg.Type, Payload: msg.Payload, Raw: msg.Raw, Received: now}
		if m.cfg.Filter != nil && !m.cfg.Filter.Allow(now, result.Text()) {
			return
		}
		m.router.OnStreamResult(result)
	case TypeStatus:
		m.releaseFrame()
		m.router.OnStreamStatus(msg.Message)
	case TypeError:
		m.releaseFrame()
		m.router.OnStreamError(msg.Message)
	default:
		m.log.Debug("streaming: unknown message type", "type", msg.Type)
	}
}

func (m *Manager) onClosed(epoch uint64, ce *CloseError) {
	if epoch != m.epoch {
		return
	}
	if ce == nil {
		ce = &CloseError{Code: CloseAbnormal}
	}
	m.stopSession()

	if ce.Normal() {
		m.lastClose = ce
		m.attempts = 0
		m.setState(StateDisconnected, ce.Code, ce.Reason)
		return
	}
	m.fail(ce)
}

// stopSession ends the push loop for the current connection.
func (m *Manager) stopSession() {
	if m.pushTask != nil {
		m.pushTask.Cancel()
		m.pushTask = nil
	}
	if m.inFlightTask != nil {
		m.inFlightTask.Cancel()
		m.inFlightTask = nil
	}
	m.budget.Reset()
	if m.transport != nil {
		_ = m.transport.Close()
		m.transport = nil
	}
}

// fail enters Error and applies the reconnect policy.
func (m *Manager) fail(ce *CloseError) {
	m.lastClose = ce
	m.setState(StateError, ce.Code, ce.Reason)
	m.log.Warn("streaming: connection lost", "code", ce.Code, "reason", ce.Reason, "epoch", m.epoch)
	m.router.OnStreamError(MessageConnectionLost)

	if m.attempts >= m.cfg.MaxReconnectAttempts {
		if m.cfg.MaxReconnectAttempts > 0 {
			m.log.Error("streaming: reconnect attempts exhausted", "attempts", m.attempts)
		}
		return
	}
	delay := calculateBackoff(m.attempts, m.cfg.ReconnectBase, m.cfg.ReconnectMax)
	m.attempts++
	attempt := m.attempts
	m.events.StreamReconnectScheduled(attempt, delay)
	m.log.Info("streaming: reconnect scheduled", "attempt", attempt, "delay", delay)
	m.reconnectTask = m.tasks.AfterFunc(delay, func() {
		m.reconnectTask = nil
		if m.state != StateError {
			return
		}
		m.dial(fmt.Sprintf("reconnect %d", attempt))
	})
}

func (m *Manager) cancelReconnect() {
	if m.reconnectTask != nil {
		m.reconnectTask.Cancel()
		m.reconnectTask = nil
	}
}

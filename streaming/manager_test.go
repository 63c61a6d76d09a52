package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VietHungUET/SightTech/command"
	"github.com/VietHungUET/SightTech/logger"
	"github.com/VietHungUET/SightTech/scheduler"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeTransport struct {
	sent    [][]byte
	closed  int
	sendErr error
}

func (t *fakeTransport) Send(data []byte) error {
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, data)
	return nil
}

func (t *fakeTransport) Close() error {
	t.closed++
	return nil
}

type fakeDialer struct {
	errs       []error
	sinks      []Sink
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(_ context.Context, sink Sink) (Transport, error) {
	n := len(d.sinks)
	d.sinks = append(d.sinks, sink)
	if n < len(d.errs) && d.errs[n] != nil {
		d.transports = append(d.transports, nil)
		return nil, d.errs[n]
	}
	t := &fakeTransport{}
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) dials() int { return len(d.sinks) }

func (d *fakeDialer) last() (Sink, *fakeTransport) {
	i := len(d.sinks) - 1
	return d.sinks[i], d.transports[i]
}

type recordingRouter struct {
	command.RouterFuncs
	results  []command.StreamResult
	statuses []string
	errors   []string
}

func newRecordingRouter() *recordingRouter {
	r := &recordingRouter{}
	r.RouterFuncs = command.RouterFuncs{
		StreamResult: func(res command.StreamResult) { r.results = append(r.results, res) },
		StreamStatus: func(s string) { r.statuses = append(r.statuses, s) },
		StreamError:  func(s string) { r.errors = append(r.errors, s) },
	}
	return r
}

type managerHarness struct {
	sched  *scheduler.Manual
	dialer *fakeDialer
	router *recordingRouter
	frame  []byte
	m      *Manager
}

func newManagerHarness(t *testing.T, cfg Config) *managerHarness {
	t.Helper()
	h := &managerHarness{
		sched:  scheduler.NewManual(t0),
		dialer: &fakeDialer{},
		router: newRecordingRouter(),
		frame:  []byte("jpeg"),
	}
	cfg.Logger = logger.Discard()
	source := FrameSourceFunc(func() ([]byte, bool) { return h.frame, h.frame != nil })
	m, err := NewManager(h.sched, h.dialer, source, h.router, cfg)
	require.NoError(t, err)
	h.m = m
	return h
}

func (h *managerHarness) connect(t *testing.T) *fakeTransport {
	t.Helper()
	require.NoError(t, h.m.Connect())
	assert.Equal(t, StateConnecting, h.m.State())
	h.sched.RunPending()
	require.Equal(t, StateConnected, h.m.State())
	_, tr := h.dialer.last()
	return tr
}

func (h *managerHarness) deliver(msg string) {
	sink, _ := h.dialer.last()
	sink.Message([]byte(msg))
	h.sched.RunPending()
}

func (h *managerHarness) closeWith(code int) {
	sink, _ := h.dialer.last()
	sink.Closed(&CloseError{Code: code})
	h.sched.RunPending()
}

func TestNewManager_Validation(t *testing.T) {
	sched := scheduler.NewManual(t0)
	src := FrameSourceFunc(func() ([]byte, bool) { return nil, false })

	_, err := NewManager(nil, &fakeDialer{}, src, nil, Config{})
	assert.Error(t, err)
	_, err = NewManager(sched, nil, src, nil, Config{})
	assert.Error(t, err)
	_, err = NewManager(sched, &fakeDialer{}, nil, nil, Config{})
	assert.Error(t, err)

	m, err := NewManager(sched, &fakeDialer{}, src, nil, Config{Logger: logger.Discard()})
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, m.State())
	assert.NotEmpty(t, m.SessionID())
}

func TestManager_PushLoopWithBackpressure(t *testing.T) {
	h := newManagerHarness(t, Config{})
	tr := h.connect(t)

	h.sched.Advance(NavigationInterval)
	require.Len(t, tr.sent, 1)

	var frame struct {
		Type      string `json:"type"`
		Data      []byte `json:"data"`
		Timestamp int64  `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(tr.sent[0], &frame))
	assert.Equal(t, TypeFrame, frame.Type)
	assert.Equal(t, []byte("jpeg"), frame.Data)
	assert.Equal(t, t0.Add(NavigationInterval).UnixMilli(), frame.Timestamp)
	assert.Contains(t, string(tr.sent[0]), `"data":"anBlZw=="`)
	assert.True(t, h.m.Snapshot().InFlight)

	h.sched.Advance(5 * NavigationInterval)
	assert.Len(t, tr.sent, 1, "no second frame while one is in flight")

	h.deliver(`{"type":"result","payload":{"description":"a chair ahead"}}`)
	require.Len(t, h.router.results, 1)
	assert.Equal(t, "a chair ahead", h.router.results[0].Text())
	assert.Equal(t, TypeResult, h.router.results[0].Type)
	assert.False(t, h.m.Snapshot().InFlight)

	h.sched.Advance(NavigationInterval)
	assert.Len(t, tr.sent, 2)
}

func TestManager_NoFrameAvailable(t *testing.T) {
	h := newManagerHarness(t, Config{FrameInterval: SceneDescriptionInterval})
	h.frame = nil
	tr := h.connect(t)

	h.sched.Advance(3 * SceneDescriptionInterval)
	assert.Empty(t, tr.sent)
	assert.False(t, h.m.Snapshot().InFlight)

	h.frame = []byte("img")
	h.sched.Advance(SceneDescriptionInterval)
	assert.Len(t, tr.sent, 1)
}

func TestManager_StatusAndErrorMessages(t *testing.T) {
	h := newManagerHarness(t, Config{})
	tr := h.connect(t)
	h.sched.Advance(NavigationInterval)
	require.Len(t, tr.sent, 1)

	h.deliver(`{"type":"status","message":"warming up"}`)
	assert.Equal(t, []string{MessageConnected, "warming up"}, h.router.statuses)
	assert.False(t, h.m.Snapshot().InFlight)

	h.sched.Advance(NavigationInterval)
	require.Len(t, tr.sent, 2)
	h.deliver(`{"type":"error","message":"bad frame"}`)
	assert.Equal(t, []string{"bad frame"}, h.router.errors)
	assert.False(t, h.m.Snapshot().InFlight)
	assert.Equal(t, StateConnected, h.m.State(), "server errors do not close the session")

	h.deliver(`{"type":"mystery"}`)
	h.deliver(`not json`)
	assert.Len(t, h.router.results, 0)
}

func TestManager_NavigationUpdateAndGuidanceFilter(t *testing.T) {
	h := newManagerHarness(t, Config{Filter: NewGuidanceFilter()})
	h.connect(t)

	h.deliver(`{"type":"navigation_update","sidewalk":"Nothing Detected","guidance":"Caution: No sidewalk detected"}`)
	assert.Empty(t, h.router.results, "startup caution suppressed")

	h.deliver(`{"type":"navigation_update","sidewalk":"Left of Sidewalk","guidance":"Move right"}`)
	h.deliver(`{"type":"navigation_update","sidewalk":"Left of Sidewalk","guidance":"Move right"}`)
	require.Len(t, h.router.results, 1, "repeated guidance dropped")
	assert.Equal(t, "Left of Sidewalk", h.router.results[0].Payload["sidewalk"])
	assert.JSONEq(t, `{"type":"navigation_update","sidewalk":"Left of Sidewalk","guidance":"Move right"}`, string(h.router.results[0].Raw))

	h.sched.Advance(DefaultStartupQuiet)
	h.deliver(`{"type":"navigation_update","guidance":"Caution: No sidewalk detected"}`)
	assert.Len(t, h.router.results, 2)
}

func TestManager_InFlightTimeout(t *testing.T) {
	h := newManagerHarness(t, Config{InFlightTimeout: time.Second})
	tr := h.connect(t)

	h.sched.Advance(NavigationInterval)
	require.Len(t, tr.sent, 1)

	h.sched.Advance(time.Second - NavigationInterval)
	assert.Len(t, tr.sent, 1)
	h.sched.Advance(NavigationInterval)
	assert.Len(t, tr.sent, 2, "frame released after timeout")
}

func TestManager_NormalCloseDisconnects(t *testing.T) {
	h := newManagerHarness(t, Config{MaxReconnectAttempts: 3})
	tr := h.connect(t)

	h.closeWith(CloseNormal)
	assert.Equal(t, StateDisconnected, h.m.State())
	assert.Zero(t, h.sched.PendingTimers(), "no reconnect or push timers")
	assert.Empty(t, h.router.errors)
	assert.Equal(t, 1, tr.closed)

	h.sched.Advance(time.Minute)
	assert.Equal(t, 1, h.dialer.dials())
}

func TestManager_AbnormalCloseRequiresExplicitConnect(t *testing.T) {
	h := newManagerHarness(t, Config{})
	h.connect(t)

	h.closeWith(4000)
	assert.Equal(t, StateError, h.m.State())
	assert.Equal(t, []string{MessageConnectionLost}, h.router.errors)
	assert.Zero(t, h.sched.PendingTimers())
	assert.Equal(t, 4000, h.m.Snapshot().LastClose.Code)

	h.sched.Advance(time.Minute)
	assert.Equal(t, 1, h.dialer.dials())

	h.connect(t)
	assert.Equal(t, 2, h.dialer.dials())
	assert.Nil(t, h.m.Snapshot().LastClose)
}

func TestManager_BoundedReconnect(t *testing.T) {
	h := newManagerHarness(t, Config{MaxReconnectAttempts: 2})
	h.connect(t)

	h.closeWith(CloseAbnormal)
	snap := h.m.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.True(t, snap.ReconnectPending)
	assert.Equal(t, 1, snap.ReconnectAttempts)

	h.sched.Advance(DefaultReconnectBase * 5 / 4)
	assert.Equal(t, 2, h.dialer.dials())
	assert.Equal(t, StateConnected, h.m.State())

	h.closeWith(CloseAbnormal)
	h.sched.Advance(DefaultReconnectBase * 2 * 5 / 4)
	assert.Equal(t, 3, h.dialer.dials())

	h.closeWith(CloseAbnormal)
	assert.Equal(t, StateError, h.m.State())
	assert.False(t, h.m.Snapshot().ReconnectPending)
	assert.Zero(t, h.sched.PendingTimers())
	assert.Len(t, h.router.errors, 3)

	h.sched.Advance(time.Hour)
	assert.Equal(t, 3, h.dialer.dials())
}

func TestManager_DialFailure(t *testing.T) {
	h := newManagerHarness(t, Config{MaxReconnectAttempts: 1})
	h.dialer.errs = []error{errors.New("connection refused")}

	require.NoError(t, h.m.Connect())
	h.sched.RunPending()
	assert.Equal(t, StateError, h.m.State())
	assert.Equal(t, []string{MessageConnectionLost}, h.router.errors)

	h.sched.Advance(DefaultReconnectBase * 5 / 4)
	assert.Equal(t, StateConnected, h.m.State())
}

func TestManager_DisconnectCancelsEverything(t *testing.T) {
	h := newManagerHarness(t, Config{InFlightTimeout: time.Second})
	tr := h.connect(t)
	h.sched.Advance(NavigationInterval)
	sink, _ := h.dialer.last()

	h.m.Disconnect()
	assert.Equal(t, StateDisconnected, h.m.State())
	assert.Equal(t, 1, tr.closed)
	assert.Zero(t, h.sched.PendingTimers())

	sink.Message([]byte(`{"type":"result","payload":{"text":"late"}}`))
	sink.Closed(&CloseError{Code: CloseAbnormal})
	h.sched.RunPending()
	assert.Empty(t, h.router.results, "stale message dropped")
	assert.Empty(t, h.router.errors, "stale close ignored")
	assert.Equal(t, StateDisconnected, h.m.State())
}

func TestManager_DisconnectWhileConnecting(t *testing.T) {
	h := newManagerHarness(t, Config{})

	require.NoError(t, h.m.Connect())
	h.m.Disconnect()
	h.sched.RunPending()

	_, tr := h.dialer.last()
	assert.Equal(t, StateDisconnected, h.m.State())
	assert.Equal(t, 1, tr.closed, "late transport closed")
}

func TestManager_StaleRepliesAfterReconnect(t *testing.T) {
	h := newManagerHarness(t, Config{})
	h.connect(t)
	oldSink, _ := h.dialer.last()
	h.sched.Advance(NavigationInterval)

	h.m.Disconnect()
	tr := h.connect(t)
	h.sched.Advance(NavigationInterval)
	require.Len(t, tr.sent, 1)

	oldSink.Message([]byte(`{"type":"result","payload":{"text":"old"}}`))
	h.sched.RunPending()
	assert.Empty(t, h.router.results)
	assert.True(t, h.m.Snapshot().InFlight, "stale reply does not release the new frame")
}

func TestManager_ConnectIsIdempotentAndClose(t *testing.T) {
	h := newManagerHarness(t, Config{})
	h.connect(t)
	require.NoError(t, h.m.Connect())
	h.sched.RunPending()
	assert.Equal(t, 1, h.dialer.dials())

	h.m.Close()
	assert.ErrorIs(t, h.m.Connect(), ErrClosed)
}

func TestManager_SessionNotices(t *testing.T) {
	h := newManagerHarness(t, Config{})
	h.m.Disconnect()
	assert.Empty(t, h.router.statuses, "nothing to stop")

	h.connect(t)
	assert.Equal(t, []string{MessageConnected}, h.router.statuses)

	h.m.Disconnect()
	assert.Equal(t, []string{MessageConnected, MessageStopped}, h.router.statuses)

	h.connect(t)
	h.m.Close()
	assert.Equal(t, []string{MessageConnected, MessageStopped, MessageConnected}, h.router.statuses, "close is silent")
}

func TestManager_SendFailureKeepsBudgetFree(t *testing.T) {
	h := newManagerHarness(t, Config{})
	tr := h.connect(t)
	tr.sendErr = errors.New("broken pipe")

	h.sched.Advance(NavigationInterval)
	assert.False(t, h.m.Snapshot().InFlight)
}

func TestFrameBudget(t *testing.T) {
	b := NewFrameBudget(NavigationInterval)

	assert.Empty(t, b.Check(t0))
	b.MarkSent(t0)
	assert.Equal(t, SkipInFlight, b.Check(t0.Add(time.Second)))

	b.Release()
	assert.Equal(t, SkipRateLimited, b.Check(t0.Add(50*time.Millisecond)))
	assert.Empty(t, b.Check(t0.Add(NavigationInterval)))
	assert.Equal(t, t0, b.LastSent())

	b.Reset()
	assert.False(t, b.InFlight())
	assert.True(t, b.LastSent().IsZero())
}

func TestGuidanceFilter(t *testing.T) {
	f := NewGuidanceFilter()
	f.Reset(t0)

	assert.False(t, f.Allow(t0, ""))
	assert.False(t, f.Allow(t0.Add(time.Second), "CAUTION: No sidewalk detected ahead"))
	assert.True(t, f.Allow(t0.Add(time.Second), "Turn left"))
	assert.False(t, f.Allow(t0.Add(2*time.Second), "Turn left"))
	assert.True(t, f.Allow(t0.Add(5*time.Second), "Caution: No sidewalk detected"))
	assert.True(t, f.Allow(t0.Add(6*time.Second), "Turn left"))
}

func TestCodecs(t *testing.T) {
	_, err := NewCodec("protobuf")
	assert.Error(t, err)

	for _, name := range []string{CodecJSON, CodecMsgpack} {
		t.Run(name, func(t *testing.T) {
			codec, err := NewCodec(name)
			require.NoError(t, err)
			assert.Equal(t, name, codec.Name())
			assert.Equal(t, name == CodecMsgpack, codec.Binary())

			data, err := codec.EncodeFrame(&Frame{Type: TypeFrame, Data: []byte{1, 2}, Timestamp: 42})
			require.NoError(t, err)
			assert.NotEmpty(t, data)
		})
	}

	msg, err := MsgpackCodec{}.Decode(mustMsgpack(t, map[string]any{
		"type":    "result",
		"payload": map[string]any{"description": "a door"},
	}))
	require.NoError(t, err)
	assert.Equal(t, TypeResult, msg.Type)
	assert.Equal(t, "a door", msg.Payload["description"])
	assert.JSONEq(t, `{"type":"result","payload":{"description":"a door"}}`, string(msg.Raw))

	_, err = MsgpackCodec{}.Decode([]byte{0xc1})
	assert.Error(t, err)
}

func TestConnState_String(t *testing.T) {
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "unknown", ConnState(9).String())
}

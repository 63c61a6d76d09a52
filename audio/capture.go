package audio

import (
	"errors"
	"fmt"
	"time"

	"github.com/VietHungUET/SightTech/logger"
	"github.com/VietHungUET/SightTech/scheduler"
)

// Default capture cycle values.
const (
	DefaultWindowDuration = 6 * time.Second
	DefaultSampleRate     = 16000
	DefaultChannels       = 1
)

// ErrCaptureStopped is returned by Resume when the cycle is not active.
var ErrCaptureStopped = errors.New("capture cycle is not active")

// CaptureConfig configures a CaptureCycle.
type CaptureConfig struct {
	// WindowDuration is the fixed length of one capture window.
	WindowDuration time.Duration

	// VAD configures the detector evaluated over each window.
	VAD VADParams

	// OutputActive reports whether speech output is currently playing.
	// Windows that end while it reports true are discarded.
	OutputActive func() bool

	// OnClip receives an accepted clip. The cycle stays paused until Resume
	// or Stop is called.
	OnClip func(Clip)

	// OnLevel receives the loudness of every frame. Optional.
	OnLevel func(level float64)

	// OnReject is called with the detector snapshot of a discarded window. Optional.
	OnReject func(VADSnapshot)

	// Logger receives debug output. Defaults to the global logger.
	Logger logger.Logger
}

// DefaultCaptureConfig returns the capture defaults.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		WindowDuration: DefaultWindowDuration,
		VAD:            DefaultVADParams(),
	}
}

// captureSession is the state held while the microphone is acquired.
type captureSession struct {
	recorder   Recorder
	cycleStart time.Time
	chunks     [][]byte
	size       int
}

func (s *captureSession) reset(now time.Time) {
	s.cycleStart = now
	s.chunks = s.chunks[:0]
	s.size = 0
}

func (s *captureSession) append(frame []byte) {
	s.chunks = append(s.chunks, frame)
	s.size += len(frame)
}

func (s *captureSession) join() []byte {
	out := make([]byte, 0, s.size)
	for _, c := range s.chunks {
		out = append(out, c...)
	}
	return out
}

// CaptureSnapshot describes the cycle for tests and metrics.
type CaptureSnapshot struct {
	Active         bool
	WindowOpen     bool
	AwaitingResume bool
	Chunks         int
	Bytes          int
	VAD            VADSnapshot
}

// CaptureCycle acquires the microphone once and runs repeating fixed-length
// windows over it. Each window is evaluated by the VAD gate when it ends:
// accepted windows are emitted as a Clip and pause the cycle; rejected
// windows are discarded and the next window opens immediately.
//
// All methods must be called on the scheduler thread.
type CaptureCycle struct {
	mic   Microphone
	sched scheduler.Scheduler
	tasks *scheduler.Group
	cfg   CaptureConfig
	log   logger.Logger

	vad     *EnergyVAD
	session *captureSession
	window  scheduler.Task

	// gen is bumped on every Start and Stop so frames delivered by a
	// previous acquisition are ignored.
	gen      uint64
	awaiting bool
}

// NewCaptureCycle creates a capture cycle over mic driven by sched.
func NewCaptureCycle(mic Microphone, sched scheduler.Scheduler, cfg CaptureConfig) (*CaptureCycle, error) {
	if mic == nil {
		return nil, errors.New("microphone is required")
	}
	if sched == nil {
		return nil, errors.New("scheduler is required")
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = DefaultWindowDuration
	}
	if cfg.VAD == (VADParams{}) {
		cfg.VAD = DefaultVADParams()
	}
	cfg.VAD.Format = mic.Format()

	vad, err := NewEnergyVAD(cfg.VAD)
	if err != nil {
		return nil, fmt.Errorf("vad: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	return &CaptureCycle{
		mic:   mic,
		sched: sched,
		tasks: scheduler.NewGroup(sched),
		cfg:   cfg,
		log:   log,
		vad:   vad,
	}, nil
}

// Start acquires the microphone and opens the first window. Calling Start
// while already active is a no-op. Acquisition failures are returned as a
// *DeviceError matching ErrDeviceUnavailable and are not retried.
func (c *CaptureCycle) Start() error {
	if c.session != nil {
		return nil
	}

	c.gen++
	gen := c.gen
	sink := func(frame []byte) {
		buf := make([]byte, len(frame))
		copy(buf, frame)
		c.sched.Post(func() { c.onFrame(gen, buf) })
	}

	rec, err := c.mic.Open(sink)
	if err != nil {
		c.gen++
		return &DeviceError{Device: "microphone", Cause: err}
	}

	c.session = &captureSession{recorder: rec}
	c.awaiting = false
	c.log.Debug("capture started", "window", c.cfg.WindowDuration)
	c.openWindow()
	return nil
}

// Stop releases the microphone, cancels the window timer, and suppresses any
// further emissions. Stop is idempotent.
func (c *CaptureCycle) Stop() {
	c.gen++
	c.tasks.CancelAll()
	c.window = nil
	c.awaiting = false

	if c.session == nil {
		return
	}
	rec := c.session.recorder
	c.session = nil
	if rec != nil {
		if err := rec.Close(); err != nil {
			c.log.Warn("capture: closing recorder failed", "error", err)
		}
	}
	c.vad.Reset()
	c.log.Debug("capture stopped")
}

// Pause closes the current window without evaluating it. The microphone stays
// acquired.
func (c *CaptureCycle) Pause() {
	if c.window != nil {
		c.window.Cancel()
		c.window = nil
	}
	if c.session != nil {
		c.session.reset(c.sched.Now())
	}
}

// Resume opens a new window if the cycle is active and no window is open.
func (c *CaptureCycle) Resume() error {
	if c.session == nil {
		return ErrCaptureStopped
	}
	if c.window != nil {
		return nil
	}
	c.awaiting = false
	c.openWindow()
	return nil
}

// Active reports whether the microphone is acquired.
func (c *CaptureCycle) Active() bool {
	return c.session != nil
}

// WindowOpen reports whether a capture window is currently open.
func (c *CaptureCycle) WindowOpen() bool {
	return c.window != nil
}

// Snapshot returns the current cycle state.
func (c *CaptureCycle) Snapshot() CaptureSnapshot {
	snap := CaptureSnapshot{
		Active:         c.session != nil,
		WindowOpen:     c.window != nil,
		AwaitingResume: c.awaiting,
		VAD:            c.vad.Snapshot(),
	}
	if c.session != nil {
		snap.Chunks = len(c.session.chunks)
		snap.Bytes = c.session.size
	}
	return snap
}

// VADEvents returns the detector's state-change channel.
func (c *CaptureCycle) VADEvents() <-chan VADEvent {
	return c.vad.OnStateChange()
}

func (c *CaptureCycle) openWindow() {
	now := c.sched.Now()
	c.vad.Reset()
	c.session.reset(now)
	c.window = c.tasks.AfterFunc(c.cfg.WindowDuration, c.endWindow)
}

func (c *CaptureCycle) onFrame(gen uint64, frame []byte) {
	if gen != c.gen || c.session == nil || c.window == nil {
		return
	}
	level := c.vad.Observe(c.sched.Now(), frame)
	c.session.append(frame)
	if c.cfg.OnLevel != nil {
		c.cfg.OnLevel(level)
	}
}

func (c *CaptureCycle) endWindow() {
	c.window = nil
	if c.session == nil {
		return
	}

	outputActive := c.cfg.OutputActive != nil && c.cfg.OutputActive()
	if !c.vad.Accept(c.session.size, outputActive) {
		snap := c.vad.Snapshot()
		c.log.Debug("capture window discarded",
			"max_level", snap.MaxLevel,
			"confirmed", snap.SpeechConfirmed,
			"bytes", c.session.size,
			"output_active", outputActive)
		if c.cfg.OnReject != nil {
			c.cfg.OnReject(snap)
		}
		c.openWindow()
		return
	}

	clip := Clip{
		Data:       c.session.join(),
		Format:     c.cfg.VAD.Format,
		SampleRate: c.mic.SampleRate(),
		Channels:   DefaultChannels,
		Started:    c.session.cycleStart,
		Duration:   c.sched.Now().Sub(c.session.cycleStart),
		PeakLevel:  c.vad.Snapshot().MaxLevel,
	}
	c.awaiting = true
	c.log.Debug("capture window accepted", "bytes", len(clip.Data), "peak", clip.PeakLevel)
	if c.cfg.OnClip != nil {
		c.cfg.OnClip(clip)
	}
}

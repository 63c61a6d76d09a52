package audio

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VietHungUET/SightTech/logger"
	"github.com/VietHungUET/SightTech/scheduler"
)

type fakeRecorder struct {
	closed int
}

func (r *fakeRecorder) Close() error {
	r.closed++
	return nil
}

type fakeMic struct {
	openErr  error
	opens    int
	sink     FrameSink
	recorder *fakeRecorder
}

func (m *fakeMic) Open(sink FrameSink) (Recorder, error) {
	m.opens++
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.sink = sink
	m.recorder = &fakeRecorder{}
	return m.recorder, nil
}

func (m *fakeMic) Format() SampleFormat { return FormatPCM16 }
func (m *fakeMic) SampleRate() int      { return DefaultSampleRate }

type captureHarness struct {
	sched  *scheduler.Manual
	mic    *fakeMic
	cycle  *CaptureCycle
	clips  []Clip
	output bool
}

func newCaptureHarness(t *testing.T) *captureHarness {
	t.Helper()
	h := &captureHarness{
		sched: scheduler.NewManual(t0),
		mic:   &fakeMic{},
	}
	cfg := DefaultCaptureConfig()
	cfg.Logger = logger.Discard()
	cfg.OutputActive = func() bool { return h.output }
	cfg.OnClip = func(c Clip) { h.clips = append(h.clips, c) }

	cycle, err := NewCaptureCycle(h.mic, h.sched, cfg)
	require.NoError(t, err)
	h.cycle = cycle
	return h
}

// speak delivers loud frames every 100ms for d.
func (h *captureHarness) speak(d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += 100 * time.Millisecond {
		h.mic.sink(pcmFrame(8000, 160))
		h.sched.Advance(100 * time.Millisecond)
	}
}

func (h *captureHarness) silence(d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += 100 * time.Millisecond {
		h.mic.sink(pcmFrame(0, 160))
		h.sched.Advance(100 * time.Millisecond)
	}
}

func TestNewCaptureCycle_Validation(t *testing.T) {
	sched := scheduler.NewManual(t0)

	_, err := NewCaptureCycle(nil, sched, CaptureConfig{})
	assert.Error(t, err)

	_, err = NewCaptureCycle(&fakeMic{}, nil, CaptureConfig{})
	assert.Error(t, err)

	cfg := DefaultCaptureConfig()
	cfg.VAD.Threshold = 500
	_, err = NewCaptureCycle(&fakeMic{}, sched, cfg)
	assert.Error(t, err)
}

func TestCaptureCycle_StartIsIdempotent(t *testing.T) {
	h := newCaptureHarness(t)

	require.NoError(t, h.cycle.Start())
	require.NoError(t, h.cycle.Start())

	assert.Equal(t, 1, h.mic.opens)
	assert.True(t, h.cycle.Active())
	assert.True(t, h.cycle.WindowOpen())
	assert.Equal(t, 1, h.sched.PendingTimers())
}

func TestCaptureCycle_DeviceUnavailable(t *testing.T) {
	h := newCaptureHarness(t)
	h.mic.openErr = errors.New("permission denied")

	err := h.cycle.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)

	var derr *DeviceError
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Error(), "permission denied")
	assert.False(t, h.cycle.Active())
	assert.Zero(t, h.sched.PendingTimers())
}

func TestCaptureCycle_SpeechWindowEmitsClipAndPauses(t *testing.T) {
	h := newCaptureHarness(t)
	require.NoError(t, h.cycle.Start())

	h.speak(time.Second)
	h.silence(5 * time.Second)

	require.Len(t, h.clips, 1)
	clip := h.clips[0]
	assert.Equal(t, 60*320, len(clip.Data))
	assert.Equal(t, FormatPCM16, clip.Format)
	assert.Equal(t, DefaultSampleRate, clip.SampleRate)
	assert.Equal(t, t0, clip.Started)
	assert.Equal(t, DefaultWindowDuration, clip.Duration)
	assert.Equal(t, 100.0, clip.PeakLevel)

	snap := h.cycle.Snapshot()
	assert.True(t, snap.Active)
	assert.False(t, snap.WindowOpen)
	assert.True(t, snap.AwaitingResume)

	// No further clips while awaiting resume.
	h.speak(7 * time.Second)
	assert.Len(t, h.clips, 1)

	require.NoError(t, h.cycle.Resume())
	assert.True(t, h.cycle.WindowOpen())
	h.speak(6 * time.Second)
	assert.Len(t, h.clips, 2)
}

func TestCaptureCycle_SilentWindowRestarts(t *testing.T) {
	h := newCaptureHarness(t)
	require.NoError(t, h.cycle.Start())

	h.silence(6 * time.Second)
	assert.Empty(t, h.clips)
	assert.True(t, h.cycle.WindowOpen())
	assert.Equal(t, 1, h.sched.PendingTimers())
	assert.Zero(t, h.cycle.Snapshot().Bytes)
}

func TestCaptureCycle_ShortBurstRejected(t *testing.T) {
	h := newCaptureHarness(t)
	require.NoError(t, h.cycle.Start())

	h.speak(400 * time.Millisecond)
	h.silence(5600 * time.Millisecond)
	assert.Empty(t, h.clips)
}

func TestCaptureCycle_OutputActiveDiscardsWindow(t *testing.T) {
	h := newCaptureHarness(t)
	require.NoError(t, h.cycle.Start())

	h.speak(time.Second)
	h.output = true
	h.silence(5 * time.Second)

	assert.Empty(t, h.clips)
	assert.True(t, h.cycle.WindowOpen())
}

func TestCaptureCycle_PauseDropsWindow(t *testing.T) {
	h := newCaptureHarness(t)
	require.NoError(t, h.cycle.Start())

	h.speak(time.Second)
	h.cycle.Pause()
	assert.False(t, h.cycle.WindowOpen())
	assert.Zero(t, h.sched.PendingTimers())

	// Frames arriving while paused are not buffered.
	h.speak(time.Second)
	assert.Zero(t, h.cycle.Snapshot().Bytes)

	require.NoError(t, h.cycle.Resume())
	require.NoError(t, h.cycle.Resume())
	assert.Equal(t, 1, h.sched.PendingTimers())
}

func TestCaptureCycle_StopReleasesAndIgnoresLateFrames(t *testing.T) {
	h := newCaptureHarness(t)
	require.NoError(t, h.cycle.Start())
	h.speak(time.Second)

	staleSink := h.mic.sink
	h.cycle.Stop()

	assert.False(t, h.cycle.Active())
	assert.Equal(t, 1, h.mic.recorder.closed)
	assert.Zero(t, h.sched.PendingTimers())

	staleSink(pcmFrame(8000, 160))
	h.sched.Advance(10 * time.Second)
	assert.Empty(t, h.clips)

	h.cycle.Stop()
	assert.Equal(t, 1, h.mic.recorder.closed)
	assert.ErrorIs(t, h.cycle.Resume(), ErrCaptureStopped)
}

func TestCaptureCycle_RestartIgnoresPreviousSession(t *testing.T) {
	h := newCaptureHarness(t)
	require.NoError(t, h.cycle.Start())
	staleSink := h.mic.sink
	h.cycle.Stop()

	require.NoError(t, h.cycle.Start())
	staleSink(pcmFrame(8000, 160))
	h.sched.RunPending()
	assert.Zero(t, h.cycle.Snapshot().Chunks)

	h.mic.sink(pcmFrame(8000, 160))
	h.sched.RunPending()
	assert.Equal(t, 1, h.cycle.Snapshot().Chunks)
}

func TestClip_WAV(t *testing.T) {
	clip := Clip{Data: pcmFrame(1, 10), Format: FormatPCM16, SampleRate: 16000}
	wav := clip.WAV()

	require.Len(t, wav, wavHeaderSize+20)
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, "data", string(wav[36:40]))
	assert.Equal(t, uint8(1), wav[22], "mono")
	assert.Equal(t, uint8(16), wav[34], "bits per sample")
}

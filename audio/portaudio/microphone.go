//go:build portaudio

package portaudio

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/VietHungUET/SightTech/audio"
	"github.com/VietHungUET/SightTech/logger"
)

const (
	// SampleRate is the capture rate (16kHz for speech).
	SampleRate = 16000
	// Channels is mono audio.
	Channels = 1
	// FramesPerBuffer is 100ms of audio at 16kHz.
	FramesPerBuffer = 1600
)

// Microphone captures PCM16 frames from the default input device.
type Microphone struct {
	initOnce    sync.Once
	initErr     error
	initialized bool
}

// New creates a microphone. PortAudio is initialized lazily on first Open.
func New() *Microphone {
	return &Microphone{}
}

// Format implements audio.Microphone.
func (m *Microphone) Format() audio.SampleFormat {
	return audio.FormatPCM16
}

// SampleRate implements audio.Microphone.
func (m *Microphone) SampleRate() int {
	return SampleRate
}

// Open implements audio.Microphone. Frames are read on a dedicated goroutine
// and delivered to sink until the returned recorder is closed.
func (m *Microphone) Open(sink audio.FrameSink) (audio.Recorder, error) {
	m.initOnce.Do(func() {
		m.initErr = portaudio.Initialize()
		m.initialized = m.initErr == nil
	})
	if m.initErr != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", m.initErr)
	}

	in := make([]int16, FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(Channels, 0, SampleRate, FramesPerBuffer, in)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}

	rec := &recorder{stream: stream, done: make(chan struct{})}
	go rec.loop(in, sink)
	logger.Debug("portaudio: microphone opened", "rate", SampleRate, "frames", FramesPerBuffer)
	return rec, nil
}

// Terminate releases PortAudio. Call once at process exit.
func (m *Microphone) Terminate() error {
	if !m.initialized {
		return nil
	}
	return portaudio.Terminate()
}

type recorder struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	done   chan struct{}
	closed bool
}

func (r *recorder) loop(in []int16, sink audio.FrameSink) {
	buf := make([]byte, len(in)*2)
	for {
		select {
		case <-r.done:
			return
		default:
		}

		r.mu.Lock()
		stream := r.stream
		r.mu.Unlock()
		if stream == nil {
			return
		}

		if err := stream.Read(); err != nil {
			logger.Debug("portaudio: read failed", "error", err)
			continue
		}

		for i, s := range in {
			// #nosec G115 -- signed PCM reinterpretation
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
		}
		sink(buf)
	}
}

// Close stops the stream and ends the read loop.
func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	close(r.done)

	if r.stream == nil {
		return nil
	}
	stream := r.stream
	r.stream = nil
	if err := stream.Stop(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("failed to stop input stream: %w", err)
	}
	return stream.Close()
}

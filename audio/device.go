package audio

import (
	"errors"
	"time"
)

// ErrDeviceUnavailable is returned when the microphone cannot be acquired
// (permission denied or no capture device). It is terminal for the session.
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// DeviceError wraps a platform acquisition failure.
type DeviceError struct {
	Device string
	Cause  error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	if e.Cause != nil {
		return e.Device + " unavailable: " + e.Cause.Error()
	}
	return e.Device + " unavailable"
}

// Unwrap returns the underlying platform error.
func (e *DeviceError) Unwrap() error {
	return e.Cause
}

// Is reports ErrDeviceUnavailable as a match.
func (e *DeviceError) Is(target error) bool {
	return target == ErrDeviceUnavailable
}

// FrameSink receives raw sample frames from a capture device. Implementations
// call it from their own goroutine and may reuse the slice afterwards.
type FrameSink func(frame []byte)

// Recorder is an open capture stream. Close releases the device.
type Recorder interface {
	Close() error
}

// Microphone is the platform capture primitive.
type Microphone interface {
	// Open acquires the device and starts delivering frames to sink.
	Open(sink FrameSink) (Recorder, error)

	// Format returns the sample encoding the device delivers.
	Format() SampleFormat

	// SampleRate returns the device sample rate in Hz.
	SampleRate() int
}

// Clip is the audio captured during one accepted window.
type Clip struct {
	Data       []byte
	Format     SampleFormat
	SampleRate int
	Channels   int
	Started    time.Time
	Duration   time.Duration
	PeakLevel  float64
}

// WAV returns the clip wrapped in a WAV container.
func (c Clip) WAV() []byte {
	channels := c.Channels
	if channels == 0 {
		channels = 1
	}
	return WrapPCMAsWAV(c.Data, c.SampleRate, channels, c.Format.BitsPerSample())
}

package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Default VAD parameter values.
const (
	DefaultVADThreshold         = 10.0
	DefaultVADMinSpeechDuration = 500 * time.Millisecond
	DefaultVADSilenceFrames     = 3

	// DefaultGainU8 scales the RMS deviation of unsigned 8-bit samples.
	DefaultGainU8 = 10.0
	// DefaultGainPCM16 scales normalized 16-bit RMS onto the same 0-100 range
	// as DefaultGainU8 (10 * 128).
	DefaultGainPCM16 = 1280.0

	// MaxLoudness caps the loudness scale.
	MaxLoudness = 100.0
)

const (
	u8ZeroPoint        = 128.0
	pcmBytesPerSample  = 2
	pcmMaxAmplitude    = 32768.0
	unknownStateString = "unknown"
)

// SampleFormat describes how raw sample bytes are encoded.
type SampleFormat int

const (
	// FormatPCM16 is signed 16-bit little-endian PCM (zero point 0).
	FormatPCM16 SampleFormat = iota
	// FormatU8 is unsigned 8-bit samples centred on 128.
	FormatU8
)

// String returns the format name.
func (f SampleFormat) String() string {
	switch f {
	case FormatPCM16:
		return "pcm16"
	case FormatU8:
		return "u8"
	default:
		return unknownStateString
	}
}

// BitsPerSample returns the sample width in bits.
func (f SampleFormat) BitsPerSample() int {
	if f == FormatU8 {
		return 8
	}
	return 16
}

// DefaultGain returns the gain that maps the format onto the 0-100 scale.
func (f SampleFormat) DefaultGain() float64 {
	if f == FormatU8 {
		return DefaultGainU8
	}
	return DefaultGainPCM16
}

// Loudness computes min(100, rms(samples) * gain), where rms is the
// root-mean-square deviation from the format's zero point.
func Loudness(samples []byte, format SampleFormat, gain float64) float64 {
	var sumSquares float64
	var n int

	switch format {
	case FormatU8:
		for _, b := range samples {
			d := float64(b) - u8ZeroPoint
			sumSquares += d * d
		}
		n = len(samples)
	default:
		n = len(samples) / pcmBytesPerSample
		for i := 0; i < n; i++ {
			// #nosec G115 -- overflow is intentional for signed PCM conversion
			sample := int16(binary.LittleEndian.Uint16(samples[i*pcmBytesPerSample:]))
			normalized := float64(sample) / pcmMaxAmplitude
			sumSquares += normalized * normalized
		}
	}

	if n == 0 {
		return 0
	}
	rms := math.Sqrt(sumSquares / float64(n))
	return math.Min(MaxLoudness, rms*gain)
}

// VADState represents what the detector currently hears.
type VADState int

const (
	// VADStateQuiet indicates no speech run is in progress.
	VADStateQuiet VADState = iota
	// VADStateStarting indicates loud input shorter than MinSpeechDuration.
	VADStateStarting
	// VADStateSpeaking indicates loud input held for at least MinSpeechDuration.
	VADStateSpeaking
)

// String returns a human-readable representation of the VAD state.
func (s VADState) String() string {
	switch s {
	case VADStateQuiet:
		return "quiet"
	case VADStateStarting:
		return "starting"
	case VADStateSpeaking:
		return "speaking"
	default:
		return unknownStateString
	}
}

// VADParams configures voice activity detection behavior.
type VADParams struct {
	// Threshold is the loudness (0-100) a sample must exceed to count as speech.
	Threshold float64

	// MinSpeechDuration is how long loud input must persist before speech is confirmed.
	MinSpeechDuration time.Duration

	// SilenceFrames is the number of consecutive quiet samples that end a speech run.
	// Single noisy dips shorter than this do not reset the run.
	SilenceFrames int

	// Gain is the loudness scale factor. Zero selects Format.DefaultGain().
	Gain float64

	// Format is the raw sample encoding.
	Format SampleFormat
}

// DefaultVADParams returns the detector defaults.
func DefaultVADParams() VADParams {
	return VADParams{
		Threshold:         DefaultVADThreshold,
		MinSpeechDuration: DefaultVADMinSpeechDuration,
		SilenceFrames:     DefaultVADSilenceFrames,
		Format:            FormatPCM16,
	}
}

// Validate checks that VAD parameters are within acceptable ranges.
func (p VADParams) Validate() error {
	if p.Threshold < 0 || p.Threshold > MaxLoudness {
		return &ValidationError{Field: "Threshold", Message: "must be between 0 and 100"}
	}
	if p.MinSpeechDuration < 0 {
		return &ValidationError{Field: "MinSpeechDuration", Message: "must be non-negative"}
	}
	if p.SilenceFrames <= 0 {
		return &ValidationError{Field: "SilenceFrames", Message: "must be positive"}
	}
	if p.Gain < 0 {
		return &ValidationError{Field: "Gain", Message: "must be non-negative"}
	}
	if p.Format != FormatPCM16 && p.Format != FormatU8 {
		return &ValidationError{Field: "Format", Message: "must be pcm16 or u8"}
	}
	return nil
}

func (p VADParams) gain() float64 {
	if p.Gain > 0 {
		return p.Gain
	}
	return p.Format.DefaultGain()
}

// ValidationError represents a parameter validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Message
}

// VADEvent represents a state transition in the detector.
type VADEvent struct {
	State     VADState
	PrevState VADState
	Timestamp time.Time
	Level     float64 // Loudness at transition
}

// VADSnapshot is the per-window detector state.
type VADSnapshot struct {
	MaxLevel        float64
	SpeechStart     time.Time // zero when no speech run is in progress
	SpeechConfirmed bool
	SilenceCount    int
}

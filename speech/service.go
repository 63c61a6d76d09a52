package speech

import (
	"context"
	"io"
)

// Service speaks text and blocks until playback has finished or ctx is done.
type Service interface {
	// Name returns the provider identifier (for logging/debugging).
	Name() string

	// Speak plays text. It returns ctx.Err() when cancelled mid-utterance.
	Speak(ctx context.Context, text string) error
}

// Playback is one utterance in progress.
type Playback interface {
	// Cancel stops playback. The completion callback is not invoked after
	// Cancel returns.
	Cancel()
}

// Output is the callback form of Service used on the scheduler thread.
type Output interface {
	// Speak starts playing text and calls done on the scheduler thread when
	// playback ends, with a non-nil error if it failed.
	Speak(text string, done func(error)) Playback
}

// SynthesisConfig configures text-to-speech synthesis.
type SynthesisConfig struct {
	// Voice is the voice ID to use for synthesis.
	Voice string

	// Speed is the speech rate multiplier (0.25-4.0, default 1.0).
	Speed float64

	// Model is the provider-specific TTS model.
	Model string

	// Language is the language code for synthesis (e.g., "en-US").
	Language string
}

// DefaultSynthesisConfig returns the synthesis defaults.
func DefaultSynthesisConfig() SynthesisConfig {
	return SynthesisConfig{
		Voice: VoiceAlloy,
		Speed: 1.0,
		Model: ModelTTS1,
	}
}

// Synthesizer converts text to raw 16-bit PCM audio.
type Synthesizer interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize returns a reader of PCM audio. The caller closes it.
	Synthesize(ctx context.Context, text string, config SynthesisConfig) (io.ReadCloser, error)

	// SampleRate returns the rate of the audio Synthesize produces.
	SampleRate() int
}

// AudioSink plays PCM audio and blocks until it has been played.
type AudioSink interface {
	Play(ctx context.Context, pcm io.Reader, sampleRate int) error
}

// SynthesizedService speaks by synthesizing audio and playing it on a sink.
type SynthesizedService struct {
	synth  Synthesizer
	sink   AudioSink
	config SynthesisConfig
}

// NewSynthesizedService creates a Service from a synthesizer and a sink.
func NewSynthesizedService(synth Synthesizer, sink AudioSink, config SynthesisConfig) *SynthesizedService {
	return &SynthesizedService{synth: synth, sink: sink, config: config}
}

// Name implements Service.
func (s *SynthesizedService) Name() string {
	return s.synth.Name()
}

// Speak implements Service.
func (s *SynthesizedService) Speak(ctx context.Context, text string) error {
	if text == "" {
		return ErrEmptyText
	}
	audio, err := s.synth.Synthesize(ctx, text, s.config)
	if err != nil {
		return err
	}
	defer audio.Close()
	return s.sink.Play(ctx, audio, s.synth.SampleRate())
}

//go:build portaudio

package portaudio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/gordonklaus/portaudio"
)

// OutputFramesPerBuffer is 40ms of audio at 24kHz.
const OutputFramesPerBuffer = 960

// Speaker plays PCM16 audio on the default output device. It implements
// speech.AudioSink.
type Speaker struct{}

// NewSpeaker creates a speaker. PortAudio must already be initialized, which
// Microphone.Open does.
func NewSpeaker() *Speaker {
	return &Speaker{}
}

// Play writes pcm to the output device until it is exhausted or ctx is done.
func (s *Speaker) Play(ctx context.Context, pcm io.Reader, sampleRate int) error {
	out := make([]int16, OutputFramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, Channels, float64(sampleRate), OutputFramesPerBuffer, out)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	defer func() { _ = stream.Stop() }()

	buf := make([]byte, len(out)*2)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := io.ReadFull(pcm, buf)
		if n == 0 && readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return readErr
		}
		for i := range out {
			if i*2+1 < n {
				// #nosec G115 -- signed PCM reinterpretation
				out[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
			} else {
				out[i] = 0
			}
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("failed to write output stream: %w", err)
		}
		if readErr != nil {
			return nil
		}
	}
}

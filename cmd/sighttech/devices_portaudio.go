//go:build portaudio

package main

import (
	"fmt"

	gpa "github.com/gordonklaus/portaudio"

	"github.com/VietHungUET/SightTech/audio/portaudio"
	"github.com/VietHungUET/SightTech/config"
)

// openDevices opens PortAudio capture and playback. The speaker needs
// PortAudio initialized before the first capture, so it is initialized here
// and released by close.
func openDevices(spec config.AudioSpec) (*devices, error) {
	if spec.Device == config.DeviceNone {
		return noDevices(), nil
	}
	if err := gpa.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	mic := portaudio.New()
	return &devices{
		mic:  mic,
		sink: portaudio.NewSpeaker(),
		close: func() error {
			_ = mic.Terminate()
			return gpa.Terminate()
		},
	}, nil
}

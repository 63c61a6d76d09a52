//go:build !portaudio

package main

import (
	"github.com/VietHungUET/SightTech/config"
	"github.com/VietHungUET/SightTech/logger"
)

// openDevices returns the headless device set. Build with -tags portaudio
// for real capture and playback.
func openDevices(spec config.AudioSpec) (*devices, error) {
	if spec.Device == config.DevicePortAudio {
		logger.Warn("sighttech: built without portaudio; microphone unavailable")
	}
	return noDevices(), nil
}

package main

import (
	"errors"

	"github.com/VietHungUET/SightTech/audio"
	"github.com/VietHungUET/SightTech/speech"
)

var errNoCaptureDevice = errors.New("no capture device configured")

// devices is the platform audio in use.
type devices struct {
	mic   audio.Microphone
	sink  speech.AudioSink
	close func() error
}

func noDevices() *devices {
	return &devices{
		mic:   unavailableMicrophone{},
		close: func() error { return nil },
	}
}

// unavailableMicrophone always fails to open, which the coordinator reports
// as "Microphone unavailable".
type unavailableMicrophone struct{}

func (unavailableMicrophone) Open(audio.FrameSink) (audio.Recorder, error) {
	return nil, &audio.DeviceError{Device: "microphone", Cause: errNoCaptureDevice}
}

func (unavailableMicrophone) Format() audio.SampleFormat { return audio.FormatPCM16 }

func (unavailableMicrophone) SampleRate() int { return 16000 }

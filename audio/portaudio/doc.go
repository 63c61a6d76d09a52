// Package portaudio implements audio.Microphone and speech.AudioSink on top
// of PortAudio.
//
// The implementation requires the PortAudio C library and is only compiled
// with the "portaudio" build tag:
//
//	go build -tags portaudio ./cmd/sighttech
package portaudio

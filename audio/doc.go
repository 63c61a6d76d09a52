// Package audio provides voice activity detection and the fixed-window
// microphone capture cycle used by the turn-taking coordinator.
//
// # Architecture
//
// The package is built from three layers:
//
//   - Loudness / EnergyVAD: converts raw samples into a 0-100 loudness value
//     and applies speech/silence hysteresis over one capture window.
//   - Microphone: the platform capture primitive. Implementations deliver raw
//     frames on their own goroutine; see the portaudio subpackage.
//   - CaptureCycle: holds one microphone acquisition, runs repeating windows,
//     and emits a Clip when a window ends with confirmed speech.
//
// CaptureCycle is driven by a scheduler.Scheduler and is not safe for
// concurrent use; every method must run on the scheduler thread.
//
// # Usage
//
//	cycle, err := audio.NewCaptureCycle(mic, loop, audio.CaptureConfig{
//		OnClip: func(clip audio.Clip) { ... },
//	})
//	if err != nil {
//		return err
//	}
//	if err := cycle.Start(); err != nil {
//		// errors.Is(err, audio.ErrDeviceUnavailable)
//	}
package audio

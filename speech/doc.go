// Package speech provides the text-to-speech output the turn coordinator
// guards.
//
// # Architecture
//
// The package provides:
//   - Service: blocking speech that returns when playback has finished
//   - Output / Playback: the callback form used on the scheduler thread
//   - Player: adapts a Service to Output by running it on a worker
//   - SynthesizedService: an HTTP Synthesizer piped into an AudioSink
//   - ConsoleService: headless speech that prints text and waits for an
//     estimated duration
//
// # Usage
//
//	player := speech.NewPlayer(loop, speech.NewConsoleService(os.Stdout))
//	playback := player.Speak("Navigating to News", func(err error) {
//	    // runs on the scheduler thread
//	})
//	playback.Cancel()
package speech

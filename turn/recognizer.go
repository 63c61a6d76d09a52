package turn

import (
	"fmt"
	"time"
)

// Recognizer restart delays.
const (
	DefaultRecognizerRetryDelay   = 1000 * time.Millisecond
	DefaultRecognizerRestartDelay = 500 * time.Millisecond
)

// Recognizer error codes that end recognition for the session.
const (
	RecognitionAborted      = "aborted"
	RecognitionAudioCapture = "audio-capture"
	RecognitionNotAllowed   = "not-allowed"
)

// RecognizerEvents receives recognizer callbacks. Implementations may call
// them from any goroutine.
type RecognizerEvents struct {
	// Result delivers one final recognized fragment.
	Result func(text string)
	// Error reports a recognition failure by code.
	Error func(code string)
	// End reports that recognition stopped on its own.
	End func()
}

// Recognizer is a continuous platform speech recognizer.
type Recognizer interface {
	Start(events RecognizerEvents) error
	Stop()
}

// RecognitionError reports a recognizer failure.
type RecognitionError struct {
	Code  string
	Fatal bool
}

// Error implements the error interface.
func (e *RecognitionError) Error() string {
	if e.Fatal {
		return fmt.Sprintf("speech recognition failed: %s", e.Code)
	}
	return fmt.Sprintf("speech recognition interrupted: %s", e.Code)
}

// NewRecognitionError classifies code as transient or fatal.
func NewRecognitionError(code string) *RecognitionError {
	switch code {
	case RecognitionAborted, RecognitionAudioCapture, RecognitionNotAllowed:
		return &RecognitionError{Code: code, Fatal: true}
	default:
		return &RecognitionError{Code: code}
	}
}

// startRecognizer starts continuous recognition if a recognizer is
// configured. Callbacks from a previous start are ignored.
func (c *Coordinator) startRecognizer() {
	if c.recognizer == nil || c.recRunning {
		return
	}
	c.recGen++
	gen := c.recGen
	events := RecognizerEvents{
		Result: func(text string) {
			c.sched.Post(func() { c.onRecognizerResult(gen, text) })
		},
		Error: func(code string) {
			c.sched.Post(func() { c.onRecognizerError(gen, code) })
		},
		End: func() {
			c.sched.Post(func() { c.onRecognizerEnd(gen) })
		},
	}
	if err := c.recognizer.Start(events); err != nil {
		c.log.Warn("turn: recognizer start failed", "error", err)
		c.scheduleRecognizerRestart(c.cfg.RecognizerRetryDelay)
		return
	}
	c.recRunning = true
}

func (c *Coordinator) stopRecognizer() {
	c.recGen++
	if c.recRestart != nil {
		c.recRestart.Cancel()
		c.recRestart = nil
	}
	if c.recognizer != nil && c.recRunning {
		c.recRunning = false
		c.recognizer.Stop()
	}
}

func (c *Coordinator) onRecognizerResult(gen uint64, text string) {
	if gen != c.recGen {
		return
	}
	c.debouncer.AddFragment(text)
}

func (c *Coordinator) onRecognizerError(gen uint64, code string) {
	if gen != c.recGen {
		return
	}
	rerr := NewRecognitionError(code)
	c.recRunning = false
	if rerr.Fatal {
		_ = c.fatal(rerr, StatusVoiceUnavailable, announceVoiceFailure)
		return
	}
	c.log.Debug("turn: recognizer interrupted", "code", code)
	c.scheduleRecognizerRestart(c.cfg.RecognizerRetryDelay)
}

func (c *Coordinator) onRecognizerEnd(gen uint64) {
	if gen != c.recGen {
		return
	}
	c.recRunning = false
	if c.recRestart != nil {
		return
	}
	c.scheduleRecognizerRestart(c.cfg.RecognizerRestartDelay)
}

func (c *Coordinator) scheduleRecognizerRestart(d time.Duration) {
	if !c.active || c.recRestart != nil {
		return
	}
	c.recRestart = c.tasks.AfterFunc(d, func() {
		c.recRestart = nil
		if !c.active || (c.state != StateListening && c.state != StateProcessing) {
			return
		}
		c.startRecognizer()
	})
}

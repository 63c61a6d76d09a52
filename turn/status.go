package turn

import "time"

// DefaultStatusResetDelay is how long a transient status stays visible.
const DefaultStatusResetDelay = 10 * time.Second

// Status texts.
const (
	StatusIdle             = "Say a command..."
	StatusListening        = "Listening..."
	StatusProcessing       = "Processing..."
	StatusNoSpeech         = "No speech detected"
	StatusCommandError     = "Error processing command"
	StatusMicUnavailable   = "Microphone unavailable"
	StatusVoiceUnavailable = "Voice recognition unavailable"
)

// Spoken announcements for errors.
const (
	announceCommandError   = "Sorry, I could not process that command."
	announceMicUnavailable = "Microphone access is not available."
	announceVoiceFailure   = "Voice recognition stopped working."
)

// neutralStatus is the status shown when nothing transient is displayed.
func (c *Coordinator) neutralStatus() string {
	if c.active {
		return StatusListening
	}
	return StatusIdle
}

// setStatus publishes status to the router. A transient status reverts to
// the neutral text after StatusResetDelay.
func (c *Coordinator) setStatus(status string, transient bool) {
	if c.statusTask != nil {
		c.statusTask.Cancel()
		c.statusTask = nil
	}
	if status != c.status {
		c.status = status
		c.router.OnStatus(status)
	}
	if !transient {
		return
	}
	c.statusTask = c.tasks.AfterFunc(c.cfg.StatusResetDelay, func() {
		c.statusTask = nil
		c.setStatus(c.neutralStatus(), false)
	})
}

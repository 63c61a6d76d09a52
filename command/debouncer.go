package command

import (
	"strings"
	"time"

	"github.com/VietHungUET/SightTech/logger"
	"github.com/VietHungUET/SightTech/scheduler"
)

// DefaultSilenceWindow is how long the debouncer waits after the last
// fragment before delivering the utterance.
const DefaultSilenceWindow = 2000 * time.Millisecond

// FragmentResult describes what AddFragment did with a fragment.
type FragmentResult int

const (
	// FragmentIgnored means the fragment was empty or arrived during speech output.
	FragmentIgnored FragmentResult = iota
	// FragmentBuffered means the fragment was appended to the pending utterance.
	FragmentBuffered
	// FragmentDispatched means the fragment was an immediate directive.
	FragmentDispatched
)

// String returns the result name.
func (r FragmentResult) String() string {
	switch r {
	case FragmentIgnored:
		return "ignored"
	case FragmentBuffered:
		return "buffered"
	case FragmentDispatched:
		return "dispatched"
	default:
		return "unknown"
	}
}

// DebouncerConfig configures a Debouncer.
type DebouncerConfig struct {
	// SilenceWindow is the quiet period that ends an utterance.
	SilenceWindow time.Duration

	// Classifier recognizes immediate directives. Nil disables the bypass.
	Classifier Classifier

	// OutputActive reports whether speech output is playing. Fragments
	// arriving while it reports true are dropped.
	OutputActive func() bool

	// Router receives utterances and directives.
	Router Router

	Logger logger.Logger
}

// Debouncer assembles recognized text fragments into one logical utterance.
// It must only be used from the scheduler thread.
type Debouncer struct {
	cfg   DebouncerConfig
	sched scheduler.Scheduler
	tasks *scheduler.Group
	log   logger.Logger

	buffer   []string
	deadline time.Time
	timer    scheduler.Task
}

// NewDebouncer creates a debouncer driven by sched.
func NewDebouncer(sched scheduler.Scheduler, cfg DebouncerConfig) *Debouncer {
	if cfg.SilenceWindow <= 0 {
		cfg.SilenceWindow = DefaultSilenceWindow
	}
	if cfg.Router == nil {
		cfg.Router = RouterFuncs{}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Debouncer{
		cfg:   cfg,
		sched: sched,
		tasks: scheduler.NewGroup(sched),
		log:   log,
	}
}

// AddFragment feeds one recognized fragment.
func (d *Debouncer) AddFragment(text string) FragmentResult {
	text = strings.TrimSpace(text)
	if text == "" {
		return FragmentIgnored
	}
	if d.cfg.OutputActive != nil && d.cfg.OutputActive() {
		d.log.Debug("debouncer: fragment dropped during speech output", "fragment", text)
		return FragmentIgnored
	}

	if d.cfg.Classifier != nil {
		if directive, ok := d.cfg.Classifier.Directive(text); ok {
			d.Dispatch(directive)
			return FragmentDispatched
		}
	}

	d.buffer = append(d.buffer, text)
	d.deadline = d.sched.Now().Add(d.cfg.SilenceWindow)
	if d.timer != nil {
		d.timer.Cancel()
	}
	d.timer = d.tasks.AfterFunc(d.cfg.SilenceWindow, d.Flush)
	return FragmentBuffered
}

// Dispatch discards any pending text and delivers directive immediately.
func (d *Debouncer) Dispatch(directive Directive) {
	if discarded := d.Pending(); discarded != "" {
		d.log.Debug("debouncer: pending text discarded by directive", "text", discarded)
	}
	d.Reset()
	d.log.Debug("debouncer: directive", "directive", directive.String())
	d.cfg.Router.OnDirective(directive)
}

// Flush delivers the pending utterance, if any, and clears it.
func (d *Debouncer) Flush() {
	text := d.Pending()
	d.Reset()
	if text == "" {
		return
	}
	d.cfg.Router.OnUtterance(text)
}

// Reset cancels the flush timer and discards pending text without delivery.
func (d *Debouncer) Reset() {
	d.tasks.CancelAll()
	d.timer = nil
	d.buffer = d.buffer[:0]
	d.deadline = time.Time{}
}

// Pending returns the text accumulated so far.
func (d *Debouncer) Pending() string {
	return strings.Join(d.buffer, " ")
}

// Deadline returns when the pending utterance will be flushed. It is zero
// when nothing is pending.
func (d *Debouncer) Deadline() time.Time {
	return d.deadline
}

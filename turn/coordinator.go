// Package turn implements the half-duplex turn-taking coordinator. It owns the
// microphone and speaker handles and decides, at every moment, whether the
// runtime is listening, thinking, or talking.
//
// The coordinator is driven by a scheduler.Scheduler and must only be used
// from the scheduler thread. Device frames, interpreter replies, recognizer
// callbacks, and speech completions are all posted back onto that thread.
package turn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/VietHungUET/SightTech/audio"
	"github.com/VietHungUET/SightTech/command"
	"github.com/VietHungUET/SightTech/events"
	"github.com/VietHungUET/SightTech/interpret"
	"github.com/VietHungUET/SightTech/logger"
	"github.com/VietHungUET/SightTech/resource"
	"github.com/VietHungUET/SightTech/scheduler"
	"github.com/VietHungUET/SightTech/speech"
)

// Default timings.
const (
	DefaultCooldownDelay    = 1000 * time.Millisecond
	DefaultInterpretTimeout = 30 * time.Second
	DefaultMaxQueuedSpeech  = 3
)

// owner is the name the coordinator acquires resources under.
const owner = "turn-coordinator"

// ErrEmptyText is returned by Say for empty text.
var ErrEmptyText = errors.New("nothing to say")

// Config configures a Coordinator.
type Config struct {
	// Feature is the current feature tag sent with every interpretation.
	Feature string

	CooldownDelay          time.Duration
	StatusResetDelay       time.Duration
	RecognizerRetryDelay   time.Duration
	RecognizerRestartDelay time.Duration
	InterpretTimeout       time.Duration

	// MaxQueuedSpeech bounds the texts waiting behind the current utterance.
	MaxQueuedSpeech int

	// Capture configures the capture cycle. OutputActive and OnClip are
	// set by the coordinator.
	Capture audio.CaptureConfig

	// Debounce configures the fragment debouncer. OutputActive and Router
	// are set by the coordinator.
	Debounce command.DebouncerConfig

	Logger logger.Logger
	Events *events.Emitter
}

// DefaultConfig returns the coordinator defaults.
func DefaultConfig() Config {
	return Config{
		CooldownDelay:          DefaultCooldownDelay,
		StatusResetDelay:       DefaultStatusResetDelay,
		RecognizerRetryDelay:   DefaultRecognizerRetryDelay,
		RecognizerRestartDelay: DefaultRecognizerRestartDelay,
		InterpretTimeout:       DefaultInterpretTimeout,
		MaxQueuedSpeech:        DefaultMaxQueuedSpeech,
		Capture:                audio.DefaultCaptureConfig(),
		Debounce: command.DebouncerConfig{
			SilenceWindow: command.DefaultSilenceWindow,
			Classifier:    command.DefaultGrammar(),
		},
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.CooldownDelay <= 0 {
		c.CooldownDelay = d.CooldownDelay
	}
	if c.StatusResetDelay <= 0 {
		c.StatusResetDelay = d.StatusResetDelay
	}
	if c.RecognizerRetryDelay <= 0 {
		c.RecognizerRetryDelay = d.RecognizerRetryDelay
	}
	if c.RecognizerRestartDelay <= 0 {
		c.RecognizerRestartDelay = d.RecognizerRestartDelay
	}
	if c.InterpretTimeout <= 0 {
		c.InterpretTimeout = d.InterpretTimeout
	}
	if c.MaxQueuedSpeech <= 0 {
		c.MaxQueuedSpeech = d.MaxQueuedSpeech
	}
	if c.Logger == nil {
		c.Logger = logger.Default()
	}
}

// Deps are the coordinator's collaborators.
type Deps struct {
	Microphone  audio.Microphone
	Output      speech.Output
	Interpreter interpret.Interpreter
	Router      command.Router

	// Recognizer is an optional continuous recognizer feeding the debouncer.
	Recognizer Recognizer

	// Mic and Speaker are the exclusive device handles. New handles are
	// created when nil.
	Mic     *resource.Exclusive
	Speaker *resource.Exclusive
}

// Snapshot describes the coordinator for tests and status displays.
type Snapshot struct {
	State       State
	Active      bool
	Status      string
	Feature     string
	TurnID      string
	MicHeld     bool
	SpeakerHeld bool
	Queued      int
	Capturing   bool
}

// Coordinator is the turn-taking state machine.
type Coordinator struct {
	cfg    Config
	sched  scheduler.Scheduler
	tasks  *scheduler.Group
	log    logger.Logger
	events *events.Emitter

	mic        *resource.Exclusive
	speaker    *resource.Exclusive
	capture    *audio.CaptureCycle
	debouncer  *command.Debouncer
	output     speech.Output
	interp     interpret.Interpreter
	recognizer Recognizer
	router     command.Router

	state   State
	active  bool
	status  string
	feature string
	turnID  string
	lastErr error

	statusTask   scheduler.Task
	cooldownTask scheduler.Task

	// speech
	playback    speech.Playback
	speechGen   uint64
	speechStart time.Time
	queue       []string

	// interpretation
	interpEpoch  uint64
	interpCancel context.CancelFunc

	// recognizer
	recGen     uint64
	recRunning bool
	recRestart scheduler.Task
}

// New creates a coordinator in the Idle state.
func New(sched scheduler.Scheduler, deps Deps, cfg Config) (*Coordinator, error) {
	if sched == nil {
		return nil, errors.New("scheduler is required")
	}
	if deps.Output == nil {
		return nil, errors.New("speech output is required")
	}
	if deps.Interpreter == nil {
		return nil, errors.New("interpreter is required")
	}
	cfg.applyDefaults()

	c := &Coordinator{
		cfg:        cfg,
		sched:      sched,
		tasks:      scheduler.NewGroup(sched),
		log:        cfg.Logger,
		events:     cfg.Events,
		mic:        deps.Mic,
		speaker:    deps.Speaker,
		output:     deps.Output,
		interp:     deps.Interpreter,
		recognizer: deps.Recognizer,
		router:     deps.Router,
		feature:    cfg.Feature,
		status:     StatusIdle,
	}
	if c.router == nil {
		c.router = command.RouterFuncs{}
	}
	if c.mic == nil {
		c.mic = resource.NewExclusive("microphone")
	}
	if c.speaker == nil {
		c.speaker = resource.NewExclusive("speaker")
	}

	capCfg := cfg.Capture
	capCfg.OutputActive = c.OutputActive
	capCfg.OnClip = c.handleClip
	capCfg.OnReject = func(snap audio.VADSnapshot) {
		c.events.ClipRejected(snap.MaxLevel, snap.SpeechConfirmed)
	}
	if capCfg.Logger == nil {
		capCfg.Logger = cfg.Logger
	}
	capture, err := audio.NewCaptureCycle(deps.Microphone, sched, capCfg)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	c.capture = capture

	debCfg := cfg.Debounce
	debCfg.OutputActive = c.OutputActive
	debCfg.Router = command.RouterFuncs{
		Utterance: c.deliverUtterance,
		Directive: c.deliverDirective,
	}
	if debCfg.Logger == nil {
		debCfg.Logger = cfg.Logger
	}
	c.debouncer = command.NewDebouncer(sched, debCfg)

	return c, nil
}

// State returns the current turn state.
func (c *Coordinator) State() State {
	return c.state
}

// Active reports whether the user has asked the coordinator to listen.
func (c *Coordinator) Active() bool {
	return c.active
}

// OutputActive reports whether speech output is playing or has just ended.
// Audio captured in that window is never treated as input.
func (c *Coordinator) OutputActive() bool {
	return c.state == StateSpeaking || c.state == StateCooldown
}

// Err returns the last terminal error, if any.
func (c *Coordinator) Err() error {
	return c.lastErr
}

// Debouncer returns the fragment debouncer.
func (c *Coordinator) Debouncer() *command.Debouncer {
	return c.debouncer
}

// SetFeature changes the feature tag sent with interpretations.
func (c *Coordinator) SetFeature(feature string) {
	c.feature = feature
}

// Snapshot returns the current coordinator state.
func (c *Coordinator) Snapshot() Snapshot {
	return Snapshot{
		State:       c.state,
		Active:      c.active,
		Status:      c.status,
		Feature:     c.feature,
		TurnID:      c.turnID,
		MicHeld:     c.mic.HeldBy(owner),
		SpeakerHeld: c.speaker.HeldBy(owner),
		Queued:      len(c.queue),
		Capturing:   c.capture.Active(),
	}
}

// Start begins listening. While a turn is in progress Start only marks the
// coordinator active; listening begins when the turn ends.
func (c *Coordinator) Start() error {
	c.active = true
	if c.state != StateIdle {
		return nil
	}
	return c.enterListening("start")
}

// Stop cancels every scheduled task, interpretation, and utterance and
// returns to Idle with both devices released.
func (c *Coordinator) Stop() {
	c.active = false
	c.teardown("stop")
	c.setStatus(StatusIdle, false)
}

// Toggle starts when idle and stops otherwise.
func (c *Coordinator) Toggle() error {
	if c.state == StateIdle && !c.active {
		return c.Start()
	}
	c.Stop()
	return nil
}

// Say speaks text through the guarded output. Text submitted while speaking
// or processing is queued and played afterwards.
func (c *Coordinator) Say(text string) error {
	if text == "" {
		return ErrEmptyText
	}
	switch c.state {
	case StateSpeaking, StateProcessing:
		c.enqueue(text)
		return nil
	default:
		return c.speak(text, "announce")
	}
}

// enqueue appends text to the speech queue. When the queue is full the
// oldest pending text is dropped.
func (c *Coordinator) enqueue(text string) {
	if n := len(c.queue); n > 0 && c.queue[n-1] == text {
		return
	}
	if len(c.queue) >= c.cfg.MaxQueuedSpeech {
		c.log.Debug("turn: speech queue full, dropping oldest", "dropped", c.queue[0])
		c.queue = c.queue[1:]
	}
	c.queue = append(c.queue, text)
}

// ReportError shows status as a transient error and speaks announcement.
// It serves errors raised outside the turn cycle, such as a lost stream.
func (c *Coordinator) ReportError(status, announcement string) {
	c.log.Warn("turn: error reported", "status", status)
	c.setStatus(status, true)
	if announcement == "" {
		return
	}
	if err := c.Say(announcement); err != nil {
		c.log.Warn("turn: error announcement failed", "error", err)
	}
}

func (c *Coordinator) transition(to State, reason string) error {
	from := c.state
	if !CanTransition(from, to) {
		err := &TransitionError{From: from, To: to, Reason: reason}
		c.log.Warn("turn: transition rejected", "from", from.String(), "to", to.String(), "reason", reason)
		c.events.TurnTransitionRejected(c.turnID, from.String(), to.String(), reason)
		return err
	}
	c.state = to
	c.log.Debug("turn: transition", "from", from.String(), "to", to.String(), "reason", reason, "turn_id", c.turnID)
	c.events.TurnTransitioned(c.turnID, from.String(), to.String(), reason)
	return nil
}

// enterListening acquires the microphone and opens capture.
func (c *Coordinator) enterListening(reason string) error {
	if !c.active {
		return nil
	}
	if err := c.transition(StateListening, reason); err != nil {
		return err
	}
	if err := c.mic.Acquire(owner); err != nil {
		return c.fatal(fmt.Errorf("microphone: %w", err), StatusMicUnavailable, announceMicUnavailable)
	}
	if err := c.capture.Start(); err != nil {
		return c.fatal(err, StatusMicUnavailable, announceMicUnavailable)
	}
	c.startRecognizer()
	c.turnID = ""
	c.setStatus(StatusListening, false)
	return nil
}

// resumeListening returns from Processing with the microphone still held.
func (c *Coordinator) resumeListening(reason string) {
	if !c.active || !c.mic.HeldBy(owner) {
		return
	}
	if err := c.transition(StateListening, reason); err != nil {
		return
	}
	if err := c.capture.Resume(); err != nil {
		c.log.Warn("turn: resume capture failed", "error", err)
	}
	c.turnID = ""
}

// releaseMicrophone stops capture and recognition and frees the microphone.
func (c *Coordinator) releaseMicrophone() {
	c.capture.Stop()
	c.stopRecognizer()
	if c.mic.HeldBy(owner) {
		_ = c.mic.Release(owner)
	}
}

func (c *Coordinator) teardown(reason string) {
	c.tasks.CancelAll()
	c.statusTask = nil
	c.cooldownTask = nil
	c.recRestart = nil
	c.debouncer.Reset()
	c.cancelInterpretation()

	c.speechGen++
	if c.playback != nil {
		c.playback.Cancel()
		c.playback = nil
	}
	c.queue = nil
	if c.speaker.HeldBy(owner) {
		_ = c.speaker.Release(owner)
	}

	c.releaseMicrophone()
	if c.state != StateIdle {
		_ = c.transition(StateIdle, reason)
	}
	c.turnID = ""
}

// fatal reports a terminal error: the coordinator goes Idle and inactive,
// shows status, and speaks announcement.
func (c *Coordinator) fatal(err error, status, announcement string) error {
	c.lastErr = err
	c.active = false
	c.log.Error("turn: terminal error", "error", err)
	c.teardown("error")
	c.setStatus(status, true)
	if announcement != "" {
		_ = c.speak(announcement, "error")
	}
	return err
}

// speak moves to Speaking, releasing the microphone first, and starts output.
func (c *Coordinator) speak(text, reason string) error {
	if c.state == StateListening || c.state == StateProcessing {
		c.cancelInterpretation()
		c.releaseMicrophone()
	}
	if c.state == StateCooldown && c.cooldownTask != nil {
		c.cooldownTask.Cancel()
		c.cooldownTask = nil
	}
	if err := c.transition(StateSpeaking, reason); err != nil {
		return err
	}
	if err := c.speaker.Acquire(owner); err != nil {
		c.log.Error("turn: speaker unavailable", "error", err)
		c.finishSpeaking(err)
		return err
	}
	c.playText(text)
	return nil
}

func (c *Coordinator) playText(text string) {
	c.speechGen++
	gen := c.speechGen
	c.speechStart = c.sched.Now()
	c.events.SpeechStarted(c.turnID, text)
	c.log.Debug("turn: speaking", "text", text)
	c.playback = c.output.Speak(text, func(err error) {
		c.onSpeechDone(gen, err)
	})
}

func (c *Coordinator) onSpeechDone(gen uint64, err error) {
	if gen != c.speechGen || c.state != StateSpeaking {
		return
	}
	c.playback = nil
	c.events.SpeechCompleted(c.turnID, c.sched.Now().Sub(c.speechStart), err)
	if err != nil {
		c.log.Warn("turn: speech output failed", "error", err)
	}

	if len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		c.playText(next)
		return
	}
	c.finishSpeaking(err)
}

// finishSpeaking releases the speaker and waits out the cooldown.
func (c *Coordinator) finishSpeaking(_ error) {
	if c.speaker.HeldBy(owner) {
		_ = c.speaker.Release(owner)
	}
	if err := c.transition(StateCooldown, "speech finished"); err != nil {
		return
	}
	c.cooldownTask = c.tasks.AfterFunc(c.cfg.CooldownDelay, c.endCooldown)
}

func (c *Coordinator) endCooldown() {
	c.cooldownTask = nil
	if c.state != StateCooldown {
		return
	}
	if len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		_ = c.speak(next, "queued")
		return
	}
	if !c.active {
		_ = c.transition(StateIdle, "cooldown")
		c.setStatus(c.neutralStatus(), false)
		return
	}
	_ = c.enterListening("cooldown")
}

// handleClip receives an accepted capture window.
func (c *Coordinator) handleClip(clip audio.Clip) {
	if c.state != StateListening {
		return
	}
	c.turnID = uuid.NewString()
	if err := c.transition(StateProcessing, "clip accepted"); err != nil {
		return
	}
	c.events.ClipAccepted(c.turnID, len(clip.Data), clip.Duration, clip.PeakLevel)
	c.setStatus(StatusProcessing, false)

	c.interpEpoch++
	epoch := c.interpEpoch
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.InterpretTimeout)
	ctx = logger.WithTurnID(ctx, c.turnID)
	ctx = logger.WithFeature(ctx, c.feature)
	c.interpCancel = cancel

	feature := c.feature
	started := c.sched.Now()
	c.sched.Go(func() {
		result, err := c.interp.Interpret(ctx, clip, feature)
		c.sched.Post(func() {
			c.handleInterpretation(epoch, started, result, err)
		})
	})
}

func (c *Coordinator) cancelInterpretation() {
	c.interpEpoch++
	if c.interpCancel != nil {
		c.interpCancel()
		c.interpCancel = nil
	}
}

func (c *Coordinator) handleInterpretation(epoch uint64, started time.Time, result *interpret.Result, err error) {
	if epoch != c.interpEpoch || c.state != StateProcessing {
		return
	}
	if c.interpCancel != nil {
		c.interpCancel()
		c.interpCancel = nil
	}
	elapsed := c.sched.Now().Sub(started)

	if err == nil && result == nil {
		err = errors.New("interpreter returned no result")
	}
	if errors.Is(err, interpret.ErrEmptyTranscript) {
		err = nil
		result = &interpret.Result{}
	}
	if err != nil {
		c.events.InterpretFailed(c.turnID, c.feature, err, elapsed)
		c.log.Warn("turn: interpretation failed", "error", err, "turn_id", c.turnID)
		c.setStatus(StatusCommandError, true)
		_ = c.speak(announceCommandError, "interpret error")
		return
	}

	c.events.InterpretCompleted(c.turnID, c.feature, string(result.Kind()), result.Confidence, elapsed)

	text := result.Text()
	if text == "" {
		c.setStatus(StatusNoSpeech, true)
		c.afterProcessing("no speech")
		return
	}

	if d, ok := c.directive(result); ok {
		c.debouncer.Dispatch(d)
		if c.interrupted(epoch) {
			return
		}
		if d.Kind == command.IntentNavigate {
			c.feature = d.Name
			_ = c.speak(command.Announcement(d.Name), "navigate")
			return
		}
		c.afterProcessing("action")
		return
	}

	c.debouncer.AddFragment(text)
	if c.interrupted(epoch) {
		return
	}
	c.afterProcessing("fragment")
}

// directive returns the routable directive in result. A navigation to an
// unknown feature is not routable.
func (c *Coordinator) directive(result *interpret.Result) (command.Directive, bool) {
	d, ok := result.Directive()
	if !ok || d.Kind != command.IntentNavigate {
		return d, ok
	}
	f, known := command.LookupFeature(d.Name)
	if !known {
		c.log.Debug("turn: navigation to unknown feature ignored", "feature", d.Name)
		return command.Directive{}, false
	}
	d.Name = f.Name
	return d, true
}

// interrupted reports whether a router callback stopped or restarted the
// coordinator while the interpretation from epoch was being delivered.
func (c *Coordinator) interrupted(epoch uint64) bool {
	return epoch != c.interpEpoch || c.state != StateProcessing
}

// afterProcessing returns to Listening, or plays speech queued while the
// interpreter was busy.
func (c *Coordinator) afterProcessing(reason string) {
	if len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		_ = c.speak(next, "queued")
		return
	}
	c.resumeListening(reason)
	if c.status == StatusProcessing {
		c.setStatus(StatusListening, false)
	}
}

func (c *Coordinator) deliverUtterance(text string) {
	c.events.UtteranceDelivered(text)
	c.router.OnUtterance(text)
}

func (c *Coordinator) deliverDirective(d command.Directive) {
	c.events.DirectiveDispatched(c.turnID, &events.CommandData{
		Kind:       string(d.Kind),
		Name:       d.Name,
		Target:     d.Target,
		Text:       d.Text,
		Confidence: d.Confidence,
	})
	c.router.OnDirective(d)
}

package events

import "time"

// Emitter provides helpers for publishing runtime events with shared metadata.
// A nil Emitter is valid and publishes nothing.
type Emitter struct {
	bus       *EventBus
	sessionID string
	now       func() time.Time
}

// NewEmitter creates a new event emitter. now supplies event timestamps and
// defaults to time.Now.
func NewEmitter(bus *EventBus, sessionID string, now func() time.Time) *Emitter {
	if now == nil {
		now = time.Now
	}
	return &Emitter{bus: bus, sessionID: sessionID, now: now}
}

// SessionID returns the session the emitter stamps on events.
func (e *Emitter) SessionID() string {
	if e == nil {
		return ""
	}
	return e.sessionID
}

func (e *Emitter) emit(eventType EventType, turnID string, data EventData) {
	if e == nil || e.bus == nil {
		return
	}
	e.bus.Publish(&Event{
		Type:      eventType,
		Timestamp: e.now(),
		SessionID: e.sessionID,
		TurnID:    turnID,
		Data:      data,
	})
}

// TurnTransitioned emits the turn.transitioned event.
func (e *Emitter) TurnTransitioned(turnID, from, to, reason string) {
	e.emit(EventTurnTransitioned, turnID, &TurnTransitionData{From: from, To: to, Reason: reason})
}

// TurnTransitionRejected emits the turn.transition_rejected event.
func (e *Emitter) TurnTransitionRejected(turnID, from, to, reason string) {
	e.emit(EventTurnTransitionRejected, turnID, &TurnTransitionData{From: from, To: to, Reason: reason})
}

// ClipAccepted emits the capture.clip_accepted event.
func (e *Emitter) ClipAccepted(turnID string, bytes int, duration time.Duration, peak float64) {
	e.emit(EventClipAccepted, turnID, &ClipData{Bytes: bytes, Duration: duration, PeakLevel: peak, Confirmed: true})
}

// ClipRejected emits the capture.clip_rejected event.
func (e *Emitter) ClipRejected(peak float64, confirmed bool) {
	e.emit(EventClipRejected, "", &ClipData{PeakLevel: peak, Confirmed: confirmed})
}

// InterpretCompleted emits the interpret.completed event.
func (e *Emitter) InterpretCompleted(turnID, feature, intent string, confidence float64, duration time.Duration) {
	e.emit(EventInterpretCompleted, turnID, &InterpretData{
		Feature:    feature,
		Intent:     intent,
		Confidence: confidence,
		Duration:   duration,
	})
}

// InterpretFailed emits the interpret.failed event.
func (e *Emitter) InterpretFailed(turnID, feature string, err error, duration time.Duration) {
	e.emit(EventInterpretFailed, turnID, &InterpretData{Feature: feature, Error: err, Duration: duration})
}

// UtteranceDelivered emits the command.utterance event.
func (e *Emitter) UtteranceDelivered(text string) {
	e.emit(EventUtteranceDelivered, "", &CommandData{Kind: "utterance", Text: text})
}

// DirectiveDispatched emits the command.directive event.
func (e *Emitter) DirectiveDispatched(turnID string, data *CommandData) {
	if data == nil {
		return
	}
	e.emit(EventDirectiveDispatched, turnID, data)
}

// SpeechStarted emits the speech.started event.
func (e *Emitter) SpeechStarted(turnID, text string) {
	e.emit(EventSpeechStarted, turnID, &SpeechData{Text: text})
}

// SpeechCompleted emits the speech.completed event.
func (e *Emitter) SpeechCompleted(turnID string, duration time.Duration, err error) {
	e.emit(EventSpeechCompleted, turnID, &SpeechData{Duration: duration, Error: err})
}

// StreamStateChanged emits the stream.state_changed event.
func (e *Emitter) StreamStateChanged(data *StreamStateData) {
	if data == nil {
		return
	}
	e.emit(EventStreamStateChanged, "", data)
}

// StreamFrameSent emits the stream.frame_sent event.
func (e *Emitter) StreamFrameSent(bytes int) {
	e.emit(EventStreamFrameSent, "", &StreamFrameData{Bytes: bytes})
}

// StreamFrameSkipped emits the stream.frame_skipped event.
func (e *Emitter) StreamFrameSkipped(reason string) {
	e.emit(EventStreamFrameSkipped, "", &StreamFrameData{Reason: reason})
}

// StreamResult emits the stream.result event.
func (e *Emitter) StreamResult(messageType string, latency time.Duration) {
	e.emit(EventStreamResult, "", &StreamResultData{MessageType: messageType, Latency: latency})
}

// StreamReconnectScheduled emits the stream.reconnect_scheduled event.
func (e *Emitter) StreamReconnectScheduled(attempt int, delay time.Duration) {
	e.emit(EventStreamReconnectScheduled, "", &StreamReconnectData{Attempt: attempt, Delay: delay})
}

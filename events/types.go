package events

import "time"

// EventType identifies the type of event emitted by the runtime.
type EventType string

const (
	// EventTurnTransitioned marks a turn state change.
	EventTurnTransitioned EventType = "turn.transitioned"
	// EventTurnTransitionRejected marks a transition the state table refused.
	EventTurnTransitionRejected EventType = "turn.transition_rejected"

	// EventClipAccepted marks a capture window that passed the VAD gate.
	EventClipAccepted EventType = "capture.clip_accepted"
	// EventClipRejected marks a capture window that was discarded.
	EventClipRejected EventType = "capture.clip_rejected"

	// EventInterpretCompleted marks a successful interpretation request.
	EventInterpretCompleted EventType = "interpret.completed"
	// EventInterpretFailed marks a failed interpretation request.
	EventInterpretFailed EventType = "interpret.failed"

	// EventUtteranceDelivered marks a debounced utterance routed to the page.
	EventUtteranceDelivered EventType = "command.utterance"
	// EventDirectiveDispatched marks a directive routed to the page.
	EventDirectiveDispatched EventType = "command.directive"

	// EventSpeechStarted marks the start of speech output.
	EventSpeechStarted EventType = "speech.started"
	// EventSpeechCompleted marks the end of speech output.
	EventSpeechCompleted EventType = "speech.completed"

	// EventStreamStateChanged marks a streaming connection state change.
	EventStreamStateChanged EventType = "stream.state_changed"
	// EventStreamFrameSent marks a frame pushed on the stream.
	EventStreamFrameSent EventType = "stream.frame_sent"
	// EventStreamFrameSkipped marks a push tick that sent nothing.
	EventStreamFrameSkipped EventType = "stream.frame_skipped"
	// EventStreamResult marks a result message received on the stream.
	EventStreamResult EventType = "stream.result"
	// EventStreamReconnectScheduled marks a scheduled reconnect attempt.
	EventStreamReconnectScheduled EventType = "stream.reconnect_scheduled"
)

// EventData is a marker interface for event payloads.
type EventData interface {
	eventData()
}

// Event represents a runtime event delivered to listeners.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	TurnID    string
	Data      EventData
}

// baseEventData provides a shared marker implementation for all event payloads.
type baseEventData struct{}

func (baseEventData) eventData() {}

// TurnTransitionData contains data for turn transition events.
type TurnTransitionData struct {
	baseEventData
	From   string
	To     string
	Reason string
}

// ClipData contains data for capture window events.
type ClipData struct {
	baseEventData
	Bytes     int
	Duration  time.Duration
	PeakLevel float64
	Confirmed bool
}

// InterpretData contains data for interpretation events.
type InterpretData struct {
	baseEventData
	Feature    string
	Intent     string
	Confidence float64
	Duration   time.Duration
	Error      error
}

// CommandData contains data for routed command events.
type CommandData struct {
	baseEventData
	Kind       string
	Name       string
	Target     string
	Text       string
	Confidence float64
}

// SpeechData contains data for speech output events.
type SpeechData struct {
	baseEventData
	Text     string
	Duration time.Duration
	Error    error
}

// StreamStateData contains data for streaming state changes.
type StreamStateData struct {
	baseEventData
	From      string
	To        string
	Epoch     uint64
	CloseCode int
	Reason    string
}

// StreamFrameData contains data for frame push events.
type StreamFrameData struct {
	baseEventData
	Bytes  int
	Reason string
}

// StreamResultData contains data for stream result events.
type StreamResultData struct {
	baseEventData
	MessageType string
	Latency     time.Duration
}

// StreamReconnectData contains data for reconnect scheduling events.
type StreamReconnectData struct {
	baseEventData
	Attempt int
	Delay   time.Duration
}

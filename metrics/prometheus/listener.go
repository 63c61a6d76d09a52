package prometheus

import (
	"github.com/VietHungUET/SightTech/events"
)

// Status constants for metric labels.
const (
	statusSuccess = "success"
	statusError   = "error"
)

// MetricsListener records runtime events as Prometheus metrics. Register it
// with EventBus.SubscribeAll.
type MetricsListener struct{}

// NewMetricsListener creates a new MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// Handle processes an event and records relevant metrics.
func (l *MetricsListener) Handle(event *events.Event) {
	switch data := event.Data.(type) {
	case *events.TurnTransitionData:
		if event.Type == events.EventTurnTransitionRejected {
			RecordRejectedTransition(data.From, data.To)
			return
		}
		RecordTransition(data.From, data.To)
	case *events.ClipData:
		RecordClip(event.Type == events.EventClipAccepted, data.Bytes)
	case *events.InterpretData:
		status := statusSuccess
		if event.Type == events.EventInterpretFailed {
			status = statusError
		}
		RecordInterpretation(status, data.Intent, data.Duration.Seconds())
	case *events.CommandData:
		RecordCommand(data.Kind)
	case *events.SpeechData:
		l.handleSpeech(event, data)
	case *events.StreamStateData:
		RecordStreamState(data.To)
	case *events.StreamFrameData:
		if event.Type == events.EventStreamFrameSent {
			RecordStreamFrame("sent")
			return
		}
		RecordStreamFrame(data.Reason)
	case *events.StreamResultData:
		RecordStreamResult(data.MessageType, data.Latency.Seconds())
	case *events.StreamReconnectData:
		RecordStreamReconnect()
	}
}

func (l *MetricsListener) handleSpeech(event *events.Event, data *events.SpeechData) {
	if event.Type != events.EventSpeechCompleted {
		return
	}
	status := statusSuccess
	if data.Error != nil {
		status = statusError
	}
	RecordSpeech(status, data.Duration.Seconds())
}

// Listener returns an events.Listener for EventBus registration.
func (l *MetricsListener) Listener() events.Listener {
	return l.Handle
}

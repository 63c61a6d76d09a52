package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/VietHungUET/SightTech/events"
)

// Span names produced by the listener.
const (
	SpanSession   = "sighttech.session"
	SpanTurn      = "sighttech.turn"
	SpanInterpret = "sighttech.interpret"
	SpanSpeech    = "sighttech.speech"
	SpanStream    = "sighttech.stream"
)

// spanEntry tracks an in-flight span and its context.
type spanEntry struct {
	span trace.Span
	ctx  context.Context //nolint:containedctx // needed to parent child spans
}

// pendingEnd buffers a span completion that arrived before the corresponding start.
// The EventBus dispatches on a worker pool, so completion events can race
// ahead of start events.
type pendingEnd struct {
	errMsg string
	attrs  []attribute.KeyValue
}

// OTelEventListener converts runtime events into OTel spans.
// Turns and stream connections become long-lived spans; interpretation and
// speech become child spans back-dated by their reported duration.
// It is safe for concurrent use and tolerates out-of-order event delivery.
type OTelEventListener struct {
	tracer trace.Tracer

	mu          sync.Mutex
	sessions    map[string]*spanEntry
	inflight    map[string]*spanEntry
	pendingEnds map[string]*pendingEnd
}

// NewOTelEventListener creates a listener that creates OTel spans from runtime events.
func NewOTelEventListener(tracer trace.Tracer) *OTelEventListener {
	return &OTelEventListener{
		tracer:      tracer,
		sessions:    make(map[string]*spanEntry),
		inflight:    make(map[string]*spanEntry),
		pendingEnds: make(map[string]*pendingEnd),
	}
}

// StartSession creates a root span for the given session, optionally parented
// under the span context in parentCtx.
func (l *OTelEventListener) StartSession(parentCtx context.Context, sessionID string) {
	ctx, span := l.tracer.Start(parentCtx, SpanSession,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	l.mu.Lock()
	l.sessions[sessionID] = &spanEntry{span: span, ctx: ctx}
	l.mu.Unlock()
}

// EndSession ends every open span and then the root span for the session.
func (l *OTelEventListener) EndSession(sessionID string) {
	l.mu.Lock()
	root, ok := l.sessions[sessionID]
	delete(l.sessions, sessionID)
	open := l.inflight
	l.inflight = make(map[string]*spanEntry)
	l.pendingEnds = make(map[string]*pendingEnd)
	l.mu.Unlock()

	for _, entry := range open {
		entry.span.SetStatus(codes.Unset, "session ended")
		entry.span.End()
	}
	if ok {
		root.span.End()
	}
}

// OnEvent handles a single runtime event. It can be passed to
// EventBus.SubscribeAll.
func (l *OTelEventListener) OnEvent(evt *events.Event) {
	//nolint:exhaustive // Only handling span-producing events
	switch evt.Type {
	case events.EventClipAccepted:
		l.startTurn(evt)
	case events.EventTurnTransitioned:
		l.handleTransition(evt)
	case events.EventInterpretCompleted, events.EventInterpretFailed:
		l.recordInterpret(evt)
	case events.EventSpeechCompleted:
		l.recordSpeech(evt)
	case events.EventDirectiveDispatched:
		l.recordDirective(evt)
	case events.EventStreamStateChanged:
		l.handleStreamState(evt)
	case events.EventStreamResult:
		l.recordStreamResult(evt)
	case events.EventStreamReconnectScheduled:
		l.recordReconnect(evt)
	}
}

// parentCtx returns the context of the span stored under key, falling back
// to the session root and then to context.Background.
func (l *OTelEventListener) parentCtx(sessionID, key string) context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.inflight[key]; ok && key != "" {
		return entry.ctx
	}
	if root, ok := l.sessions[sessionID]; ok {
		return root.ctx
	}
	return context.Background()
}

// startSpan starts a span parented under the session root and stores it in inflight.
// A buffered completion ends it immediately.
func (l *OTelEventListener) startSpan(
	evt *events.Event, key, name string, kind trace.SpanKind, attrs ...attribute.KeyValue,
) {
	ctx, span := l.tracer.Start(l.parentCtx(evt.SessionID, ""), name,
		trace.WithSpanKind(kind),
		trace.WithTimestamp(evt.Timestamp),
		trace.WithAttributes(attrs...),
	)
	l.mu.Lock()
	pe, havePending := l.pendingEnds[key]
	if havePending {
		delete(l.pendingEnds, key)
	} else {
		l.inflight[key] = &spanEntry{span: span, ctx: ctx}
	}
	l.mu.Unlock()

	if havePending {
		finish(span, evt.Timestamp, pe.errMsg, pe.attrs...)
	}
}

// endSpan ends an inflight span. When buffer is set and the span has not
// started yet, the completion is kept for startSpan.
func (l *OTelEventListener) endSpan(
	key string, at time.Time, errMsg string, buffer bool, attrs ...attribute.KeyValue,
) {
	l.mu.Lock()
	entry, ok := l.inflight[key]
	if ok {
		delete(l.inflight, key)
	} else if buffer {
		l.pendingEnds[key] = &pendingEnd{errMsg: errMsg, attrs: attrs}
	}
	l.mu.Unlock()
	if ok {
		finish(entry.span, at, errMsg, attrs...)
	}
}

// addEvent records a span event on the span stored under key, if any.
func (l *OTelEventListener) addEvent(key, name string, at time.Time, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	entry, ok := l.inflight[key]
	l.mu.Unlock()
	if ok {
		entry.span.AddEvent(name, trace.WithTimestamp(at), trace.WithAttributes(attrs...))
	}
}

// recordChild creates an already-finished child span covering duration
// up to the event timestamp.
func (l *OTelEventListener) recordChild(
	evt *events.Event, parentKey, name string, kind trace.SpanKind,
	duration time.Duration, err error, attrs ...attribute.KeyValue,
) {
	_, span := l.tracer.Start(l.parentCtx(evt.SessionID, parentKey), name,
		trace.WithSpanKind(kind),
		trace.WithTimestamp(evt.Timestamp.Add(-duration)),
		trace.WithAttributes(attrs...),
	)
	errMsg := ""
	if err != nil {
		span.RecordError(err)
		errMsg = err.Error()
	}
	finish(span, evt.Timestamp, errMsg)
}

func finish(span trace.Span, at time.Time, errMsg string, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	if errMsg != "" {
		span.SetStatus(codes.Error, errMsg)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(at))
}

// asPtr extracts event data as a pointer, handling both value and pointer types.
func asPtr[T any](data any) (*T, bool) {
	if p, ok := data.(*T); ok {
		return p, true
	}
	if v, ok := data.(T); ok {
		return &v, true
	}
	return nil, false
}

func turnKey(turnID string) string { return "turn:" + turnID }

func streamKey(sessionID string) string { return "stream:" + sessionID }

// --- Turn ---

func (l *OTelEventListener) startTurn(evt *events.Event) {
	if evt.TurnID == "" {
		return
	}
	data, _ := asPtr[events.ClipData](evt.Data)
	attrs := []attribute.KeyValue{attribute.String("turn.id", evt.TurnID)}
	if data != nil {
		attrs = append(attrs,
			attribute.Int("clip.bytes", data.Bytes),
			attribute.Int64("clip.duration_ms", data.Duration.Milliseconds()),
			attribute.Float64("clip.peak_level", data.PeakLevel),
		)
	}
	l.startSpan(evt, turnKey(evt.TurnID), SpanTurn, trace.SpanKindInternal, attrs...)
}

// handleTransition ends the turn span once the coordinator is back to
// listening or idle.
func (l *OTelEventListener) handleTransition(evt *events.Event) {
	data, ok := asPtr[events.TurnTransitionData](evt.Data)
	if !ok || evt.TurnID == "" {
		return
	}
	l.addEvent(turnKey(evt.TurnID), "transition", evt.Timestamp,
		attribute.String("turn.from", data.From),
		attribute.String("turn.to", data.To),
		attribute.String("turn.reason", data.Reason),
	)
	if data.To != "listening" && data.To != "idle" {
		return
	}
	errMsg := ""
	if data.Reason == "error" {
		errMsg = "turn ended with error"
	}
	l.endSpan(turnKey(evt.TurnID), evt.Timestamp, errMsg, true,
		attribute.String("turn.end_state", data.To),
	)
}

func (l *OTelEventListener) recordInterpret(evt *events.Event) {
	data, ok := asPtr[events.InterpretData](evt.Data)
	if !ok {
		return
	}
	l.recordChild(evt, turnKey(evt.TurnID), SpanInterpret, trace.SpanKindClient, data.Duration, data.Error,
		attribute.String("interpret.feature", data.Feature),
		attribute.String("interpret.intent", data.Intent),
		attribute.Float64("interpret.confidence", data.Confidence),
	)
}

func (l *OTelEventListener) recordSpeech(evt *events.Event) {
	data, ok := asPtr[events.SpeechData](evt.Data)
	if !ok {
		return
	}
	l.recordChild(evt, turnKey(evt.TurnID), SpanSpeech, trace.SpanKindInternal, data.Duration, data.Error,
		attribute.Int64("speech.duration_ms", data.Duration.Milliseconds()),
	)
}

func (l *OTelEventListener) recordDirective(evt *events.Event) {
	data, ok := asPtr[events.CommandData](evt.Data)
	if !ok {
		return
	}
	l.addEvent(turnKey(evt.TurnID), "directive", evt.Timestamp,
		attribute.String("command.kind", data.Kind),
		attribute.String("command.name", data.Name),
		attribute.String("command.target", data.Target),
	)
}

// --- Stream ---

// handleStreamState opens a stream span on connect and closes it when the
// connection leaves the connected state.
func (l *OTelEventListener) handleStreamState(evt *events.Event) {
	data, ok := asPtr[events.StreamStateData](evt.Data)
	if !ok {
		return
	}
	key := streamKey(evt.SessionID)
	if data.To == "connected" {
		l.startSpan(evt, key, SpanStream, trace.SpanKindClient,
			attribute.Int64("stream.epoch", int64(data.Epoch)), //nolint:gosec // epochs stay small
		)
		return
	}
	if data.From != "connected" {
		return
	}
	errMsg := ""
	if data.To == "error" {
		errMsg = data.Reason
		if errMsg == "" {
			errMsg = "connection lost"
		}
	}
	l.endSpan(key, evt.Timestamp, errMsg, false,
		attribute.Int("stream.close_code", data.CloseCode),
		attribute.String("stream.end_state", data.To),
	)
}

func (l *OTelEventListener) recordStreamResult(evt *events.Event) {
	data, ok := asPtr[events.StreamResultData](evt.Data)
	if !ok {
		return
	}
	l.addEvent(streamKey(evt.SessionID), "result", evt.Timestamp,
		attribute.String("stream.message_type", data.MessageType),
		attribute.Int64("stream.latency_ms", data.Latency.Milliseconds()),
	)
}

func (l *OTelEventListener) recordReconnect(evt *events.Event) {
	data, ok := asPtr[events.StreamReconnectData](evt.Data)
	if !ok {
		return
	}
	root := l.parentCtx(evt.SessionID, "")
	trace.SpanFromContext(root).AddEvent("stream.reconnect_scheduled",
		trace.WithTimestamp(evt.Timestamp),
		trace.WithAttributes(
			attribute.Int("stream.attempt", data.Attempt),
			attribute.Int64("stream.delay_ms", data.Delay.Milliseconds()),
		),
	)
}

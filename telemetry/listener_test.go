package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/VietHungUET/SightTech/events"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestListener(t *testing.T) (*OTelEventListener, *tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	return NewOTelEventListener(tp.Tracer(InstrumentationName)), exp, tp
}

// flushAndGetSpans reads spans before Shutdown, which resets the exporter.
func flushAndGetSpans(t *testing.T, tp *sdktrace.TracerProvider, exp *tracetest.InMemoryExporter) tracetest.SpanStubs {
	t.Helper()
	require.NoError(t, tp.ForceFlush(context.Background()))
	spans := exp.GetSpans()
	require.NoError(t, tp.Shutdown(context.Background()))
	return spans
}

func findSpan(t *testing.T, spans tracetest.SpanStubs, name string) tracetest.SpanStub {
	t.Helper()
	for _, s := range spans {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("span %q not found in %d spans", name, len(spans))
	return tracetest.SpanStub{}
}

func hasAttr(span tracetest.SpanStub, key, want string) bool {
	for _, a := range span.Attributes {
		if string(a.Key) == key && a.Value.Emit() == want {
			return true
		}
	}
	return false
}

func evt(typ events.EventType, at time.Duration, turnID string, data events.EventData) *events.Event {
	return &events.Event{Type: typ, Timestamp: t0.Add(at), SessionID: "sess-1", TurnID: turnID, Data: data}
}

func TestOTelEventListener_SessionLifecycle(t *testing.T) {
	l, exp, tp := newTestListener(t)

	l.StartSession(context.Background(), "sess-1")
	l.EndSession("sess-1")

	spans := flushAndGetSpans(t, tp, exp)
	require.Len(t, spans, 1)
	assert.Equal(t, SpanSession, spans[0].Name)
	assert.True(t, hasAttr(spans[0], "session.id", "sess-1"))
}

func TestOTelEventListener_Turn(t *testing.T) {
	l, exp, tp := newTestListener(t)
	l.StartSession(context.Background(), "sess-1")

	l.OnEvent(evt(events.EventClipAccepted, 0, "turn-1", &events.ClipData{Bytes: 1600, Duration: 2 * time.Second}))
	l.OnEvent(evt(events.EventTurnTransitioned, 0, "turn-1", &events.TurnTransitionData{From: "listening", To: "processing", Reason: "clip"}))
	l.OnEvent(evt(events.EventInterpretCompleted, 800*time.Millisecond, "turn-1", &events.InterpretData{
		Feature: "navigation", Intent: "navigate", Confidence: 0.9, Duration: 800 * time.Millisecond,
	}))
	l.OnEvent(evt(events.EventDirectiveDispatched, 800*time.Millisecond, "turn-1", &events.CommandData{Kind: "navigate", Target: "home"}))
	l.OnEvent(evt(events.EventTurnTransitioned, 800*time.Millisecond, "turn-1", &events.TurnTransitionData{From: "processing", To: "listening", Reason: "directive"}))
	l.EndSession("sess-1")

	spans := flushAndGetSpans(t, tp, exp)
	require.Len(t, spans, 3)

	root := findSpan(t, spans, SpanSession)
	turnSpan := findSpan(t, spans, SpanTurn)
	interp := findSpan(t, spans, SpanInterpret)

	assert.Equal(t, root.SpanContext.SpanID(), turnSpan.Parent.SpanID())
	assert.Equal(t, turnSpan.SpanContext.SpanID(), interp.Parent.SpanID())
	assert.True(t, hasAttr(turnSpan, "turn.id", "turn-1"))
	assert.True(t, hasAttr(turnSpan, "turn.end_state", "listening"))
	assert.Equal(t, codes.Ok, turnSpan.Status.Code)
	assert.WithinDuration(t, t0, turnSpan.StartTime, 0)
	assert.WithinDuration(t, t0.Add(800*time.Millisecond), turnSpan.EndTime, 0)
	assert.Len(t, turnSpan.Events, 3, "two transitions and a directive")

	assert.True(t, hasAttr(interp, "interpret.intent", "navigate"))
	assert.WithinDuration(t, t0, interp.StartTime, 0, "back-dated by the request duration")
}

func TestOTelEventListener_FailedInterpretation(t *testing.T) {
	l, exp, tp := newTestListener(t)

	l.OnEvent(evt(events.EventInterpretFailed, time.Second, "turn-1", &events.InterpretData{
		Duration: time.Second, Error: errors.New("timeout"),
	}))

	spans := flushAndGetSpans(t, tp, exp)
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "timeout", spans[0].Status.Description)
	assert.Len(t, spans[0].Events, 1, "error recorded")
}

func TestOTelEventListener_OutOfOrderTurnEnd(t *testing.T) {
	l, exp, tp := newTestListener(t)

	l.OnEvent(evt(events.EventTurnTransitioned, time.Second, "turn-1", &events.TurnTransitionData{From: "processing", To: "idle", Reason: "error"}))
	l.OnEvent(evt(events.EventClipAccepted, 0, "turn-1", &events.ClipData{}))

	spans := flushAndGetSpans(t, tp, exp)
	require.Len(t, spans, 1)
	assert.Equal(t, SpanTurn, spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestOTelEventListener_Stream(t *testing.T) {
	l, exp, tp := newTestListener(t)
	l.StartSession(context.Background(), "sess-1")

	l.OnEvent(evt(events.EventStreamStateChanged, 0, "", &events.StreamStateData{From: "disconnected", To: "connecting", Epoch: 1}))
	l.OnEvent(evt(events.EventStreamStateChanged, 100*time.Millisecond, "", &events.StreamStateData{From: "connecting", To: "connected", Epoch: 1}))
	l.OnEvent(evt(events.EventStreamResult, 400*time.Millisecond, "", &events.StreamResultData{MessageType: "result", Latency: 200 * time.Millisecond}))
	l.OnEvent(evt(events.EventStreamStateChanged, time.Second, "", &events.StreamStateData{From: "connected", To: "error", CloseCode: 1006}))
	l.OnEvent(evt(events.EventStreamReconnectScheduled, time.Second, "", &events.StreamReconnectData{Attempt: 1, Delay: time.Second}))
	l.EndSession("sess-1")

	spans := flushAndGetSpans(t, tp, exp)
	require.Len(t, spans, 2)

	stream := findSpan(t, spans, SpanStream)
	assert.Equal(t, codes.Error, stream.Status.Code)
	assert.Equal(t, "connection lost", stream.Status.Description)
	assert.True(t, hasAttr(stream, "stream.close_code", "1006"))
	require.Len(t, stream.Events, 1)
	assert.Equal(t, "result", stream.Events[0].Name)

	root := findSpan(t, spans, SpanSession)
	require.Len(t, root.Events, 1)
	assert.Equal(t, "stream.reconnect_scheduled", root.Events[0].Name)
}

func TestOTelEventListener_EndSessionClosesOpenSpans(t *testing.T) {
	l, exp, tp := newTestListener(t)
	l.StartSession(context.Background(), "sess-1")
	l.OnEvent(evt(events.EventClipAccepted, 0, "turn-1", &events.ClipData{}))
	l.EndSession("sess-1")

	spans := flushAndGetSpans(t, tp, exp)
	assert.Len(t, spans, 2)
}

func TestOTelEventListener_IgnoresUnrelatedEvents(t *testing.T) {
	l, exp, tp := newTestListener(t)
	l.OnEvent(evt(events.EventStreamFrameSent, 0, "", &events.StreamFrameData{Bytes: 10}))
	l.OnEvent(evt(events.EventClipAccepted, 0, "", &events.ClipData{}))
	l.OnEvent(evt(events.EventSpeechCompleted, 0, "", nil))

	assert.Empty(t, flushAndGetSpans(t, tp, exp))
}

func TestOTelEventListener_WithEventBus(t *testing.T) {
	l, exp, tp := newTestListener(t)
	l.StartSession(context.Background(), "sess-1")

	bus := events.NewEventBus()
	bus.SubscribeAll(l.OnEvent)
	emitter := events.NewEmitter(bus, "sess-1", nil)
	emitter.SpeechCompleted("", 2*time.Second, nil)
	bus.Close()
	l.EndSession("sess-1")

	spans := flushAndGetSpans(t, tp, exp)
	speech := findSpan(t, spans, SpanSpeech)
	assert.Equal(t, 2*time.Second, speech.EndTime.Sub(speech.StartTime))
}

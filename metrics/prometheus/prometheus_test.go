package prometheus

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/VietHungUET/SightTech/events"
)

func TestRecordTransition(t *testing.T) {
	turnTransitionsTotal.Reset()
	turnTransitionsRejectedTotal.Reset()

	RecordTransition("idle", "listening")
	RecordTransition("idle", "listening")
	RecordRejectedTransition("idle", "cooldown")

	if got := testutil.ToFloat64(turnTransitionsTotal.WithLabelValues("idle", "listening")); got != 2 {
		t.Errorf("Expected 2 transitions, got %f", got)
	}
	if got := testutil.ToFloat64(turnTransitionsRejectedTotal.WithLabelValues("idle", "cooldown")); got != 1 {
		t.Errorf("Expected 1 rejected transition, got %f", got)
	}
}

func TestRecordClip(t *testing.T) {
	clipsTotal.Reset()

	RecordClip(true, 192000)
	RecordClip(false, 0)
	RecordClip(false, 0)

	if got := testutil.ToFloat64(clipsTotal.WithLabelValues("accepted")); got != 1 {
		t.Errorf("Expected 1 accepted clip, got %f", got)
	}
	if got := testutil.ToFloat64(clipsTotal.WithLabelValues("rejected")); got != 2 {
		t.Errorf("Expected 2 rejected clips, got %f", got)
	}
	if testutil.CollectAndCount(clipBytes) == 0 {
		t.Error("Expected clip size observations")
	}
}

func TestRecordInterpretation_Histogram(t *testing.T) {
	interpretDuration.Reset()
	reg := prometheus.NewRegistry()
	reg.MustRegister(interpretDuration)

	RecordInterpretation("success", "navigate", 0.4)
	RecordInterpretation("success", "", 3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 1 {
		t.Fatalf("Expected 1 family, got %d", len(families))
	}
	family := families[0]
	if family.GetType() != dto.MetricType_HISTOGRAM {
		t.Errorf("Expected histogram, got %v", family.GetType())
	}
	h := family.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("Expected 2 samples, got %d", h.GetSampleCount())
	}
	if math.Abs(h.GetSampleSum()-3.4) > 1e-9 {
		t.Errorf("Expected sum 3.4, got %f", h.GetSampleSum())
	}
	var under1 uint64
	for _, b := range h.GetBucket() {
		if b.GetUpperBound() == 1 {
			under1 = b.GetCumulativeCount()
		}
	}
	if under1 != 1 {
		t.Errorf("Expected 1 observation under 1s, got %d", under1)
	}
}

func TestRecordStreamState(t *testing.T) {
	streamStateChangesTotal.Reset()

	RecordStreamState("connecting")
	RecordStreamState("connected")
	if got := testutil.ToFloat64(streamConnected); got != 1 {
		t.Errorf("Expected connected gauge 1, got %f", got)
	}

	RecordStreamState("error")
	if got := testutil.ToFloat64(streamConnected); got != 0 {
		t.Errorf("Expected connected gauge 0, got %f", got)
	}
	if got := testutil.ToFloat64(streamStateChangesTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("Expected 1 error transition, got %f", got)
	}
}

func TestMetricsListener_Handle(t *testing.T) {
	turnTransitionsTotal.Reset()
	interpretDuration.Reset()
	intentsTotal.Reset()
	commandsTotal.Reset()
	speechDuration.Reset()
	streamFramesTotal.Reset()
	streamResultLatency.Reset()

	reconnectsBefore := testutil.ToFloat64(streamReconnectsTotal)

	l := NewMetricsListener()
	handle := l.Listener()

	handle(&events.Event{Type: events.EventTurnTransitioned, Data: &events.TurnTransitionData{From: "listening", To: "processing"}})
	handle(&events.Event{Type: events.EventInterpretCompleted, Data: &events.InterpretData{Intent: "navigate", Duration: 800 * time.Millisecond}})
	handle(&events.Event{Type: events.EventInterpretFailed, Data: &events.InterpretData{Duration: time.Second, Error: errors.New("timeout")}})
	handle(&events.Event{Type: events.EventDirectiveDispatched, Data: &events.CommandData{Kind: "navigate"}})
	handle(&events.Event{Type: events.EventSpeechStarted, Data: &events.SpeechData{Text: "hi"}})
	handle(&events.Event{Type: events.EventSpeechCompleted, Data: &events.SpeechData{Duration: 2 * time.Second}})
	handle(&events.Event{Type: events.EventStreamFrameSent, Data: &events.StreamFrameData{Bytes: 100}})
	handle(&events.Event{Type: events.EventStreamFrameSkipped, Data: &events.StreamFrameData{Reason: "in_flight"}})
	handle(&events.Event{Type: events.EventStreamResult, Data: &events.StreamResultData{MessageType: "result", Latency: 300 * time.Millisecond}})
	handle(&events.Event{Type: events.EventStreamReconnectScheduled, Data: &events.StreamReconnectData{Attempt: 1}})

	if got := testutil.ToFloat64(turnTransitionsTotal.WithLabelValues("listening", "processing")); got != 1 {
		t.Errorf("Expected 1 transition, got %f", got)
	}
	if got := testutil.ToFloat64(intentsTotal.WithLabelValues("navigate")); got != 1 {
		t.Errorf("Expected 1 navigate intent, got %f", got)
	}
	if got := testutil.CollectAndCount(interpretDuration); got != 2 {
		t.Errorf("Expected success and error series, got %d", got)
	}
	if got := testutil.ToFloat64(commandsTotal.WithLabelValues("navigate")); got != 1 {
		t.Errorf("Expected 1 navigate command, got %f", got)
	}
	if got := testutil.CollectAndCount(speechDuration); got != 1 {
		t.Errorf("Expected only completed speech recorded, got %d", got)
	}
	if got := testutil.ToFloat64(streamFramesTotal.WithLabelValues("sent")); got != 1 {
		t.Errorf("Expected 1 sent frame, got %f", got)
	}
	if got := testutil.ToFloat64(streamFramesTotal.WithLabelValues("in_flight")); got != 1 {
		t.Errorf("Expected 1 in-flight skip, got %f", got)
	}
	if got := testutil.ToFloat64(streamReconnectsTotal) - reconnectsBefore; got != 1 {
		t.Errorf("Expected 1 reconnect, got %f", got)
	}
}

func TestMetricsListener_WithEventBus(t *testing.T) {
	commandsTotal.Reset()

	bus := events.NewEventBus()
	bus.SubscribeAll(NewMetricsListener().Handle)
	emitter := events.NewEmitter(bus, "session-1", nil)

	emitter.UtteranceDelivered("what is this")
	bus.Close()

	if got := testutil.ToFloat64(commandsTotal.WithLabelValues("utterance")); got != 1 {
		t.Errorf("Expected 1 utterance, got %f", got)
	}
}

func TestExporter_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(commandsTotal)
	exporter := NewExporterWithRegistry(":0", reg)

	commandsTotal.Reset()
	RecordCommand("action")

	srv := httptest.NewServer(exporter.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `sighttech_commands_total{kind="action"} 1`) {
		t.Errorf("metrics output missing command counter:\n%s", body)
	}
	if exporter.Registry() != reg {
		t.Error("Expected custom registry")
	}
}

func TestNewExporter_RegistersAll(t *testing.T) {
	exporter := NewExporter(":0")
	families, err := exporter.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("Expected registered metric families")
	}
}

func TestExporter_ShutdownBeforeStart(t *testing.T) {
	exporter := NewExporterWithRegistry("127.0.0.1:0", prometheus.NewRegistry())
	if err := exporter.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := exporter.Start(); !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("Expected ErrServerClosed, got %v", err)
	}
}

func TestExporter_Health(t *testing.T) {
	exporter := NewExporterWithRegistry(":0", prometheus.NewRegistry())
	srv := httptest.NewServer(exporter.server.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("Expected 200 ok, got %d %q", resp.StatusCode, body)
	}
}

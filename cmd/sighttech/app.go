package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/VietHungUET/SightTech/command"
	"github.com/VietHungUET/SightTech/config"
	"github.com/VietHungUET/SightTech/events"
	"github.com/VietHungUET/SightTech/interpret"
	"github.com/VietHungUET/SightTech/logger"
	metrics "github.com/VietHungUET/SightTech/metrics/prometheus"
	"github.com/VietHungUET/SightTech/scheduler"
	"github.com/VietHungUET/SightTech/speech"
	"github.com/VietHungUET/SightTech/streaming"
	"github.com/VietHungUET/SightTech/telemetry"
	"github.com/VietHungUET/SightTech/turn"
)

const shutdownTimeout = 5 * time.Second

// closeReason is sent with the normal close frame when the user stops streaming.
const closeReason = "User stopped streaming"

// streamingFeatures push camera frames while active.
var streamingFeatures = map[string]bool{
	command.FeatureDistance: true,
	command.FeatureObject:   true,
}

// app owns every runtime component. Fields set in newApp are only touched
// on the loop goroutine afterwards.
type app struct {
	spec      config.Spec
	sessionID string
	out       io.Writer

	loop    *scheduler.Loop
	bus     *events.EventBus
	coord   *turn.Coordinator
	stream  *streaming.Manager
	exp     *metrics.Exporter
	tracer  *sdktrace.TracerProvider
	spans   *telemetry.OTelEventListener
	devices *devices
	feature string
}

func newApp(ctx context.Context, m *config.Manifest, dev *devices, out io.Writer) (*app, error) {
	a := &app{
		spec:      m.Spec,
		sessionID: uuid.NewString(),
		out:       out,
		loop:      scheduler.NewLoop(),
		bus:       events.NewEventBus(),
		devices:   dev,
		feature:   m.Spec.Interpret.Feature,
	}
	emitter := events.NewEmitter(a.bus, a.sessionID, nil)

	if a.spec.Metrics.Enabled {
		a.exp = metrics.NewExporter(a.spec.Metrics.Addr)
		a.bus.SubscribeAll(metrics.NewMetricsListener().Handle)
	}
	if a.spec.Telemetry.Enabled {
		tp, err := telemetry.NewTracerProvider(ctx, a.spec.Telemetry.Endpoint, a.spec.Telemetry.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		otel.SetTracerProvider(tp)
		telemetry.SetupPropagation()
		a.tracer = tp
		a.spans = telemetry.NewOTelEventListener(telemetry.Tracer(tp))
		a.spans.StartSession(ctx, a.sessionID)
		a.bus.SubscribeAll(a.spans.OnEvent)
	}

	grammar := command.DefaultGrammar()
	if a.spec.Command.GrammarFile != "" {
		g, err := command.LoadGrammar(a.spec.Command.GrammarFile)
		if err != nil {
			return nil, err
		}
		grammar = g
	}

	service, err := newSpeechService(a.spec.Speech, dev.sink, out)
	if err != nil {
		return nil, err
	}

	router := &consoleRouter{app: a}

	cfg := turn.DefaultConfig()
	cfg.Feature = a.feature
	cfg.CooldownDelay = a.spec.Turn.CooldownDelay
	cfg.StatusResetDelay = a.spec.Turn.StatusResetDelay
	cfg.InterpretTimeout = a.spec.Interpret.Timeout
	cfg.Capture.WindowDuration = a.spec.Audio.WindowDuration
	cfg.Capture.VAD.Threshold = a.spec.Audio.VADThreshold
	cfg.Capture.VAD.MinSpeechDuration = a.spec.Audio.MinSpeechDuration
	cfg.Capture.VAD.SilenceFrames = a.spec.Audio.SilenceFrames
	cfg.Debounce.SilenceWindow = a.spec.Command.SilenceWindow
	cfg.Debounce.Classifier = grammar
	cfg.Events = emitter

	opts := []interpret.Option{interpret.WithTimeout(a.spec.Interpret.Timeout)}
	if a.spec.Interpret.Endpoint != "" {
		opts = append(opts, interpret.WithEndpoint(a.spec.Interpret.Endpoint))
	}
	if a.spec.Interpret.APIKey != "" {
		opts = append(opts, interpret.WithAPIKey(a.spec.Interpret.APIKey))
	}

	a.coord, err = turn.New(a.loop, turn.Deps{
		Microphone:  dev.mic,
		Output:      speech.NewPlayer(a.loop, service),
		Interpreter: interpret.NewHTTPClient(a.spec.Interpret.BaseURL, opts...),
		Router:      router,
	}, cfg)
	if err != nil {
		return nil, err
	}

	if a.spec.Streaming.Enabled {
		if a.stream, err = newStreamManager(a.loop, a.spec.Streaming, router, emitter); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func newSpeechService(spec config.SpeechSpec, sink speech.AudioSink, out io.Writer) (speech.Service, error) {
	if spec.Provider != config.SpeechOpenAI {
		return speech.NewConsoleService(out), nil
	}
	if sink == nil {
		return nil, errors.New("speech: the openai provider needs an audio device; build with -tags portaudio")
	}
	var synthOpts []speech.OpenAIOption
	if spec.Model != "" {
		synthOpts = append(synthOpts, speech.WithOpenAIModel(spec.Model))
	}
	synthCfg := speech.DefaultSynthesisConfig()
	if spec.Voice != "" {
		synthCfg.Voice = spec.Voice
	}
	return speech.NewSynthesizedService(speech.NewOpenAI(spec.APIKey, synthOpts...), sink, synthCfg), nil
}

func newStreamManager(
	sched scheduler.Scheduler, spec config.StreamingSpec, router command.Router, emitter *events.Emitter,
) (*streaming.Manager, error) {
	codec, err := streaming.NewCodec(spec.Codec)
	if err != nil {
		return nil, err
	}
	source, err := frameSource(spec.FrameFile)
	if err != nil {
		return nil, err
	}
	dialer := streaming.NewWSDialer(streaming.ConnConfig{
		URL:          spec.URL,
		Binary:       codec.Binary(),
		CloseReason:  closeReason,
		PingInterval: spec.PingInterval,
	})
	return streaming.NewManager(sched, dialer, source, router, streaming.Config{
		FrameInterval:        spec.FrameInterval,
		InFlightTimeout:      spec.InFlightTimeout,
		MaxReconnectAttempts: spec.MaxReconnectAttempts,
		ReconnectBase:        spec.ReconnectBase,
		ReconnectMax:         spec.ReconnectMax,
		Codec:                codec,
		Filter:               streaming.NewGuidanceFilter(),
		Events:               emitter,
	})
}

// frameSource pushes a fixed still image. Without one no frames are sent.
func frameSource(path string) (streaming.FrameSource, error) {
	if path == "" {
		return streaming.FrameSourceFunc(func() ([]byte, bool) { return nil, false }), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame file: %w", err)
	}
	return streaming.FrameSourceFunc(func() ([]byte, bool) { return data, true }), nil
}

// run drives the loop, the metrics server, and console input until ctx is
// cancelled, then shuts everything down.
func (a *app) run(ctx context.Context, in io.Reader) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The loop outlives ctx so shutdown can still post to it.
		return a.loop.Run(context.Background())
	})
	if a.exp != nil {
		g.Go(func() error {
			if err := a.exp.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics exporter: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	if err := a.loop.Do(gctx, a.startup); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if in != nil {
		go a.readCommands(gctx, in)
	}

	return g.Wait()
}

func (a *app) startup() {
	logger.Info("sighttech: session started", "session_id", a.sessionID, "feature", a.feature)
	if a.spec.Turn.AutoStart {
		if err := a.coord.Start(); err != nil {
			logger.Warn("sighttech: start failed", "error", err)
		}
	}
	if streamingFeatures[a.feature] {
		a.connectStream()
	}
}

func (a *app) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	errs = append(errs, a.loop.Do(ctx, func() {
		a.coord.Stop()
		if a.stream != nil {
			a.stream.Close()
		}
	}))
	errs = append(errs, a.loop.Shutdown(ctx))
	a.bus.Close()

	if a.spans != nil {
		a.spans.EndSession(a.sessionID)
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(ctx))
	}
	if a.exp != nil {
		errs = append(errs, a.exp.Shutdown(ctx))
	}
	errs = append(errs, a.devices.close())
	logger.Info("sighttech: session ended", "session_id", a.sessionID)
	return errors.Join(errs...)
}

// setFeature switches the active feature and starts or stops streaming.
func (a *app) setFeature(name string) {
	a.feature = name
	a.coord.SetFeature(name)
	if streamingFeatures[name] {
		a.connectStream()
	} else {
		a.disconnectStream()
	}
}

func (a *app) connectStream() {
	if a.stream == nil {
		return
	}
	if err := a.stream.Connect(); err != nil {
		logger.Warn("sighttech: stream connect failed", "error", err)
	}
}

func (a *app) disconnectStream() {
	if a.stream != nil {
		a.stream.Disconnect()
	}
}

func (a *app) say(text string) {
	if err := a.coord.Say(text); err != nil {
		logger.Debug("sighttech: say dropped", "error", err)
	}
}

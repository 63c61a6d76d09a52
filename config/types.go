// Package config loads the SightTech runtime manifest.
//
// The manifest is a K8s-style YAML document:
//
//	apiVersion: sighttech.app/v1alpha1
//	kind: VoiceRuntime
//	metadata:
//	  name: default
//	spec:
//	  streaming:
//	    url: ws://localhost:8000/ws/navigation
//
// Durations are Go duration strings ("200ms", "1.5s").
package config

import "time"

// Manifest identifiers.
const (
	APIVersion = "sighttech.app/v1alpha1"
	Kind       = "VoiceRuntime"
)

// Manifest is the top-level configuration document.
type Manifest struct {
	APIVersion string     `yaml:"apiVersion"`
	Kind       string     `yaml:"kind"`
	Metadata   ObjectMeta `yaml:"metadata,omitempty"`
	Spec       Spec       `yaml:"spec"`
}

// ObjectMeta contains identifying metadata.
type ObjectMeta struct {
	Name   string            `yaml:"name,omitempty"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

// Spec holds every runtime section.
type Spec struct {
	Logging   LoggingSpec   `yaml:"logging,omitempty"`
	Audio     AudioSpec     `yaml:"audio,omitempty"`
	Turn      TurnSpec      `yaml:"turn,omitempty"`
	Command   CommandSpec   `yaml:"command,omitempty"`
	Streaming StreamingSpec `yaml:"streaming,omitempty"`
	Interpret InterpretSpec `yaml:"interpret,omitempty"`
	Speech    SpeechSpec    `yaml:"speech,omitempty"`
	Metrics   MetricsSpec   `yaml:"metrics,omitempty"`
	Telemetry TelemetrySpec `yaml:"telemetry,omitempty"`
}

// LoggingSpec configures the global logger.
type LoggingSpec struct {
	// DefaultLevel is one of trace, debug, info, warn, error.
	DefaultLevel string            `yaml:"defaultLevel,omitempty"`
	Format       string            `yaml:"format,omitempty"`
	CommonFields map[string]string `yaml:"commonFields,omitempty"`
	Modules      []ModuleLogging   `yaml:"modules,omitempty"`
}

// ModuleLogging overrides the level for one module.
type ModuleLogging struct {
	Name  string `yaml:"name"`
	Level string `yaml:"level"`
}

// AudioSpec configures capture and voice activity detection.
type AudioSpec struct {
	// Device selects the microphone backend: "portaudio" or "none".
	Device            string        `yaml:"device,omitempty"`
	WindowDuration    time.Duration `yaml:"windowDuration,omitempty"`
	VADThreshold      float64       `yaml:"vadThreshold,omitempty"`
	MinSpeechDuration time.Duration `yaml:"minSpeechDuration,omitempty"`
	SilenceFrames     int           `yaml:"silenceFrames,omitempty"`
}

// TurnSpec configures the turn-taking coordinator.
type TurnSpec struct {
	CooldownDelay    time.Duration `yaml:"cooldownDelay,omitempty"`
	StatusResetDelay time.Duration `yaml:"statusResetDelay,omitempty"`
	AutoStart        bool          `yaml:"autoStart,omitempty"`
}

// CommandSpec configures command recognition.
type CommandSpec struct {
	// GrammarFile replaces the built-in grammar when set.
	GrammarFile   string        `yaml:"grammarFile,omitempty"`
	SilenceWindow time.Duration `yaml:"silenceWindow,omitempty"`
}

// StreamingSpec configures the streaming session manager.
type StreamingSpec struct {
	Enabled              bool          `yaml:"enabled,omitempty"`
	URL                  string        `yaml:"url,omitempty"`
	FrameInterval        time.Duration `yaml:"frameInterval,omitempty"`
	InFlightTimeout      time.Duration `yaml:"inFlightTimeout,omitempty"`
	Codec                string        `yaml:"codec,omitempty"`
	MaxReconnectAttempts int           `yaml:"maxReconnectAttempts,omitempty"`
	ReconnectBase        time.Duration `yaml:"reconnectBase,omitempty"`
	ReconnectMax         time.Duration `yaml:"reconnectMax,omitempty"`
	PingInterval         time.Duration `yaml:"pingInterval,omitempty"`
	// FrameFile is a still image pushed on every tick when no camera is
	// attached.
	FrameFile string `yaml:"frameFile,omitempty"`
}

// InterpretSpec configures the interpretation service client.
type InterpretSpec struct {
	BaseURL  string        `yaml:"baseURL,omitempty"`
	Endpoint string        `yaml:"endpoint,omitempty"`
	Feature  string        `yaml:"feature,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	APIKey   string        `yaml:"apiKey,omitempty"`
}

// SpeechSpec configures speech output.
type SpeechSpec struct {
	// Provider is "console" or "openai".
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	Voice    string `yaml:"voice,omitempty"`
	APIKey   string `yaml:"apiKey,omitempty"`
}

// MetricsSpec configures the Prometheus exporter.
type MetricsSpec struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Addr    string `yaml:"addr,omitempty"`
}

// TelemetrySpec configures OTLP trace export.
type TelemetrySpec struct {
	Enabled     bool   `yaml:"enabled,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	ServiceName string `yaml:"serviceName,omitempty"`
}

// Device backends.
const (
	DevicePortAudio = "portaudio"
	DeviceNone      = "none"
)

// Speech providers.
const (
	SpeechConsole = "console"
	SpeechOpenAI  = "openai"
)

// Default returns a manifest with every default applied.
func Default() *Manifest {
	return &Manifest{
		APIVersion: APIVersion,
		Kind:       Kind,
		Metadata:   ObjectMeta{Name: "default"},
		Spec: Spec{
			Logging: LoggingSpec{DefaultLevel: "info", Format: "text"},
			Audio: AudioSpec{
				Device:            DevicePortAudio,
				WindowDuration:    6 * time.Second,
				VADThreshold:      10,
				MinSpeechDuration: 500 * time.Millisecond,
				SilenceFrames:     3,
			},
			Turn: TurnSpec{
				CooldownDelay:    time.Second,
				StatusResetDelay: 10 * time.Second,
			},
			Command: CommandSpec{SilenceWindow: 2 * time.Second},
			Streaming: StreamingSpec{
				URL:           "ws://localhost:8000/ws/navigation",
				FrameInterval: 200 * time.Millisecond,
				Codec:         "json",
			},
			Interpret: InterpretSpec{
				BaseURL: "http://localhost:8000",
				Timeout: 30 * time.Second,
			},
			Speech:    SpeechSpec{Provider: SpeechConsole},
			Metrics:   MetricsSpec{Addr: ":9090"},
			Telemetry: TelemetrySpec{ServiceName: "sighttech"},
		},
	}
}

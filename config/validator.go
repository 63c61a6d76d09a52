package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks cross-field constraints the schema cannot express.
func (m *Manifest) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if m.APIVersion != APIVersion {
		add("apiVersion must be %q, got %q", APIVersion, m.APIVersion)
	}
	if m.Kind != Kind {
		add("kind must be %q, got %q", Kind, m.Kind)
	}

	s := &m.Spec
	switch s.Logging.DefaultLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		add("logging.defaultLevel %q is not a level", s.Logging.DefaultLevel)
	}
	if s.Audio.WindowDuration <= 0 {
		add("audio.windowDuration must be positive")
	}
	if s.Audio.MinSpeechDuration >= s.Audio.WindowDuration {
		add("audio.minSpeechDuration must be shorter than audio.windowDuration")
	}
	switch s.Audio.Device {
	case DevicePortAudio, DeviceNone:
	default:
		add("audio.device %q is not supported", s.Audio.Device)
	}
	if s.Command.SilenceWindow <= 0 {
		add("command.silenceWindow must be positive")
	}

	if s.Streaming.Enabled {
		u, err := url.Parse(s.Streaming.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			add("streaming.url %q must be a ws:// or wss:// URL", s.Streaming.URL)
		}
	}
	if s.Streaming.FrameInterval <= 0 {
		add("streaming.frameInterval must be positive")
	}
	switch s.Streaming.Codec {
	case "json", "msgpack":
	default:
		add("streaming.codec %q is not supported", s.Streaming.Codec)
	}
	if s.Streaming.ReconnectMax > 0 && s.Streaming.ReconnectBase > s.Streaming.ReconnectMax {
		add("streaming.reconnectBase must not exceed streaming.reconnectMax")
	}

	if u, err := url.Parse(s.Interpret.BaseURL); err != nil || u.Host == "" {
		add("interpret.baseURL %q must be an absolute URL", s.Interpret.BaseURL)
	}
	switch s.Speech.Provider {
	case SpeechConsole:
	case SpeechOpenAI:
		if s.Speech.APIKey == "" {
			add("speech.apiKey is required for the openai provider")
		}
	default:
		add("speech.provider %q is not supported", s.Speech.Provider)
	}
	if s.Metrics.Enabled && s.Metrics.Addr == "" {
		add("metrics.addr is required when metrics are enabled")
	}
	if s.Telemetry.Enabled && s.Telemetry.Endpoint == "" {
		add("telemetry.endpoint is required when telemetry is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(problems, "\n  - "))
	}
	return nil
}

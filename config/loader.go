package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SIGHTTECH_"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Load reads, schema-validates, and decodes the manifest at filename, then
// applies environment overrides and validates the result. Unset fields keep
// their defaults.
func Load(filename string) (*Manifest, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	m.resolvePaths(filepath.Dir(filename))
	return m, nil
}

// Parse decodes manifest data. Environment overrides are applied.
func Parse(data []byte) (*Manifest, error) {
	if err := ValidateManifest(data); err != nil {
		return nil, err
	}
	m := Default()
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// resolvePaths makes relative file references relative to the manifest.
func (m *Manifest) resolvePaths(dir string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	resolve(&m.Spec.Command.GrammarFile)
	resolve(&m.Spec.Streaming.FrameFile)
}

// ApplyEnv overrides manifest fields from SIGHTTECH_* variables.
func (m *Manifest) ApplyEnv(lookup func(string) (string, bool)) error {
	s := &m.Spec
	strVars := map[string]*string{
		"LOG_LEVEL":         &s.Logging.DefaultLevel,
		"LOG_FORMAT":        &s.Logging.Format,
		"AUDIO_DEVICE":      &s.Audio.Device,
		"STREAM_URL":        &s.Streaming.URL,
		"STREAM_CODEC":      &s.Streaming.Codec,
		"INTERPRET_URL":     &s.Interpret.BaseURL,
		"INTERPRET_API_KEY": &s.Interpret.APIKey,
		"FEATURE":           &s.Interpret.Feature,
		"SPEECH_PROVIDER":   &s.Speech.Provider,
		"OPENAI_API_KEY":    &s.Speech.APIKey,
		"METRICS_ADDR":      &s.Metrics.Addr,
		"OTLP_ENDPOINT":     &s.Telemetry.Endpoint,
	}
	for name, dst := range strVars {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	boolVars := map[string]*bool{
		"STREAM_ENABLED":    &s.Streaming.Enabled,
		"METRICS_ENABLED":   &s.Metrics.Enabled,
		"TELEMETRY_ENABLED": &s.Telemetry.Enabled,
		"AUTO_START":        &s.Turn.AutoStart,
	}
	for name, dst := range boolVars {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s: %w", ErrInvalidConfig, EnvPrefix, name, err)
		}
		*dst = b
	}

	durVars := map[string]*time.Duration{
		"FRAME_INTERVAL":    &s.Streaming.FrameInterval,
		"INTERPRET_TIMEOUT": &s.Interpret.Timeout,
	}
	for name, dst := range durVars {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s: %w", ErrInvalidConfig, EnvPrefix, name, err)
		}
		*dst = d
	}
	return nil
}

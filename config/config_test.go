package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullManifest = `apiVersion: sighttech.app/v1alpha1
kind: VoiceRuntime
metadata:
  name: field-test
spec:
  logging:
    defaultLevel: debug
    format: json
    modules:
      - name: streaming
        level: trace
  audio:
    device: none
    windowDuration: 4s
    vadThreshold: 12.5
  command:
    grammarFile: grammar.yaml
    silenceWindow: 1500ms
  streaming:
    enabled: true
    url: wss://analysis.example.com/ws/navigation
    frameInterval: 3s
    codec: msgpack
    maxReconnectAttempts: 5
  interpret:
    baseURL: https://api.example.com
    feature: navigation
  metrics:
    enabled: true
`

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParse_Full(t *testing.T) {
	m, err := Parse([]byte(fullManifest))
	require.NoError(t, err)

	assert.Equal(t, "field-test", m.Metadata.Name)
	assert.Equal(t, "debug", m.Spec.Logging.DefaultLevel)
	require.Len(t, m.Spec.Logging.Modules, 1)
	assert.Equal(t, "trace", m.Spec.Logging.Modules[0].Level)

	assert.Equal(t, DeviceNone, m.Spec.Audio.Device)
	assert.Equal(t, 4*time.Second, m.Spec.Audio.WindowDuration)
	assert.InDelta(t, 12.5, m.Spec.Audio.VADThreshold, 1e-9)
	assert.Equal(t, 3, m.Spec.Audio.SilenceFrames, "unset fields keep defaults")

	assert.Equal(t, 1500*time.Millisecond, m.Spec.Command.SilenceWindow)
	assert.Equal(t, 3*time.Second, m.Spec.Streaming.FrameInterval)
	assert.Equal(t, "msgpack", m.Spec.Streaming.Codec)
	assert.Equal(t, 5, m.Spec.Streaming.MaxReconnectAttempts)
	assert.Equal(t, 30*time.Second, m.Spec.Interpret.Timeout)
	assert.Equal(t, ":9090", m.Spec.Metrics.Addr)
}

func TestParse_SchemaErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		contains string
	}{
		{
			name:     "wrong kind",
			manifest: "apiVersion: sighttech.app/v1alpha1\nkind: Arena\nspec: {}\n",
			contains: "kind",
		},
		{
			name:     "unknown section",
			manifest: "apiVersion: sighttech.app/v1alpha1\nkind: VoiceRuntime\nspec:\n  camera: {}\n",
			contains: "camera",
		},
		{
			name:     "numeric duration",
			manifest: "apiVersion: sighttech.app/v1alpha1\nkind: VoiceRuntime\nspec:\n  turn:\n    cooldownDelay: 1000\n",
			contains: "cooldownDelay",
		},
		{
			name:     "bad codec",
			manifest: "apiVersion: sighttech.app/v1alpha1\nkind: VoiceRuntime\nspec:\n  streaming:\n    codec: protobuf\n",
			contains: "codec",
		},
		{
			name:     "http stream url",
			manifest: "apiVersion: sighttech.app/v1alpha1\nkind: VoiceRuntime\nspec:\n  streaming:\n    url: http://x\n",
			contains: "url",
		},
		{
			name:     "missing spec",
			manifest: "apiVersion: sighttech.app/v1alpha1\nkind: VoiceRuntime\n",
			contains: "spec",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.manifest))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "does not match schema")
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("spec: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestValidate_CrossField(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Manifest)
		contains string
	}{
		{"min speech", func(m *Manifest) { m.Spec.Audio.MinSpeechDuration = 10 * time.Second }, "minSpeechDuration"},
		{"openai key", func(m *Manifest) { m.Spec.Speech.Provider = SpeechOpenAI }, "speech.apiKey"},
		{"stream url", func(m *Manifest) {
			m.Spec.Streaming.Enabled = true
			m.Spec.Streaming.URL = "localhost:8000"
		}, "streaming.url"},
		{"backoff", func(m *Manifest) {
			m.Spec.Streaming.ReconnectBase = time.Minute
			m.Spec.Streaming.ReconnectMax = time.Second
		}, "reconnectBase"},
		{"telemetry", func(m *Manifest) { m.Spec.Telemetry.Enabled = true }, "telemetry.endpoint"},
		{"level", func(m *Manifest) { m.Spec.Logging.DefaultLevel = "loud" }, "defaultLevel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Default()
			tt.mutate(m)
			err := m.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SIGHTTECH_STREAM_URL":        "ws://edge:9000/ws",
		"SIGHTTECH_STREAM_ENABLED":    "true",
		"SIGHTTECH_FRAME_INTERVAL":    "3s",
		"SIGHTTECH_OPENAI_API_KEY":    "sk-test",
		"SIGHTTECH_TELEMETRY_ENABLED": "1",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	m := Default()
	require.NoError(t, m.ApplyEnv(lookup))
	assert.Equal(t, "ws://edge:9000/ws", m.Spec.Streaming.URL)
	assert.True(t, m.Spec.Streaming.Enabled)
	assert.Equal(t, 3*time.Second, m.Spec.Streaming.FrameInterval)
	assert.Equal(t, "sk-test", m.Spec.Speech.APIKey)
	assert.True(t, m.Spec.Telemetry.Enabled)

	env["SIGHTTECH_METRICS_ENABLED"] = "sometimes"
	assert.ErrorIs(t, Default().ApplyEnv(lookup), ErrInvalidConfig)

	delete(env, "SIGHTTECH_METRICS_ENABLED")
	env["SIGHTTECH_INTERPRET_TIMEOUT"] = "soon"
	assert.ErrorIs(t, Default().ApplyEnv(lookup), ErrInvalidConfig)
}

func TestLoad_ResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sighttech.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullManifest), 0o600))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "grammar.yaml"), m.Spec.Command.GrammarFile)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SIGHTTECH_METRICS_ADDR", ":9999")
	dir := t.TempDir()
	path := filepath.Join(dir, "sighttech.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullManifest), 0o600))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", m.Spec.Metrics.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestSchema_Embedded(t *testing.T) {
	assert.Contains(t, string(Schema()), `"VoiceRuntime"`)
}

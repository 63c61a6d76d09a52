package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	openAIBaseURL     = "https://api.openai.com/v1"
	openAITTSEndpoint = "/audio/speech"

	// ModelTTS1 is the OpenAI TTS model optimized for speed.
	ModelTTS1 = "tts-1"
	// ModelTTS1HD is the OpenAI TTS model optimized for quality.
	ModelTTS1HD = "tts-1-hd"

	// VoiceAlloy is the neutral default voice.
	VoiceAlloy = "alloy"

	defaultOpenAITimeout       = 30 * time.Second
	openAIServerErrorThreshold = 500

	// OpenAI returns raw PCM as 24kHz 16-bit mono.
	openAIFormatPCM    = "pcm"
	openAISampleRate24 = 24000
)

// OpenAISynthesizer implements Synthesizer using OpenAI's speech API.
type OpenAISynthesizer struct {
	apiKey  string
	baseURL string
	client  *http.Client
	model   string
}

// OpenAIOption configures the OpenAI synthesizer.
type OpenAIOption func(*OpenAISynthesizer)

// WithOpenAIBaseURL sets a custom base URL (for testing or proxies).
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(s *OpenAISynthesizer) {
		s.baseURL = url
	}
}

// WithOpenAIClient sets a custom HTTP client.
func WithOpenAIClient(client *http.Client) OpenAIOption {
	return func(s *OpenAISynthesizer) {
		s.client = client
	}
}

// WithOpenAIModel sets the TTS model to use.
func WithOpenAIModel(model string) OpenAIOption {
	return func(s *OpenAISynthesizer) {
		s.model = model
	}
}

// NewOpenAI creates an OpenAI synthesizer. Requests are traced with otelhttp.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAISynthesizer {
	s := &OpenAISynthesizer{
		apiKey:  apiKey,
		baseURL: openAIBaseURL,
		client: &http.Client{
			Timeout:   defaultOpenAITimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		model: ModelTTS1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the provider identifier.
func (s *OpenAISynthesizer) Name() string {
	return "openai"
}

// SampleRate implements Synthesizer.
func (s *OpenAISynthesizer) SampleRate() int {
	return openAISampleRate24
}

type openAIRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed,omitempty"`
}

// Synthesize converts text to PCM audio.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string, config SynthesisConfig) (io.ReadCloser, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	voice := config.Voice
	if voice == "" {
		voice = VoiceAlloy
	}
	speed := config.Speed
	if speed == 0 {
		speed = 1.0
	}
	model := config.Model
	if model == "" {
		model = s.model
	}

	bodyBytes, err := json.Marshal(openAIRequest{
		Model:          model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: openAIFormatPCM,
		Speed:          speed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+openAITTSEndpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, NewSynthesisError("openai", "", "request failed", err, true)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, s.handleError(resp)
	}
	return resp.Body, nil
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (s *OpenAISynthesizer) handleError(resp *http.Response) error {
	var errResp openAIErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return NewSynthesisError(
			"openai",
			fmt.Sprintf("%d", resp.StatusCode),
			"unknown error",
			err,
			resp.StatusCode >= openAIServerErrorThreshold,
		)
	}

	retryable := resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= openAIServerErrorThreshold

	var cause error
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		cause = ErrRateLimited
	case http.StatusUnauthorized:
		cause = fmt.Errorf("invalid API key")
	}

	return NewSynthesisError("openai", errResp.Error.Code, errResp.Error.Message, cause, retryable)
}

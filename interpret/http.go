package interpret

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/VietHungUET/SightTech/audio"
	"github.com/VietHungUET/SightTech/logger"
)

const (
	// DefaultEndpoint is the interpreter route.
	DefaultEndpoint = "/transcribe_audio_v2"

	// DefaultTimeout bounds one interpretation request.
	DefaultTimeout = 30 * time.Second

	serverErrorThreshold = 500

	formFile    = "file"
	formFeature = "current_feature"
)

// HTTPClient implements Interpreter against the backend's multipart endpoint.
type HTTPClient struct {
	baseURL  string
	endpoint string
	client   *http.Client
	apiKey   string
}

// Option configures the HTTP client.
type Option func(*HTTPClient)

// WithEndpoint overrides the request path.
func WithEndpoint(path string) Option {
	return func(c *HTTPClient) {
		c.endpoint = path
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithTimeout sets the request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithAPIKey sends a bearer token with every request.
func WithAPIKey(key string) Option {
	return func(c *HTTPClient) {
		c.apiKey = key
	}
}

// NewHTTPClient creates an interpreter client for baseURL. Requests are
// traced with otelhttp.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		endpoint: DefaultEndpoint,
		client: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Interpret uploads clip with the current feature tag and decodes the reply.
// PCM clips are wrapped as WAV.
func (c *HTTPClient) Interpret(ctx context.Context, clip audio.Clip, feature string) (*Result, error) {
	if len(clip.Data) == 0 {
		return nil, ErrEmptyAudio
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(formFile, "recording.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(clip.WAV()); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	if feature != "" {
		if err := writer.WriteField(formFeature, feature); err != nil {
			return nil, fmt.Errorf("failed to write feature field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	url := c.baseURL + c.endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	logger.DebugContext(ctx, "interpret: request", "url", logger.RedactSensitiveData(url), "bytes", len(clip.Data), "feature", feature)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, NewInterpretError("", "request failed", err, true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleError(resp.StatusCode, body)
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, NewInterpretError("", "failed to parse response", err, false)
	}
	return &result, nil
}

// handleError maps a FastAPI-style {"detail": "..."} error response.
func (c *HTTPClient) handleError(statusCode int, body []byte) error {
	code := fmt.Sprintf("%d", statusCode)

	var errResp struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Detail == "" {
		return NewInterpretError(code, strings.TrimSpace(string(body)), nil, statusCode >= serverErrorThreshold)
	}

	var cause error
	switch {
	case statusCode == http.StatusTooManyRequests:
		cause = ErrRateLimited
	case statusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(errResp.Detail), "empty transcript"):
		cause = ErrEmptyTranscript
	}

	retryable := statusCode == http.StatusTooManyRequests || statusCode >= serverErrorThreshold
	return NewInterpretError(code, errResp.Detail, cause, retryable)
}

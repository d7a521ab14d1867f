package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/planify/internal/config"
)

// Request is a single completion request sent to a Backend.
type Request struct {
	System      string
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Completion is the raw text a Backend produced plus token accounting.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Backend sends prompts to a language model provider.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// BackendOption configures a Backend.
type BackendOption func(*backendOptions)

type backendOptions struct {
	httpClient *http.Client
}

// WithHTTPClient overrides the HTTP client used by REST backends.
func WithHTTPClient(c *http.Client) BackendOption {
	return func(o *backendOptions) {
		o.httpClient = c
	}
}

// NewBackend creates the backend named by name from its settings.
func NewBackend(name string, cfg config.BackendConfig, opts ...BackendOption) (Backend, error) {
	o := &backendOptions{httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(o)
	}

	switch name {
	case config.BackendAnthropic:
		return newAnthropicBackend(cfg, o)
	case config.BackendOpenAI:
		return newOpenAIBackend(cfg, o)
	case config.BackendGemini:
		return newGeminiBackend(cfg, o)
	case config.BackendCompat:
		return newCompatBackend(cfg, o)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}

// newLimiter returns a limiter for the configured requests per second.
// A non-positive rate disables limiting.
func newLimiter(cfg config.BackendConfig) *rate.Limiter {
	if cfg.RateLimit <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
}

// apiError is the error envelope shared by the Anthropic, OpenAI and Gemini APIs.
type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// postJSON performs a JSON POST and returns the response body for a 200.
// Transport failures, 429 and 5xx are marked retryable.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return nil, &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, truncate(string(body), 512))}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp apiError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, truncate(string(body), 512))
	}
	return body, nil
}

const maxResponseBytes = 8 << 20

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func withDefaults(req Request, cfg config.BackendConfig) Request {
	if req.Temperature == 0 {
		req.Temperature = cfg.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = cfg.MaxTokens
	}
	return req
}

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/planify/internal/config"
)

const anthropicVersion = "2023-06-01"

// anthropicBackend implements Backend using Anthropic's Messages API.
type anthropicBackend struct {
	cfg        config.BackendConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newAnthropicBackend(cfg config.BackendConfig, o *backendOptions) (Backend, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("anthropic: %w (set ANTHROPIC_API_KEY)", ErrMissingAPIKey)
	}
	return &anthropicBackend{
		cfg:        cfg,
		httpClient: o.httpClient,
		limiter:    newLimiter(cfg),
	}, nil
}

// anthropicRequest represents the request format for the Messages API.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse represents the response from the Messages API.
type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (a *anthropicBackend) Name() string { return config.BackendAnthropic }

func (a *anthropicBackend) Complete(ctx context.Context, req Request) (*Completion, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}
	req = withDefaults(req, a.cfg)

	body, err := postJSON(ctx, a.httpClient, strings.TrimSuffix(a.cfg.BaseURL, "/")+"/v1/messages",
		map[string]string{
			"X-API-Key":         a.cfg.APIKey.Value(),
			"Anthropic-Version": anthropicVersion,
		},
		anthropicRequest{
			Model:       req.Model,
			MaxTokens:   req.MaxTokens,
			System:      req.System,
			Temperature: req.Temperature,
			Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
		})
	if err != nil {
		return nil, err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from API")
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return &Completion{
		Text:         text.String(),
		Model:        model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

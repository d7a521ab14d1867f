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

// openAIBackend implements Backend using the Chat Completions API.
type openAIBackend struct {
	cfg        config.BackendConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newOpenAIBackend(cfg config.BackendConfig, o *backendOptions) (Backend, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("openai: %w (set OPENAI_API_KEY)", ErrMissingAPIKey)
	}
	return &openAIBackend{
		cfg:        cfg,
		httpClient: o.httpClient,
		limiter:    newLimiter(cfg),
	}, nil
}

// openAIRequest represents the request format for Chat Completions.
type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIResponse represents the response from Chat Completions.
type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (o *openAIBackend) Name() string { return config.BackendOpenAI }

func (o *openAIBackend) Complete(ctx context.Context, req Request) (*Completion, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}
	req = withDefaults(req, o.cfg)

	messages := make([]openAIMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.Prompt})

	body, err := postJSON(ctx, o.httpClient, strings.TrimSuffix(o.cfg.BaseURL, "/")+"/v1/chat/completions",
		map[string]string{"Authorization": "Bearer " + o.cfg.APIKey.Value()},
		openAIRequest{
			Model:       req.Model,
			Messages:    messages,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		})
	if err != nil {
		return nil, err
	}

	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("empty response from API")
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return &Completion{
		Text:         resp.Choices[0].Message.Content,
		Model:        model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

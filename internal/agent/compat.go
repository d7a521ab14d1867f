package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/planify/internal/config"
)

// compatBackend talks to any OpenAI-compatible endpoint (Ollama, vLLM, LM Studio)
// through langchaingo.
type compatBackend struct {
	cfg     config.BackendConfig
	llm     llms.Model
	limiter *rate.Limiter
}

func newCompatBackend(cfg config.BackendConfig, o *backendOptions) (Backend, error) {
	// Local servers usually ignore the token but the client requires one.
	token := cfg.APIKey.Value()
	if token == "" {
		token = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithModel(config.DefaultModel(config.BackendCompat)),
		openai.WithHTTPClient(o.httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create compat client: %w", err)
	}
	return &compatBackend{cfg: cfg, llm: llm, limiter: newLimiter(cfg)}, nil
}

func (c *compatBackend) Name() string { return config.BackendCompat }

func (c *compatBackend) Complete(ctx context.Context, req Request) (*Completion, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}
	req = withDefaults(req, c.cfg)

	messages := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, req.Prompt))

	resp, err := c.llm.GenerateContent(ctx, messages,
		llms.WithModel(req.Model),
		llms.WithTemperature(req.Temperature),
		llms.WithMaxTokens(req.MaxTokens),
	)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		// langchaingo does not expose status codes; local servers fail transiently.
		return nil, &retryableError{err: fmt.Errorf("compat request failed: %w", err)}
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return nil, fmt.Errorf("empty response from API")
	}

	choice := resp.Choices[0]
	return &Completion{
		Text:         choice.Content,
		Model:        req.Model,
		InputTokens:  intInfo(choice.GenerationInfo, "PromptTokens"),
		OutputTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
	}, nil
}

// intInfo reads a token count from langchaingo generation info.
func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

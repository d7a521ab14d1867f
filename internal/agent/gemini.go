package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/planify/internal/config"
)

// geminiBackend implements Backend using the generateContent REST API.
type geminiBackend struct {
	cfg        config.BackendConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newGeminiBackend(cfg config.BackendConfig, o *backendOptions) (Backend, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("gemini: %w (set GEMINI_API_KEY or GOOGLE_API_KEY)", ErrMissingAPIKey)
	}
	return &geminiBackend{
		cfg:        cfg,
		httpClient: o.httpClient,
		limiter:    newLimiter(cfg),
	}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

func (g *geminiBackend) Name() string { return config.BackendGemini }

func (g *geminiBackend) Complete(ctx context.Context, req Request) (*Completion, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}
	req = withDefaults(req, g.cfg)

	payload := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
	}
	if req.System != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	payload.GenerationConfig.Temperature = req.Temperature
	payload.GenerationConfig.MaxOutputTokens = req.MaxTokens

	// Key goes in a header, never the URL.
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimSuffix(g.cfg.BaseURL, "/"), url.PathEscape(req.Model))
	body, err := postJSON(ctx, g.httpClient, endpoint,
		map[string]string{"X-Goog-Api-Key": g.cfg.APIKey.Value()},
		payload)
	if err != nil {
		return nil, err
	}

	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from API")
	}

	model := resp.ModelVersion
	if model == "" {
		model = req.Model
	}
	return &Completion{
		Text:         text.String(),
		Model:        model,
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

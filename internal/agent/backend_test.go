package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/planify/internal/config"
)

func testBackendConfig(baseURL string) config.BackendConfig {
	return config.BackendConfig{
		BaseURL:     baseURL,
		APIKey:      config.Secret("test-key"),
		Temperature: 0.2,
		MaxTokens:   512,
	}
}

func TestAnthropicBackend_Complete(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("Anthropic-Version"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "{\"summary\":"}, {"type": "text", "text": "\"x\"}"}],
			"usage": {"input_tokens": 100, "output_tokens": 20}
		}`))
	}))
	defer srv.Close()

	b, err := NewBackend(config.BackendAnthropic, testBackendConfig(srv.URL))
	require.NoError(t, err)

	comp, err := b.Complete(context.Background(), Request{System: "sys", Prompt: "hello", Model: "claude-sonnet-4-20250514"})
	require.NoError(t, err)

	assert.Equal(t, `{"summary":"x"}`, comp.Text)
	assert.Equal(t, 100, comp.InputTokens)
	assert.Equal(t, 20, comp.OutputTokens)
	assert.Equal(t, "sys", got.System)
	assert.Equal(t, 512, got.MaxTokens, "max tokens defaults from backend config")
	assert.InDelta(t, 0.2, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)
}

func TestOpenAIBackend_Complete(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		_, _ = w.Write([]byte(`{
			"model": "gpt-4o-2024-08-06",
			"choices": [{"message": {"role": "assistant", "content": "answer"}}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 3}
		}`))
	}))
	defer srv.Close()

	b, err := NewBackend(config.BackendOpenAI, testBackendConfig(srv.URL))
	require.NoError(t, err)

	comp, err := b.Complete(context.Background(), Request{System: "sys", Prompt: "hello", Model: "gpt-4o", MaxTokens: 64})
	require.NoError(t, err)

	assert.Equal(t, "answer", comp.Text)
	assert.Equal(t, "gpt-4o-2024-08-06", comp.Model)
	assert.Equal(t, 7, comp.InputTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, 64, got.MaxTokens)
}

func TestGeminiBackend_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Empty(t, r.URL.RawQuery, "key must not be in the URL")
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"parts": [{"text": "part one "}, {"text": "part two"}]}}],
			"usageMetadata": {"promptTokenCount": 11, "candidatesTokenCount": 4}
		}`))
	}))
	defer srv.Close()

	b, err := NewBackend(config.BackendGemini, testBackendConfig(srv.URL))
	require.NoError(t, err)

	comp, err := b.Complete(context.Background(), Request{System: "be terse", Prompt: "hello", Model: "gemini-1.5-flash"})
	require.NoError(t, err)

	assert.Equal(t, "part one part two", comp.Text)
	assert.Equal(t, "gemini-1.5-flash", comp.Model)
	assert.Equal(t, 11, comp.InputTokens)
	assert.Equal(t, 4, comp.OutputTokens)

	sys, ok := got["systemInstruction"].(map[string]any)
	require.True(t, ok, "system prompt sent as systemInstruction")
	parts := sys["parts"].([]any)
	assert.Equal(t, "be terse", parts[0].(map[string]any)["text"])
}

func TestGeminiBackend_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": []}`))
	}))
	defer srv.Close()

	b, err := NewBackend(config.BackendGemini, testBackendConfig(srv.URL))
	require.NoError(t, err)

	_, err = b.Complete(context.Background(), Request{Prompt: "x", Model: "gemini-1.5-flash"})
	require.Error(t, err)
	assert.False(t, isRetryableError(err))
}

func TestBackend_StatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		contains  string
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, true, "429"},
		{"server error", http.StatusBadGateway, `upstream down`, true, "502"},
		{"bad request", http.StatusBadRequest, `{"error": {"type": "invalid_request_error", "message": "max_tokens too large"}}`, false, "max_tokens too large"},
		{"unauthorized", http.StatusUnauthorized, `nope`, false, "401"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			b, err := NewBackend(config.BackendAnthropic, testBackendConfig(srv.URL))
			require.NoError(t, err)

			_, err = b.Complete(context.Background(), Request{Prompt: "x", Model: "m"})
			require.Error(t, err)
			assert.Equal(t, tt.retryable, isRetryableError(err))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestCompatBackend_Complete(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "answer"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 11, "completion_tokens": 4}
		}`))
	}))
	defer srv.Close()

	cfg := testBackendConfig(srv.URL + "/v1")
	b, err := NewBackend(config.BackendCompat, cfg)
	require.NoError(t, err)

	comp, err := b.Complete(context.Background(), Request{System: "sys", Prompt: "hello", Model: "llama3.1"})
	require.NoError(t, err)

	assert.Equal(t, "answer", comp.Text)
	assert.Equal(t, 11, comp.InputTokens)
	assert.Equal(t, 4, comp.OutputTokens)
	assert.Equal(t, "llama3.1", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestNewBackend_Errors(t *testing.T) {
	_, err := NewBackend("mystery", config.BackendConfig{})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	for _, name := range []string{config.BackendOpenAI, config.BackendAnthropic, config.BackendGemini} {
		_, err := NewBackend(name, config.BackendConfig{BaseURL: "http://localhost"})
		assert.ErrorIs(t, err, ErrMissingAPIKey, name)
	}

	_, err = NewBackend(config.BackendCompat, config.BackendConfig{BaseURL: "http://localhost:11434/v1"})
	assert.NoError(t, err, "compat backend works without a key")
}

func TestNewLimiter_DisabledWhenRateZero(t *testing.T) {
	l := newLimiter(config.BackendConfig{})
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow())
	}
}

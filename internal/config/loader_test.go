package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "planify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// isolateEnv clears credential variables and points HOME at a temp dir so
// search paths and credentials from the developer machine do not leak in.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, cv := range credentialVars {
		t.Setenv(cv.env, "")
		os.Unsetenv(cv.env)
	}
	t.Chdir(t.TempDir())
}

func TestLoad_ValidYAML(t *testing.T) {
	isolateEnv(t)

	path := writeConfig(t, `
architect_backend: gemini
critic_backend: openai
integrator_backend: merge
model_names:
  architect: gemini-1.5-pro
timeouts:
  architect: 45s
retry_policy:
  max_attempts: 5
  initial_backoff: 250ms
history_rounds: 3
limits:
  max_rounds: 4
backends:
  openai:
    base_url: http://localhost:9999
    temperature: 0.1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendGemini, cfg.ArchitectBackend)
	assert.Equal(t, BackendOpenAI, cfg.CriticBackend)
	assert.Equal(t, BackendMerge, cfg.IntegratorBackend)
	assert.Equal(t, "gemini-1.5-pro", cfg.ModelNames.Architect)
	assert.Equal(t, "gpt-4o", cfg.ModelNames.Critic, "critic model defaults from backend")
	assert.Equal(t, 45*time.Second, cfg.Timeouts.Architect.Duration())
	assert.Equal(t, 120*time.Second, cfg.Timeouts.Critic.Duration())
	assert.Equal(t, 5, cfg.RetryPolicy.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryPolicy.InitialBackoff.Duration())
	assert.Equal(t, 3, cfg.HistoryRounds)
	assert.Equal(t, 4, cfg.Limits.MaxRounds)
	assert.Equal(t, "http://localhost:9999", cfg.Backends.OpenAI.BaseURL)
	assert.InDelta(t, 0.1, cfg.Backends.OpenAI.Temperature, 1e-9)
	assert.Equal(t, 4096, cfg.Backends.OpenAI.MaxTokens)
	assert.True(t, cfg.Secrets.Enabled, "secrets enabled by default")
	assert.True(t, cfg.Secrets.Gitleaks)
}

func TestLoad_NumericDurationsAreSeconds(t *testing.T) {
	isolateEnv(t)

	path := writeConfig(t, `
history_rounds: 2
timeouts:
  critic: 90
retry_policy:
  initial_backoff: 0.5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Timeouts.Critic.Duration())
	assert.Equal(t, 500*time.Millisecond, cfg.RetryPolicy.InitialBackoff.Duration())
}

func TestLoad_HistoryRoundsRequired(t *testing.T) {
	isolateEnv(t)

	path := writeConfig(t, "architect_backend: openai\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history_rounds is required")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolateEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoad_NoFileUsesEnvOnly(t *testing.T) {
	isolateEnv(t)
	t.Setenv("PLANIFY_HISTORY_ROUNDS", "1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.HistoryRounds)
	assert.Equal(t, 3, cfg.Limits.MaxRounds)
}

func TestLoad_SearchPathInWorkingDir(t *testing.T) {
	isolateEnv(t)
	require.NoError(t, os.WriteFile(".planify.yaml", []byte("history_rounds: 4\n"), 0600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.HistoryRounds)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	isolateEnv(t)

	path := writeConfig(t, `
history_rounds: 2
limits:
  max_rounds: 3
`)
	t.Setenv("PLANIFY_LIMITS_MAX_ROUNDS", "7")
	t.Setenv("PLANIFY_RETRY_POLICY_MAX_ATTEMPTS", "9")
	t.Setenv("PLANIFY_CRITIC_BACKEND", "gemini")
	t.Setenv("PLANIFY_BACKENDS_ANTHROPIC_BASE_URL", "http://proxy.local")
	t.Setenv("OPENAI_API_KEY", "sk-test-openai")
	t.Setenv("GOOGLE_API_KEY", "google-fallback")
	t.Setenv("GEMINI_API_KEY", "gemini-primary")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Limits.MaxRounds)
	assert.Equal(t, 9, cfg.RetryPolicy.MaxAttempts)
	assert.Equal(t, BackendGemini, cfg.CriticBackend)
	assert.Equal(t, "http://proxy.local", cfg.Backends.Anthropic.BaseURL)
	assert.Equal(t, "sk-test-openai", cfg.Backends.OpenAI.APIKey.Value())
	assert.Equal(t, "gemini-primary", cfg.Backends.Gemini.APIKey.Value())
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolateEnv(t)

	path := writeConfig(t, "history_rounds: [unclosed\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsWorldWritable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	isolateEnv(t)

	path := writeConfig(t, "history_rounds: 2\n")
	require.NoError(t, os.Chmod(path, 0666))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "world-writable")
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"PLANIFY_HISTORY_ROUNDS", "history_rounds"},
		{"PLANIFY_ARCHITECT_BACKEND", "architect_backend"},
		{"PLANIFY_LIMITS_MAX_ROUNDS", "limits.max_rounds"},
		{"PLANIFY_MODEL_NAMES_CRITIC", "model_names.critic"},
		{"PLANIFY_RETRY_POLICY_MAX_BACKOFF", "retry_policy.max_backoff"},
		{"PLANIFY_BACKENDS_OPENAI_MAX_TOKENS", "backends.openai.max_tokens"},
		{"PLANIFY_CONTEXT_WATCH", "context.watch"},
		{"PLANIFY_COMPAT_API_KEY", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, envKey(tt.in))
		})
	}
}

// Package config provides configuration loading for planify.
//
// Configuration is read once at startup from a YAML file and the process
// environment, validated, and treated as read-only afterwards.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend names accepted for the agent roles.
const (
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
	BackendGemini    = "gemini"
	BackendCompat    = "compat"

	// BackendMerge selects the deterministic integrator. Only valid for the
	// integrator role.
	BackendMerge = "merge"
)

// Config holds the complete planify configuration.
type Config struct {
	ArchitectBackend  string          `koanf:"architect_backend" yaml:"architect_backend"`
	CriticBackend     string          `koanf:"critic_backend" yaml:"critic_backend"`
	IntegratorBackend string          `koanf:"integrator_backend" yaml:"integrator_backend"`
	ModelNames        RoleModels      `koanf:"model_names" yaml:"model_names"`
	Timeouts          RoleTimeouts    `koanf:"timeouts" yaml:"timeouts"`
	RetryPolicy       RetryPolicy     `koanf:"retry_policy" yaml:"retry_policy"`
	HistoryRounds     int             `koanf:"history_rounds" yaml:"history_rounds"`
	Backends          Backends        `koanf:"backends" yaml:"backends"`
	Limits            LimitsConfig    `koanf:"limits" yaml:"limits"`
	Context           ContextConfig   `koanf:"context" yaml:"context"`
	Secrets           SecretsConfig   `koanf:"secrets" yaml:"secrets"`
	Session           SessionConfig   `koanf:"session" yaml:"session"`
	Output            OutputConfig    `koanf:"output" yaml:"output"`
	Logging           LoggingConfig   `koanf:"logging" yaml:"logging"`
	Telemetry         TelemetryConfig `koanf:"telemetry" yaml:"telemetry"`
}

// RoleModels names the model each agent role calls.
type RoleModels struct {
	Architect  string `koanf:"architect" yaml:"architect"`
	Critic     string `koanf:"critic" yaml:"critic"`
	Integrator string `koanf:"integrator" yaml:"integrator"`
}

// RoleTimeouts is the per-call timeout for each agent role.
type RoleTimeouts struct {
	Architect  Duration `koanf:"architect" yaml:"architect"`
	Critic     Duration `koanf:"critic" yaml:"critic"`
	Integrator Duration `koanf:"integrator" yaml:"integrator"`
}

// RetryPolicy controls agent call retries.
type RetryPolicy struct {
	MaxAttempts    int      `koanf:"max_attempts" yaml:"max_attempts"`
	InitialBackoff Duration `koanf:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     Duration `koanf:"max_backoff" yaml:"max_backoff"`
	Multiplier     float64  `koanf:"multiplier" yaml:"multiplier"`
}

// Backends holds connection settings per backend.
type Backends struct {
	OpenAI    BackendConfig `koanf:"openai" yaml:"openai"`
	Anthropic BackendConfig `koanf:"anthropic" yaml:"anthropic"`
	Gemini    BackendConfig `koanf:"gemini" yaml:"gemini"`
	Compat    BackendConfig `koanf:"compat" yaml:"compat"`
}

// BackendConfig configures a single language-model backend.
type BackendConfig struct {
	BaseURL     string  `koanf:"base_url" yaml:"base_url,omitempty"`
	APIKey      Secret  `koanf:"api_key" yaml:"api_key,omitempty"`
	Temperature float64 `koanf:"temperature" yaml:"temperature"`
	MaxTokens   int     `koanf:"max_tokens" yaml:"max_tokens"`
	RateLimit   float64 `koanf:"rate_limit" yaml:"rate_limit"` // requests per second
	Burst       int     `koanf:"burst" yaml:"burst"`
}

// LimitsConfig bounds a planning session.
type LimitsConfig struct {
	MaxRounds    int     `koanf:"max_rounds" yaml:"max_rounds"`
	MaxTotalCost float64 `koanf:"max_total_cost" yaml:"max_total_cost"` // USD
}

// ContextConfig controls repository context loading.
type ContextConfig struct {
	AutoDetect    []string `koanf:"auto_detect" yaml:"auto_detect"`
	Include       []string `koanf:"include" yaml:"include"`
	Exclude       []string `koanf:"exclude" yaml:"exclude"`
	MaxTokens     int      `koanf:"max_tokens" yaml:"max_tokens"`
	MaxFileTokens int      `koanf:"max_file_tokens" yaml:"max_file_tokens"`
	Watch         bool     `koanf:"watch" yaml:"watch"`
}

// SecretsConfig controls the secret scrubber.
type SecretsConfig struct {
	Enabled       bool          `koanf:"enabled" yaml:"enabled"`
	Gitleaks      bool          `koanf:"gitleaks" yaml:"gitleaks"`
	Entropy       EntropyConfig `koanf:"entropy" yaml:"entropy"`
	AllowlistFile string        `koanf:"allowlist_file" yaml:"allowlist_file,omitempty"`
}

// EntropyConfig configures generic high-entropy detection.
type EntropyConfig struct {
	MinLength int     `koanf:"min_length" yaml:"min_length"`
	Threshold float64 `koanf:"threshold" yaml:"threshold"`
}

// SessionConfig controls session persistence.
type SessionConfig struct {
	Dir string `koanf:"dir" yaml:"dir,omitempty"` // empty means <repo>/.planify-session
}

// OutputConfig controls the rendered plan document.
type OutputConfig struct {
	Path string `koanf:"path" yaml:"path"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled    bool    `koanf:"enabled" yaml:"enabled"`
	Endpoint   string  `koanf:"endpoint" yaml:"endpoint"`
	Protocol   string  `koanf:"protocol" yaml:"protocol"`
	Insecure   bool    `koanf:"insecure" yaml:"insecure"`
	SampleRate float64 `koanf:"sample_rate" yaml:"sample_rate"`
}

// Starter returns the configuration written by `planify config init`.
// Unlike Load, it sets history_rounds explicitly.
func Starter() *Config {
	cfg := newConfig()
	cfg.HistoryRounds = 2
	applyDefaults(cfg)
	return cfg
}

// newConfig returns a Config with boolean toggles that default to on.
// Unmarshal only overwrites keys present in the source.
func newConfig() *Config {
	return &Config{
		Secrets: SecretsConfig{Enabled: true, Gitleaks: true},
	}
}

// BackendFor returns the backend settings for a backend name.
func (c *Config) BackendFor(name string) (BackendConfig, bool) {
	switch name {
	case BackendOpenAI:
		return c.Backends.OpenAI, true
	case BackendAnthropic:
		return c.Backends.Anthropic, true
	case BackendGemini:
		return c.Backends.Gemini, true
	case BackendCompat:
		return c.Backends.Compat, true
	}
	return BackendConfig{}, false
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	for role, name := range map[string]string{
		"architect_backend": c.ArchitectBackend,
		"critic_backend":    c.CriticBackend,
	} {
		if _, ok := c.BackendFor(name); !ok {
			errs = append(errs, fmt.Errorf("%s: unknown backend %q", role, name))
		}
	}
	if c.IntegratorBackend != BackendMerge {
		if _, ok := c.BackendFor(c.IntegratorBackend); !ok {
			errs = append(errs, fmt.Errorf("integrator_backend: unknown backend %q", c.IntegratorBackend))
		}
	}

	for role, d := range map[string]Duration{
		"architect":  c.Timeouts.Architect,
		"critic":     c.Timeouts.Critic,
		"integrator": c.Timeouts.Integrator,
	} {
		if d.Duration() <= 0 {
			errs = append(errs, fmt.Errorf("timeouts.%s must be positive", role))
		}
	}

	if c.RetryPolicy.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry_policy.max_attempts must be >= 1, got %d", c.RetryPolicy.MaxAttempts))
	}
	if c.RetryPolicy.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("retry_policy.multiplier must be >= 1, got %g", c.RetryPolicy.Multiplier))
	}
	if c.RetryPolicy.MaxBackoff < c.RetryPolicy.InitialBackoff {
		errs = append(errs, errors.New("retry_policy.max_backoff must be >= initial_backoff"))
	}

	if c.HistoryRounds < 1 {
		errs = append(errs, errors.New("history_rounds is required and must be >= 1"))
	}

	if c.Limits.MaxRounds < 1 {
		errs = append(errs, fmt.Errorf("limits.max_rounds must be >= 1, got %d", c.Limits.MaxRounds))
	}
	if c.Limits.MaxTotalCost < 0 {
		errs = append(errs, errors.New("limits.max_total_cost cannot be negative"))
	}

	if c.Context.MaxTokens <= 0 || c.Context.MaxFileTokens <= 0 {
		errs = append(errs, errors.New("context.max_tokens and context.max_file_tokens must be positive"))
	}

	if c.Secrets.Entropy.MinLength < 0 || c.Secrets.Entropy.Threshold < 0 {
		errs = append(errs, errors.New("secrets.entropy values cannot be negative"))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			errs = append(errs, fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %g", c.Telemetry.SampleRate))
		}
	}

	return errors.Join(errs...)
}

// applyDefaults sets default values for missing configuration fields.
// history_rounds has no default and must be configured.
func applyDefaults(cfg *Config) {
	if cfg.ArchitectBackend == "" {
		cfg.ArchitectBackend = BackendOpenAI
	}
	if cfg.CriticBackend == "" {
		cfg.CriticBackend = BackendAnthropic
	}
	if cfg.IntegratorBackend == "" {
		cfg.IntegratorBackend = BackendAnthropic
	}

	for _, role := range []struct {
		model   *string
		backend string
	}{
		{&cfg.ModelNames.Architect, cfg.ArchitectBackend},
		{&cfg.ModelNames.Critic, cfg.CriticBackend},
		{&cfg.ModelNames.Integrator, cfg.IntegratorBackend},
	} {
		if *role.model == "" {
			*role.model = DefaultModel(role.backend)
		}
	}

	for _, d := range []*Duration{&cfg.Timeouts.Architect, &cfg.Timeouts.Critic, &cfg.Timeouts.Integrator} {
		if *d == 0 {
			*d = Duration(120 * time.Second)
		}
	}

	if cfg.RetryPolicy.MaxAttempts == 0 {
		cfg.RetryPolicy.MaxAttempts = 3
	}
	if cfg.RetryPolicy.InitialBackoff == 0 {
		cfg.RetryPolicy.InitialBackoff = Duration(time.Second)
	}
	if cfg.RetryPolicy.MaxBackoff == 0 {
		cfg.RetryPolicy.MaxBackoff = Duration(30 * time.Second)
	}
	if cfg.RetryPolicy.Multiplier == 0 {
		cfg.RetryPolicy.Multiplier = 2
	}

	backendDefaults(&cfg.Backends.OpenAI, "https://api.openai.com")
	backendDefaults(&cfg.Backends.Anthropic, "https://api.anthropic.com")
	backendDefaults(&cfg.Backends.Gemini, "https://generativelanguage.googleapis.com")
	backendDefaults(&cfg.Backends.Compat, "http://localhost:11434/v1")

	if cfg.Limits.MaxRounds == 0 {
		cfg.Limits.MaxRounds = 3
	}
	if cfg.Limits.MaxTotalCost == 0 {
		cfg.Limits.MaxTotalCost = 1.00
	}

	if cfg.Context.AutoDetect == nil {
		cfg.Context.AutoDetect = []string{"CLAUDE.md", "PROJECT_BRIEF.md", "ARCHITECTURE.md", "README.md"}
	}
	if cfg.Context.MaxTokens == 0 {
		cfg.Context.MaxTokens = 50000
	}
	if cfg.Context.MaxFileTokens == 0 {
		cfg.Context.MaxFileTokens = 5000
	}

	if cfg.Secrets.Entropy.MinLength == 0 {
		cfg.Secrets.Entropy.MinLength = 32
	}
	if cfg.Secrets.Entropy.Threshold == 0 {
		cfg.Secrets.Entropy.Threshold = 4.3
	}

	if cfg.Output.Path == "" {
		cfg.Output.Path = ".agents/planner/plans/{slug}.md"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
}

func backendDefaults(b *BackendConfig, baseURL string) {
	if b.BaseURL == "" {
		b.BaseURL = baseURL
	}
	if b.Temperature == 0 {
		b.Temperature = 0.3
	}
	if b.MaxTokens == 0 {
		b.MaxTokens = 4096
	}
	if b.RateLimit == 0 {
		b.RateLimit = 50.0 / 60.0
	}
	if b.Burst == 0 {
		b.Burst = 5
	}
}

// DefaultModel returns the model used for a backend when none is configured.
func DefaultModel(backend string) string {
	switch backend {
	case BackendOpenAI:
		return "gpt-4o"
	case BackendAnthropic:
		return "claude-sonnet-4-20250514"
	case BackendGemini:
		return "gemini-1.5-flash"
	case BackendCompat:
		return "llama3.1"
	}
	return ""
}

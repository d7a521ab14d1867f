package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix marks environment overrides, e.g. PLANIFY_LIMITS_MAX_ROUNDS.
	EnvPrefix = "PLANIFY_"
)

// ErrConfigNotFound is returned when an explicitly requested config file does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// credentialVars maps credential environment variables to config keys.
// GOOGLE_API_KEY is a fallback for GEMINI_API_KEY and is loaded first.
var credentialVars = []struct {
	env string
	key string
}{
	{"GOOGLE_API_KEY", "backends.gemini.api_key"},
	{"GEMINI_API_KEY", "backends.gemini.api_key"},
	{"OPENAI_API_KEY", "backends.openai.api_key"},
	{"ANTHROPIC_API_KEY", "backends.anthropic.api_key"},
	{"PLANIFY_COMPAT_API_KEY", "backends.compat.api_key"},
}

// topLevelKeys are config keys whose names contain underscores but are not nested.
var topLevelKeys = []string{
	"architect_backend",
	"critic_backend",
	"integrator_backend",
	"history_rounds",
}

// nestedSections have underscores in the section name itself.
var nestedSections = []string{
	"model_names",
	"retry_policy",
}

// Load loads configuration from a YAML file, then overrides with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. PLANIFY_* environment variables and provider credential variables
//  2. YAML config file
//  3. Hardcoded defaults
//
// If configPath is empty, the first existing file in SearchPaths is used and a
// missing file is not an error. An explicit configPath must exist.
//
// Credential variables (OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY or
// GOOGLE_API_KEY, PLANIFY_COMPAT_API_KEY) are mapped into backends.<name>.api_key.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	path, err := resolvePath(configPath)
	if err != nil {
		return nil, err
	}

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// PLANIFY_LIMITS_MAX_ROUNDS -> limits.max_rounds
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	for _, cv := range credentialVars {
		if err := k.Load(env.Provider(cv.env, ".", func(s string) string {
			if s != cv.env {
				return ""
			}
			return cv.key
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", cv.env, err)
		}
	}

	cfg := newConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook:       decodeHook(),
			Result:           cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// SearchPaths returns the locations checked when no config path is given.
func SearchPaths() []string {
	paths := []string{"planify.yaml", ".planify.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "planify", "config.yaml"))
	}
	return paths
}

// resolvePath returns the config file to read, or "" when none exists.
func resolvePath(configPath string) (string, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			if os.IsNotExist(err) {
				return "", fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
			}
			return "", fmt.Errorf("failed to stat config file: %w", err)
		}
		return configPath, nil
	}
	for _, p := range SearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// readConfigFile reads a config file after validating it through the open
// descriptor to avoid a TOCTOU race.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigFileProperties checks file type, permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", info.Name())
	}

	// World-writable files could be swapped for one pointing agents at another endpoint.
	if runtime.GOOS != "windows" && info.Mode().Perm()&0002 != 0 {
		return fmt.Errorf("insecure config file permissions: %v (must not be world-writable)", info.Mode().Perm())
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// envKey maps a PLANIFY_ environment variable to a config key.
//
//	PLANIFY_HISTORY_ROUNDS        -> history_rounds
//	PLANIFY_LIMITS_MAX_ROUNDS     -> limits.max_rounds
//	PLANIFY_RETRY_POLICY_MAX_ATTEMPTS -> retry_policy.max_attempts
//	PLANIFY_BACKENDS_OPENAI_BASE_URL  -> backends.openai.base_url
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if lower == "compat_api_key" {
		// Handled as a credential variable.
		return ""
	}

	for _, k := range topLevelKeys {
		if lower == k {
			return k
		}
	}
	for _, section := range nestedSections {
		if strings.HasPrefix(lower, section+"_") {
			return section + "." + strings.TrimPrefix(lower, section+"_")
		}
	}

	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	if parts[0] == "backends" {
		// backends_<name>_<field>
		sub := strings.SplitN(parts[1], "_", 2)
		if len(sub) == 2 {
			return "backends." + sub[0] + "." + sub[1]
		}
	}
	return parts[0] + "." + parts[1]
}

package secrets

import (
	"fmt"

	"github.com/fyrsmithlabs/planify/internal/config"
)

// NewFromSettings builds the scrubber described by the application config.
// The project allowlist is read from repoPath. A disabled config yields a
// NoopScrubber.
func NewFromSettings(cfg config.SecretsConfig, repoPath string) (Scrubber, error) {
	if !cfg.Enabled {
		return &NoopScrubber{}, nil
	}

	allow, err := LoadAllowlist(repoPath, cfg.AllowlistFile)
	if err != nil {
		return nil, fmt.Errorf("loading allowlist: %w", err)
	}

	sc := DefaultConfig()
	sc.Gitleaks = cfg.Gitleaks
	sc.AllowList = allow.Regexes
	sc.Entropy = EntropyConfig{
		MinLength: cfg.Entropy.MinLength,
		Threshold: cfg.Entropy.Threshold,
	}
	return New(sc)
}

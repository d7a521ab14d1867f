package secrets

import (
	"regexp"
	"sync"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// gitleaksFinding is the part of a gitleaks finding the scrubber uses.
type gitleaksFinding struct {
	ruleID      string
	description string
	secret      string
}

// gitleaksDetector runs the gitleaks default ruleset over strings.
type gitleaksDetector struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// newGitleaksDetector builds a detector with the default config (800+ rules)
// plus the given allowlist regexes.
func newGitleaksDetector(allow []*regexp.Regexp) (*gitleaksDetector, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, err
	}

	if len(allow) > 0 {
		al := &gitleaksConfig.Allowlist{
			Description: "planify allowlist",
		}
		for _, re := range allow {
			al.Regexes = append(al.Regexes, (*gitleaksRegexp.Regexp)(re))
		}
		detector.Config.Allowlists = append(detector.Config.Allowlists, al)
	}

	return &gitleaksDetector{detector: detector}, nil
}

func (g *gitleaksDetector) detect(content string) []gitleaksFinding {
	g.mu.Lock()
	findings := g.detector.DetectString(content)
	g.mu.Unlock()

	out := make([]gitleaksFinding, 0, len(findings))
	for _, f := range findings {
		if f.Secret == "" {
			continue
		}
		out = append(out, gitleaksFinding{
			ruleID:      f.RuleID,
			description: f.Description,
			secret:      f.Secret,
		})
	}
	return out
}

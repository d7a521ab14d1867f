package secrets

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Marker replaces every redacted secret. Its width does not depend on the
// secret it replaces.
const Marker = "[REDACTED]"

// secretGroup names the capture group that narrows a rule's redaction, as
// in `password\s*=\s*(?P<secret>\S+)`. Rules without it redact the whole
// match.
const secretGroup = "secret"

// Config describes what the scrubber looks for. Validate compiles it; New
// calls Validate.
type Config struct {
	Enabled   bool
	Rules     []Rule
	AllowList []string // regexps; a match that one of these matches is kept
	Entropy   EntropyConfig
	Gitleaks  bool // second pass with the gitleaks default ruleset

	compiledRules     []*compiledRule
	compiledAllowList []*regexp.Regexp
}

// EntropyConfig flags long random-looking tokens that no rule names.
// MinLength 0 turns the check off.
type EntropyConfig struct {
	MinLength int
	Threshold float64 // Shannon bits per character
}

type Rule struct {
	ID          string
	Description string
	Pattern     string
	Keywords    []string // rule runs only if one appears, case-insensitively
	Severity    string   // high, medium or low
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	group    int      // submatch to redact; 0 is the whole match
	keywords []string // lowercased
}

// DefaultConfig enables the built-in rules and entropy detection. The
// gitleaks pass stays off until a caller sets Gitleaks.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Rules:   DefaultRules(),
		Entropy: EntropyConfig{MinLength: 32, Threshold: 4.3},
	}
}

func compileRule(r Rule) (*compiledRule, error) {
	switch {
	case r.ID == "":
		return nil, errors.New("rule without id")
	case r.Pattern == "":
		return nil, fmt.Errorf("rule %s: empty pattern", r.ID)
	}
	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: rule %s: %v", ErrInvalidRegex, r.ID, err)
	}
	cr := &compiledRule{Rule: r, pattern: re}
	if idx := re.SubexpIndex(secretGroup); idx > 0 {
		cr.group = idx
	}
	for _, kw := range r.Keywords {
		cr.keywords = append(cr.keywords, strings.ToLower(kw))
	}
	return cr, nil
}

// applies reports whether the rule should run on content, given as
// lowercased text.
func (r *compiledRule) applies(lower string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Validate compiles rules and the allow list, reporting every problem. A
// disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error
	if c.Entropy.MinLength < 0 || c.Entropy.Threshold < 0 {
		errs = append(errs, errors.New("entropy min_length and threshold must be >= 0"))
	}

	c.compiledRules = c.compiledRules[:0]
	ids := make(map[string]bool, len(c.Rules))
	for _, r := range c.Rules {
		if ids[r.ID] && r.ID != "" {
			errs = append(errs, fmt.Errorf("duplicate rule id %s", r.ID))
			continue
		}
		ids[r.ID] = true
		cr, err := compileRule(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c.compiledRules = append(c.compiledRules, cr)
	}

	c.compiledAllowList = c.compiledAllowList[:0]
	for i, p := range c.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: allow list entry %d: %v", ErrInvalidRegex, i, err))
			continue
		}
		c.compiledAllowList = append(c.compiledAllowList, re)
	}
	return errors.Join(errs...)
}

package secrets

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
)

// Scrubber detects and redacts secrets from content.
type Scrubber interface {
	// Scrub redacts secrets from the content.
	Scrub(content string) *Result

	// Check detects secrets without redacting.
	Check(content string) *Result

	// IsEnabled returns whether scrubbing is enabled.
	IsEnabled() bool
}

// ScrubString returns content with secrets redacted by s.
func ScrubString(s Scrubber, content string) string {
	if s == nil || content == "" {
		return content
	}
	return s.Scrub(content).Scrubbed
}

// scrubber is the default implementation using regexp patterns.
type scrubber struct {
	config   *Config
	entropy  *regexp.Regexp
	gitleaks *gitleaksDetector
}

// redaction tracks a byte range to redact.
type redaction struct {
	start, end int
}

// New creates a new Scrubber with the given configuration.
// If config is nil, DefaultConfig() is used.
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &scrubber{config: cfg}
	if !cfg.Enabled {
		return s, nil
	}

	if cfg.Entropy.MinLength > 0 {
		// '=' only as trailing padding so KEY=value keeps its key
		s.entropy = regexp.MustCompile(fmt.Sprintf(`[A-Za-z0-9+_\-]{%d,}={0,2}`, cfg.Entropy.MinLength))
	}

	if cfg.Gitleaks {
		d, err := newGitleaksDetector(cfg.compiledAllowList)
		if err != nil {
			return nil, fmt.Errorf("failed to create gitleaks detector: %w", err)
		}
		s.gitleaks = d
	}

	return s, nil
}

// MustNew creates a new Scrubber, panicking on error.
func MustNew(cfg *Config) Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Scrub redacts secrets from the content.
//
// Detection repeats until a pass finds nothing new. Every pass replaces at
// least one unredacted byte, so the loop ends, and the result is a fixed
// point: Scrub(Scrub(x).Scrubbed) leaves the text unchanged.
func (s *scrubber) Scrub(content string) *Result {
	start := time.Now()
	result := newResult(content)

	if !s.config.Enabled {
		result.Duration = time.Since(start)
		return result
	}

	scrubbed := content
	for {
		redactions := s.detect(scrubbed, result)
		if len(redactions) == 0 {
			break
		}
		scrubbed = applyRedactions(scrubbed, redactions)
	}

	result.Scrubbed = scrubbed
	result.Duration = time.Since(start)
	return result
}

// Check detects secrets without redacting.
func (s *scrubber) Check(content string) *Result {
	result := s.Scrub(content)
	result.Scrubbed = result.Original
	return result
}

// IsEnabled returns whether scrubbing is enabled.
func (s *scrubber) IsEnabled() bool {
	return s.config.Enabled
}

// detect runs one detection pass over content and records findings.
// Ranges already covered by a Marker are never returned.
func (s *scrubber) detect(content string, result *Result) []redaction {
	markers := markerSpans(content)
	var redactions []redaction

	add := func(ruleID, description, severity string, start, end int) {
		if start >= end || s.isAllowed(content[start:end]) {
			return
		}
		segments := subtractSpans(redaction{start, end}, markers)
		if len(segments) == 0 {
			return
		}
		result.Findings = append(result.Findings, Finding{
			RuleID:      ruleID,
			Description: description,
			Severity:    severity,
			Line:        strings.Count(content[:start], "\n") + 1,
		})
		redactions = append(redactions, segments...)
	}

	lower := strings.ToLower(content)
	for _, rule := range s.config.compiledRules {
		if !rule.applies(lower) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringSubmatchIndex(content, -1) {
			start, end := m[0], m[1]
			if rule.group > 0 && m[2*rule.group] >= 0 {
				start, end = m[2*rule.group], m[2*rule.group+1]
			}
			add(rule.ID, rule.Description, rule.Severity, start, end)
		}
	}

	if s.entropy != nil {
		for _, m := range s.entropy.FindAllStringIndex(content, -1) {
			token := content[m[0]:m[1]]
			if looksRandom(token) && shannonEntropy(token) >= s.config.Entropy.Threshold {
				add("high-entropy", "High-entropy string", "medium", m[0], m[1])
			}
		}
	}

	if s.gitleaks != nil {
		for _, f := range s.gitleaks.detect(content) {
			for _, r := range indexAll(content, f.secret) {
				add("gitleaks:"+f.ruleID, f.description, "high", r.start, r.end)
			}
		}
	}

	return redactions
}

// isAllowed checks if the match is in the allow list.
func (s *scrubber) isAllowed(match string) bool {
	for _, pattern := range s.config.compiledAllowList {
		if pattern.MatchString(match) {
			return true
		}
	}
	return false
}

// applyRedactions merges overlapping or adjacent ranges and replaces each
// with the Marker.
func applyRedactions(content string, redactions []redaction) string {
	sort.Slice(redactions, func(i, j int) bool {
		return redactions[i].start < redactions[j].start
	})
	merged := mergeRedactions(redactions)

	var b strings.Builder
	b.Grow(len(content))
	prev := 0
	for _, r := range merged {
		b.WriteString(content[prev:r.start])
		b.WriteString(Marker)
		prev = r.end
	}
	b.WriteString(content[prev:])
	return b.String()
}

// mergeRedactions merges overlapping or adjacent redactions sorted by start.
func mergeRedactions(redactions []redaction) []redaction {
	if len(redactions) == 0 {
		return redactions
	}

	merged := []redaction{redactions[0]}
	for i := 1; i < len(redactions); i++ {
		last := &merged[len(merged)-1]
		curr := redactions[i]
		if curr.start <= last.end {
			if curr.end > last.end {
				last.end = curr.end
			}
		} else {
			merged = append(merged, curr)
		}
	}
	return merged
}

// markerSpans returns the ranges of existing markers in content.
func markerSpans(content string) []redaction {
	return indexAll(content, Marker)
}

// indexAll returns the non-overlapping ranges where sub occurs in content.
func indexAll(content, sub string) []redaction {
	if sub == "" {
		return nil
	}
	var spans []redaction
	offset := 0
	for {
		i := strings.Index(content[offset:], sub)
		if i < 0 {
			return spans
		}
		start := offset + i
		spans = append(spans, redaction{start, start + len(sub)})
		offset = start + len(sub)
	}
}

// subtractSpans removes the sorted, disjoint holes from r.
func subtractSpans(r redaction, holes []redaction) []redaction {
	var out []redaction
	cur := r.start
	for _, h := range holes {
		if h.end <= cur {
			continue
		}
		if h.start >= r.end {
			break
		}
		if h.start > cur {
			out = append(out, redaction{cur, h.start})
		}
		cur = h.end
	}
	if cur < r.end {
		out = append(out, redaction{cur, r.end})
	}
	return out
}

// looksRandom requires both letters and digits, which keeps long
// identifiers and words out of the entropy check.
func looksRandom(token string) bool {
	var letter, digit bool
	for _, r := range token {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}

// shannonEntropy returns the Shannon entropy of s in bits per character.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := make(map[rune]int)
	n := 0
	for _, r := range s {
		freq[r]++
		n++
	}
	var h float64
	for _, c := range freq {
		p := float64(c) / float64(n)
		h -= p * math.Log2(p)
	}
	return h
}

// NoopScrubber is a scrubber that does nothing (for testing or disabled mode).
type NoopScrubber struct{}

// Scrub returns content unchanged.
func (n *NoopScrubber) Scrub(content string) *Result {
	return newResult(content)
}

// Check returns content unchanged.
func (n *NoopScrubber) Check(content string) *Result {
	return n.Scrub(content)
}

// IsEnabled returns false.
func (n *NoopScrubber) IsEnabled() bool {
	return false
}

var _ Scrubber = (*scrubber)(nil)
var _ Scrubber = (*NoopScrubber)(nil)

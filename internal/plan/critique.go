package plan

import (
	"errors"
	"fmt"
	"strings"
)

// Severity grades a critique issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
	SeverityInfo     Severity = "info"
)

// ValidSeverities maps accepted severity strings to their typed values.
var ValidSeverities = map[string]Severity{
	"critical": SeverityCritical,
	"major":    SeverityMajor,
	"minor":    SeverityMinor,
	"info":     SeverityInfo,
}

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	_, ok := ValidSeverities[string(s)]
	return ok
}

// Blocking reports whether an issue of this severity should hold approval.
func (s Severity) Blocking() bool {
	return s == SeverityCritical || s == SeverityMajor
}

// Issue is one problem the Critic found.
type Issue struct {
	Severity      Severity `json:"severity"`
	Description   string   `json:"description"`
	TargetStepRef string   `json:"target_step_ref,omitempty"`
}

// Critique is structured feedback on a Plan.
type Critique struct {
	Issues   []Issue `json:"issues"`
	Approved bool    `json:"approved"`
	Verdict  string  `json:"verdict,omitempty"`
}

// Validate checks that every issue has a known severity and a description.
func (c *Critique) Validate() error {
	var errs []error
	for i, issue := range c.Issues {
		if !issue.Severity.IsValid() {
			errs = append(errs, fmt.Errorf("issue %d: unknown severity %q", i+1, issue.Severity))
		}
		if strings.TrimSpace(issue.Description) == "" {
			errs = append(errs, fmt.Errorf("issue %d: description is required", i+1))
		}
	}
	return errors.Join(errs...)
}

// Normalize lowercases severities so "Major" parses as "major".
func (c *Critique) Normalize() {
	for i := range c.Issues {
		c.Issues[i].Severity = Severity(strings.ToLower(strings.TrimSpace(string(c.Issues[i].Severity))))
	}
}

// Counts returns the number of issues per severity.
func (c *Critique) Counts() map[Severity]int {
	counts := make(map[Severity]int, len(ValidSeverities))
	for _, issue := range c.Issues {
		counts[issue.Severity]++
	}
	return counts
}

// Scrub returns a copy of the critique with fn applied to every string field.
func (c Critique) Scrub(fn func(string) string) Critique {
	out := Critique{
		Approved: c.Approved,
		Verdict:  fn(c.Verdict),
	}
	if c.Issues != nil {
		out.Issues = make([]Issue, len(c.Issues))
		for i, issue := range c.Issues {
			out.Issues[i] = Issue{
				Severity:      issue.Severity,
				Description:   fn(issue.Description),
				TargetStepRef: fn(issue.TargetStepRef),
			}
		}
	}
	return out
}

// RepeatedIssues returns the issues in cur that the Critic already raised in
// prev: same target step, and one description contains the other ignoring case.
func RepeatedIssues(prev, cur *Critique) []Issue {
	if prev == nil || cur == nil {
		return nil
	}
	var repeated []Issue
	for _, c := range cur.Issues {
		cd := strings.ToLower(strings.TrimSpace(c.Description))
		for _, p := range prev.Issues {
			if p.TargetStepRef != c.TargetStepRef {
				continue
			}
			pd := strings.ToLower(strings.TrimSpace(p.Description))
			if cd == "" || pd == "" {
				continue
			}
			if strings.Contains(cd, pd) || strings.Contains(pd, cd) {
				repeated = append(repeated, c)
				break
			}
		}
	}
	return repeated
}

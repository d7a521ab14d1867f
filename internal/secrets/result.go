package secrets

import (
	"fmt"
	"sort"
	"time"
)

// Result is the outcome of scanning one string: a repository file, the
// task text, or a field of an agent reply.
type Result struct {
	Original string        `json:"-"`
	Scrubbed string        `json:"scrubbed"`
	Findings []Finding     `json:"findings,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Finding records where a secret was and which rule caught it. The
// matched value itself is never stored.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Line        int    `json:"line,omitempty"` // 1-based
}

// severityRank orders the severities rules may declare; unknown values
// rank lowest.
var severityRank = map[string]int{"low": 1, "medium": 2, "high": 3}

func newResult(content string) *Result {
	return &Result{Original: content, Scrubbed: content}
}

func (r *Result) HasFindings() bool { return len(r.Findings) > 0 }

func (r *Result) Count() int { return len(r.Findings) }

// RuleIDs returns each matching rule once, sorted.
func (r *Result) RuleIDs() []string {
	seen := make(map[string]struct{}, len(r.Findings))
	ids := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		if _, ok := seen[f.RuleID]; ok {
			continue
		}
		seen[f.RuleID] = struct{}{}
		ids = append(ids, f.RuleID)
	}
	sort.Strings(ids)
	return ids
}

// Highest returns the most severe finding's severity, or "" if none.
func (r *Result) Highest() string {
	top := ""
	for _, f := range r.Findings {
		if top == "" || severityRank[f.Severity] > severityRank[top] {
			top = f.Severity
		}
	}
	return top
}

// Summary is a one-line description for logs and dry-run output.
func (r *Result) Summary() string {
	switch top := r.Highest(); {
	case !r.HasFindings():
		return "no secrets detected"
	case top == "":
		return "secrets redacted"
	default:
		return fmt.Sprintf("secrets redacted (%s severity)", top)
	}
}

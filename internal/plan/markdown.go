package plan

import (
	"fmt"
	"strings"
	"time"
)

// Document is the input for rendering a finished planning session.
type Document struct {
	Task      string
	SessionID string
	Status    string
	CreatedAt time.Time
	Plan      Plan
	Rounds    []RoundNote
	DocImpact *DocImpactAnalysis // nil when the repository has no routing table
}

// RoundNote is the per-round part of the critique log.
type RoundNote struct {
	Index         int
	Critique      Critique
	HumanFeedback string
}

// Markdown renders the final plan document.
func Markdown(doc Document) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Plan: %s\n\n", firstLine(doc.Task))
	fmt.Fprintf(&b, "**Agent**: planify (Architect + Critic + Integrator)\n")
	if doc.SessionID != "" {
		fmt.Fprintf(&b, "**Session**: %s\n", doc.SessionID)
	}
	if doc.Status != "" {
		fmt.Fprintf(&b, "**Status**: %s\n", doc.Status)
	}
	if !doc.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "**Created**: %s\n", doc.CreatedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "**Rounds**: %d\n", len(doc.Rounds))

	b.WriteString("\n## Summary\n\n")
	b.WriteString(strings.TrimSpace(doc.Plan.Summary) + "\n")

	if len(doc.Plan.Assumptions) > 0 {
		b.WriteString("\n## Assumptions\n\n")
		for _, a := range doc.Plan.Assumptions {
			b.WriteString("- [ ] " + a + "\n")
		}
	}

	b.WriteString("\n## Implementation Steps\n")
	for i, s := range doc.Plan.Steps {
		fmt.Fprintf(&b, "\n### %d. %s\n", i+1, s.Title)
		if d := strings.TrimSpace(s.Description); d != "" {
			b.WriteString("\n" + d + "\n")
		}
		if len(s.Files) > 0 {
			b.WriteString("\nFiles: `" + strings.Join(s.Files, "`, `") + "`\n")
		}
		for _, n := range s.Notes {
			b.WriteString("\n> " + n + "\n")
		}
	}

	if len(doc.Plan.Risks) > 0 {
		b.WriteString("\n## Risks\n\n")
		for _, r := range doc.Plan.Risks {
			b.WriteString("- " + r + "\n")
		}
	}

	if tasks := ExtractTasks(doc.Plan); len(tasks) > 0 {
		b.WriteString("\n## Task List\n\n")
		for _, t := range tasks {
			b.WriteString(checkbox(t.Completed) + " " + t.Content + "\n")
		}
	}

	if doc.DocImpact != nil {
		b.WriteString("\n## Documentation Impact\n\n")
		b.WriteString(docImpactMarkdown(doc.DocImpact))
	}

	if len(doc.Rounds) > 0 {
		b.WriteString("\n## Critique Log\n")
		for _, r := range doc.Rounds {
			verdict := "changes requested"
			if r.Critique.Approved {
				verdict = "approved"
			}
			fmt.Fprintf(&b, "\n### Round %d (%s)\n\n", r.Index, verdict)
			if r.Critique.Verdict != "" {
				b.WriteString(r.Critique.Verdict + "\n\n")
			}
			if len(r.Critique.Issues) == 0 {
				b.WriteString("No issues raised.\n")
			}
			for _, issue := range r.Critique.Issues {
				if issue.TargetStepRef != "" {
					fmt.Fprintf(&b, "- **%s** (step %s): %s\n", issue.Severity, issue.TargetStepRef, issue.Description)
				} else {
					fmt.Fprintf(&b, "- **%s**: %s\n", issue.Severity, issue.Description)
				}
			}
			if r.HumanFeedback != "" {
				b.WriteString("\nHuman feedback: " + r.HumanFeedback + "\n")
			}
		}
	}

	return b.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/planify/internal/orchestrator"
	"github.com/fyrsmithlabs/planify/internal/plan"
	"github.com/fyrsmithlabs/planify/internal/session"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// display renders orchestrator progress for a terminal.
type display struct {
	w io.Writer
}

func newDisplay(w io.Writer) *display {
	return &display{w: w}
}

func (d *display) header(task, repo string) {
	fmt.Fprintln(d.w, headerStyle.Render("planify"), valueStyle.Render(firstLine(task)))
	fmt.Fprintln(d.w, labelStyle.Render("Repository:"), dimStyle.Render(repo))
}

// progress is the orchestrator progress callback.
func (d *display) progress(e orchestrator.Event) {
	switch e.Kind {
	case orchestrator.EventEntered:
		if e.State == orchestrator.StateDrafting {
			fmt.Fprintln(d.w, sectionStyle.Render(fmt.Sprintf("Round %d/%d", e.Round, e.MaxRounds)))
		}
		if label, ok := stateLabels[e.State]; ok {
			fmt.Fprintln(d.w, dimStyle.Render("  … "+label))
		}
	case orchestrator.EventCompleted:
		if line := completedLine(e); line != "" {
			fmt.Fprintln(d.w, line)
		}
	case orchestrator.EventWarning:
		fmt.Fprintln(d.w, warningStyle.Render("  ⚠ "+e.Message))
	}
}

var stateLabels = map[orchestrator.State]string{
	orchestrator.StateDrafting:         "Architect drafting",
	orchestrator.StateCritiquing:       "Critic reviewing",
	orchestrator.StateIntegrating:      "Integrator merging",
	orchestrator.StateAwaitingFeedback: "Waiting for feedback",
}

func completedLine(e orchestrator.Event) string {
	ok := healthyStyle.Render("  ✓")
	switch e.State {
	case orchestrator.StateDrafting:
		return fmt.Sprintf("%s Draft: %s %s", ok, stepCount(e.Plan), usageNote(e))
	case orchestrator.StateCritiquing:
		return fmt.Sprintf("%s Critique: %s %s", ok, critiqueNote(e.Critique), usageNote(e))
	case orchestrator.StateIntegrating:
		return fmt.Sprintf("%s Integrated: %s %s", ok, stepCount(e.Plan), usageNote(e))
	case orchestrator.StateAborted:
		return warningStyle.Render("  ✗ aborted: " + e.Message)
	case orchestrator.StateFailed:
		return errorStyle.Render("  ✗ failed: " + e.Message)
	}
	return ""
}

func stepCount(p *plan.Plan) string {
	if p == nil {
		return "no plan"
	}
	if len(p.Steps) == 1 {
		return "1 step"
	}
	return fmt.Sprintf("%d steps", len(p.Steps))
}

func critiqueNote(c *plan.Critique) string {
	if c == nil {
		return "none"
	}
	verdict := "changes requested"
	if c.Approved {
		verdict = "approved"
	}
	if len(c.Issues) == 0 {
		return verdict
	}

	counts := c.Counts()
	var parts []string
	for _, sev := range severityOrder {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	return fmt.Sprintf("%s (%s)", verdict, strings.Join(parts, ", "))
}

var severityOrder = []plan.Severity{
	plan.SeverityCritical, plan.SeverityMajor, plan.SeverityMinor, plan.SeverityInfo,
}

func usageNote(e orchestrator.Event) string {
	var parts []string
	if e.Usage.CostUSD > 0 {
		parts = append(parts, fmt.Sprintf("$%.4f", e.Usage.CostUSD))
	}
	if e.Duration > 0 {
		parts = append(parts, e.Duration.Round(100*time.Millisecond).String())
	}
	if len(parts) == 0 {
		return ""
	}
	return dimStyle.Render("(" + strings.Join(parts, ", ") + ")")
}

// outcome prints the final summary box.
func (d *display) outcome(out orchestrator.Outcome, planPath string) {
	var lines []string
	lines = append(lines, labelStyle.Render("Status:  ")+stateStyle(out.State).Render(string(out.State)))

	if sess := out.Session; sess != nil {
		lines = append(lines,
			labelStyle.Render("Session: ")+valueStyle.Render(sess.ID),
			labelStyle.Render("Rounds:  ")+valueStyle.Render(fmt.Sprintf("%d", len(sess.Rounds))),
			labelStyle.Render("Cost:    ")+valueStyle.Render(fmt.Sprintf("$%.4f", sess.Usage.CostUSD)),
		)
		if f := sess.Failure; f != nil {
			lines = append(lines, labelStyle.Render("Reason:  ")+errorStyle.Render(failureText(f)))
		}
		if sess.Status == session.StatusInProgress {
			lines = append(lines, dimStyle.Render("Resume with: planify --resume "+sess.ID))
		}
	}
	// A recorded Failure already names the cause; anything else (a terminal
	// session on resume, a request error) is only in Err.
	if out.Err != nil && (out.Session == nil || out.Session.Failure == nil) {
		lines = append(lines, labelStyle.Render("Error:   ")+errorStyle.Render(out.Err.Error()))
	}
	if planPath != "" {
		lines = append(lines, labelStyle.Render("Plan:    ")+valueStyle.Render(planPath))
	}

	fmt.Fprintln(d.w, containerStyle.Render(strings.Join(lines, "\n")))
}

func stateStyle(s orchestrator.State) lipgloss.Style {
	switch s {
	case orchestrator.StateDone:
		return healthyStyle
	case orchestrator.StateAborted:
		return warningStyle
	default:
		return errorStyle
	}
}

func failureText(f *session.Failure) string {
	text := f.Kind
	if f.Agent != "" {
		text += " (" + f.Agent
		if f.Attempts > 0 {
			text += fmt.Sprintf(", %d attempts", f.Attempts)
		}
		text += ")"
	}
	if f.Message != "" {
		text += ": " + f.Message
	}
	return text
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

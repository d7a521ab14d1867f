package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/planify/internal/plan"
)

// Role identifies an agent in the planning cycle.
type Role string

const (
	RoleArchitect  Role = "architect"
	RoleCritic     Role = "critic"
	RoleIntegrator Role = "integrator"
)

func (r Role) String() string { return string(r) }

// HistoryRound summarizes a completed round for later prompts.
type HistoryRound struct {
	Index         int
	Integrated    plan.Plan
	Critique      plan.Critique
	HumanFeedback string
}

// PromptContext is everything an agent may see for one call.
// History is already truncated by the caller.
type PromptContext struct {
	Task          string
	RepoContext   string
	History       []HistoryRound
	Draft         *plan.Plan
	Critique      *plan.Critique
	PreviousPlan  *plan.Plan
	HumanFeedback string
}

const planSchema = `{
  "summary": "1-2 sentence description of what will be built",
  "assumptions": ["what must be true for this plan to work"],
  "steps": [
    {"id": "1", "title": "short imperative title", "description": "specific changes, may contain - [ ] subtasks", "files": ["path/to/file.go"]}
  ],
  "risks": ["risk and its mitigation"]
}`

const critiqueSchema = `{
  "verdict": "APPROVE | NEEDS_CHANGES | REJECT",
  "approved": true,
  "issues": [
    {"severity": "critical | major | minor | info", "description": "the problem and a concrete fix", "target_step_ref": "id of the affected step, or empty"}
  ]
}`

const architectSystemPrompt = `You are the Architect agent in a multi-agent planning system. You create comprehensive, actionable implementation plans for software changes.

Analyze the task against the existing codebase: what the change must accomplish, how it fits the current architecture, and which dependencies and integrations it touches.

Be practical and specific. Reference actual files and patterns from the project context. Avoid over-engineering. State assumptions and unknowns explicitly, think about testing from the start, and list risks with mitigations.

A Critic agent will review your plan, so make your reasoning clear.

Respond ONLY with a JSON object of this shape, no additional text:
` + planSchema

const criticSystemPrompt = `You are the Critic agent in a multi-agent planning system. You rigorously challenge implementation plans to find flaws, gaps and risks before any code is written.

Challenge stated and unstated assumptions. Find missing requirements, uncovered edge cases and unhandled errors. Identify security concerns such as authorization gaps, input validation and data exposure. Question whether the architecture is the simplest one that fits existing patterns, and whether the plan is testable.

Be constructively critical. Every issue must be specific and actionable, graded by severity, and tied to a step id when it concerns a single step. Do not raise hypothetical edge cases that will never occur, and do not repeat an issue the plan already addresses.

Set "approved" to true only when no critical or major issues remain.

Respond ONLY with a JSON object of this shape, no additional text:
` + critiqueSchema

const integratorSystemPrompt = `You are the Integrator agent in a multi-agent planning system. You merge the Architect's plan and the Critic's feedback into a final, actionable implementation plan.

Resolve conflicts between the two with a reasoned decision and record trade-offs as risks. Incorporate valid feedback: add missing steps, edge cases, security and error handling. Keep valid parts of the draft unchanged and keep step ids stable where the step survives. Flag unresolved questions as assumptions that need validation.

Respond ONLY with a JSON object of this shape, no additional text:
` + planSchema

func systemPrompt(r Role) string {
	switch r {
	case RoleCritic:
		return criticSystemPrompt
	case RoleIntegrator:
		return integratorSystemPrompt
	}
	return architectSystemPrompt
}

// buildPrompt renders the user message for a role.
func buildPrompt(r Role, in PromptContext) string {
	var b strings.Builder

	if in.RepoContext != "" {
		b.WriteString(in.RepoContext)
		b.WriteString("\n---\n\n")
	}

	fmt.Fprintf(&b, "# Task\n\n%s\n\n", strings.TrimSpace(in.Task))

	if r == RoleArchitect && len(in.History) > 0 {
		b.WriteString("# Previous Planning Rounds\n\n")
		for _, h := range in.History {
			writeHistory(&b, h)
		}
		b.WriteString("---\n\n")
	}

	switch r {
	case RoleArchitect:
		if in.PreviousPlan != nil {
			b.WriteString("# Previous Integrated Plan\n\n")
			writeJSON(&b, in.PreviousPlan)
		}
		if in.HumanFeedback != "" {
			fmt.Fprintf(&b, "# Human Feedback\n\n%s\n\n", in.HumanFeedback)
		}
		if in.PreviousPlan != nil {
			b.WriteString("Revise the previous plan to address the critique history and any human feedback above. Keep what still holds.\n\nProvide your plan now:")
		} else {
			b.WriteString("Based on the project context and task above, create a comprehensive implementation plan. It should be detailed enough that another developer could implement it without asking clarifying questions.\n\nProvide your plan now:")
		}
	case RoleCritic:
		b.WriteString("# Architect's Plan\n\n")
		writeJSON(&b, in.Draft)
		b.WriteString("Review the plan above and provide your critique. Focus on issues that matter for implementation.\n\nProvide your critique now:")
	case RoleIntegrator:
		b.WriteString("# Architect's Plan\n\n")
		writeJSON(&b, in.Draft)
		b.WriteString("# Critic's Feedback\n\n")
		writeJSON(&b, in.Critique)
		b.WriteString("Produce the integrated plan now:")
	}

	return b.String()
}

func writeHistory(b *strings.Builder, h HistoryRound) {
	fmt.Fprintf(b, "## Round %d\n\n", h.Index)
	fmt.Fprintf(b, "Plan summary: %s\n\n", h.Integrated.Summary)
	if len(h.Critique.Issues) > 0 {
		b.WriteString("Critic issues:\n")
		for _, issue := range h.Critique.Issues {
			ref := ""
			if issue.TargetStepRef != "" {
				ref = fmt.Sprintf(" (step %s)", issue.TargetStepRef)
			}
			fmt.Fprintf(b, "- [%s]%s %s\n", issue.Severity, ref, issue.Description)
		}
		b.WriteString("\n")
	}
	if h.HumanFeedback != "" {
		fmt.Fprintf(b, "Human feedback: %s\n\n", h.HumanFeedback)
	}
}

func writeJSON(b *strings.Builder, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(b, "%v\n\n", v)
		return
	}
	b.WriteString("```json\n")
	b.Write(data)
	b.WriteString("\n```\n\n")
}

// reformatPrompt asks the model to repair output that failed to parse.
func reformatPrompt(original string, raw string, parseErr error, r Role) string {
	schema := planSchema
	if r == RoleCritic {
		schema = critiqueSchema
	}
	return fmt.Sprintf("%s\n\n# Reformat Required\n\nYour previous response could not be used: %v\n\nPrevious response:\n%s\n\nRespond again with ONLY a single valid JSON object matching exactly this shape. No markdown, no commentary:\n%s",
		original, parseErr, truncate(raw, 4000), schema)
}

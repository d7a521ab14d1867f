package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/planify/internal/plan"
)

// MergeModel is reported as the model of merge integrator responses.
const MergeModel = "merge"

// MergeIntegrator integrates a critique without calling a model. Issues that
// target an existing step become notes on that step. Other critical and major
// issues become risks; minor and info ones stay only in the critique log.
type MergeIntegrator struct{}

var _ Client = (*MergeIntegrator)(nil)

// NewMergeIntegrator creates the deterministic integrator.
func NewMergeIntegrator() *MergeIntegrator {
	return &MergeIntegrator{}
}

// Role returns RoleIntegrator.
func (m *MergeIntegrator) Role() Role { return RoleIntegrator }

// Invoke merges in.Critique into in.Draft.
func (m *MergeIntegrator) Invoke(ctx context.Context, in PromptContext) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.Draft == nil || in.Critique == nil {
		return nil, errors.New("integrator requires a draft and a critique")
	}

	merged := Merge(*in.Draft, *in.Critique)
	return &Response{
		Plan:     &merged,
		Model:    MergeModel,
		Attempts: 1,
	}, nil
}

// Merge applies critique issues to a copy of draft.
func Merge(draft plan.Plan, c plan.Critique) plan.Plan {
	out := draft.Clone()
	seenRisk := make(map[string]bool, len(out.Risks))
	for _, r := range out.Risks {
		seenRisk[r] = true
	}

	for _, issue := range c.Issues {
		note := fmt.Sprintf("[%s] %s", issue.Severity, issue.Description)
		if issue.TargetStepRef != "" {
			if step, ok := out.Step(issue.TargetStepRef); ok {
				step.Notes = appendUnique(step.Notes, note)
				continue
			}
		}
		if !issue.Severity.Blocking() {
			continue
		}
		if !seenRisk[note] {
			seenRisk[note] = true
			out.Risks = append(out.Risks, note)
		}
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

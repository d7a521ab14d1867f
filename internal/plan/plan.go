package plan

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Step is one ordered unit of work in a Plan.
type Step struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Files       []string `json:"files,omitempty"`

	// Notes carry critic feedback attached by the merge integrator.
	Notes []string `json:"notes,omitempty"`
}

// Plan is a structured implementation proposal.
type Plan struct {
	Summary     string   `json:"summary"`
	Steps       []Step   `json:"steps"`
	Risks       []string `json:"risks,omitempty"`
	Assumptions []string `json:"assumptions,omitempty"`
}

// Validate checks that the plan has a summary and at least one titled step
// with a unique ID.
func (p *Plan) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Summary) == "" {
		errs = append(errs, errors.New("summary is required"))
	}
	if len(p.Steps) == 0 {
		errs = append(errs, errors.New("at least one step is required"))
	}
	seen := make(map[string]bool, len(p.Steps))
	for i, s := range p.Steps {
		if strings.TrimSpace(s.Title) == "" {
			errs = append(errs, fmt.Errorf("step %d: title is required", i+1))
		}
		if s.ID != "" {
			if seen[s.ID] {
				errs = append(errs, fmt.Errorf("step %d: duplicate id %q", i+1, s.ID))
			}
			seen[s.ID] = true
		}
	}
	return errors.Join(errs...)
}

// Normalize assigns sequential IDs to steps that have none.
func (p *Plan) Normalize() {
	for i := range p.Steps {
		if p.Steps[i].ID == "" {
			p.Steps[i].ID = strconv.Itoa(i + 1)
		}
	}
}

// Step returns the step with the given ID.
func (p *Plan) Step(id string) (*Step, bool) {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the plan.
func (p Plan) Clone() Plan {
	return p.Scrub(func(s string) string { return s })
}

// Scrub returns a copy of the plan with fn applied to every string field.
func (p Plan) Scrub(fn func(string) string) Plan {
	out := Plan{
		Summary:     fn(p.Summary),
		Risks:       mapStrings(p.Risks, fn),
		Assumptions: mapStrings(p.Assumptions, fn),
	}
	if p.Steps != nil {
		out.Steps = make([]Step, len(p.Steps))
		for i, s := range p.Steps {
			out.Steps[i] = Step{
				ID:          fn(s.ID),
				Title:       fn(s.Title),
				Description: fn(s.Description),
				Files:       mapStrings(s.Files, fn),
				Notes:       mapStrings(s.Notes, fn),
			}
		}
	}
	return out
}

func mapStrings(in []string, fn func(string) string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = fn(s)
	}
	return out
}

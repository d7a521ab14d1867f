package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/planify/internal/plan"
)

var fenceMarkers = []string{"```json", "```JSON", "```"}

// extractJSON returns the first JSON object in model output. Markdown code
// fences are stripped first; surrounding prose is ignored.
func extractJSON(content string) ([]byte, error) {
	content = strings.TrimSpace(content)
	for _, marker := range fenceMarkers {
		start := strings.Index(content, marker)
		if start < 0 {
			continue
		}
		inner := content[start+len(marker):]
		if end := strings.Index(inner, "```"); end >= 0 {
			inner = inner[:end]
		}
		if strings.Contains(inner, "{") {
			content = strings.TrimSpace(inner)
		}
		break
	}

	idx := strings.IndexByte(content, '{')
	if idx < 0 {
		return nil, errors.New("no JSON object found")
	}

	var raw json.RawMessage
	dec := json.NewDecoder(strings.NewReader(content[idx:]))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return raw, nil
}

// flexString accepts a JSON string or number. Models often emit step ids as 1.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

type wireStep struct {
	ID          flexString `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Files       []string   `json:"files"`
}

type wirePlan struct {
	Summary     string     `json:"summary"`
	Steps       []wireStep `json:"steps"`
	Risks       []string   `json:"risks"`
	Assumptions []string   `json:"assumptions"`
}

type wireIssue struct {
	Severity      string     `json:"severity"`
	Description   string     `json:"description"`
	TargetStepRef flexString `json:"target_step_ref"`
}

type wireCritique struct {
	Issues   []wireIssue `json:"issues"`
	Approved bool        `json:"approved"`
	Verdict  string      `json:"verdict"`
}

// ParsePlan parses and validates a Plan from model output.
func ParsePlan(content string) (*plan.Plan, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}
	var w wirePlan
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	p := &plan.Plan{
		Summary:     strings.TrimSpace(w.Summary),
		Risks:       w.Risks,
		Assumptions: w.Assumptions,
	}
	for _, s := range w.Steps {
		p.Steps = append(p.Steps, plan.Step{
			ID:          strings.TrimSpace(string(s.ID)),
			Title:       strings.TrimSpace(s.Title),
			Description: s.Description,
			Files:       s.Files,
		})
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return p, nil
}

// ParseCritique parses and validates a Critique from model output.
func ParseCritique(content string) (*plan.Critique, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}
	var w wireCritique
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("invalid critique: %w", err)
	}

	c := &plan.Critique{
		Approved: w.Approved,
		Verdict:  strings.TrimSpace(w.Verdict),
		Issues:   make([]plan.Issue, 0, len(w.Issues)),
	}
	for _, i := range w.Issues {
		c.Issues = append(c.Issues, plan.Issue{
			Severity:      plan.Severity(i.Severity),
			Description:   strings.TrimSpace(i.Description),
			TargetStepRef: strings.TrimSpace(string(i.TargetStepRef)),
		})
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid critique: %w", err)
	}
	return c, nil
}

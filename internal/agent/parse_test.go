package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/planify/internal/plan"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`, false},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`, false},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`, false},
		{"prose around", "Sure! Here it is: {\"a\": {\"b\": \"}\"}} Hope it helps.", `{"a": {"b": "}"}}`, false},
		{"fence after prose", "Plan below.\n```json\n{\"a\": 2}\n```\nDone.", `{"a": 2}`, false},
		{"no object", "no json here", "", true},
		{"truncated", `{"a": [1, 2`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestParsePlan(t *testing.T) {
	p, err := ParsePlan(`{
		"summary": " Add caching ",
		"assumptions": ["Redis available"],
		"steps": [
			{"id": 1, "title": "Add client"},
			{"title": "Wire handler", "files": ["api.go"]}
		],
		"risks": ["stale reads"]
	}`)
	require.NoError(t, err)

	assert.Equal(t, "Add caching", p.Summary)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, "1", p.Steps[0].ID)
	assert.Equal(t, "2", p.Steps[1].ID, "missing ids are assigned")
	assert.Equal(t, []string{"api.go"}, p.Steps[1].Files)
	assert.Equal(t, []string{"Redis available"}, p.Assumptions)
}

func TestParsePlan_Invalid(t *testing.T) {
	for name, content := range map[string]string{
		"no steps":       `{"summary": "x", "steps": []}`,
		"no summary":     `{"steps": [{"title": "a"}]}`,
		"untitled step":  `{"summary": "x", "steps": [{"id": "1"}]}`,
		"duplicate ids":  `{"summary": "x", "steps": [{"id": "1", "title": "a"}, {"id": "1", "title": "b"}]}`,
		"bad id type":    `{"summary": "x", "steps": [{"id": true, "title": "a"}]}`,
		"steps not list": `{"summary": "x", "steps": "do it"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePlan(content)
			assert.Error(t, err)
		})
	}
}

func TestParseCritique(t *testing.T) {
	c, err := ParseCritique("```json\n" + `{
		"verdict": "APPROVE",
		"approved": true,
		"issues": [{"severity": " MINOR ", "description": "naming", "target_step_ref": "2"}]
	}` + "\n```")
	require.NoError(t, err)

	assert.True(t, c.Approved)
	assert.Equal(t, "APPROVE", c.Verdict)
	require.Len(t, c.Issues, 1)
	assert.Equal(t, plan.SeverityMinor, c.Issues[0].Severity)
	assert.Equal(t, "2", c.Issues[0].TargetStepRef)
}

func TestParseCritique_NoIssues(t *testing.T) {
	c, err := ParseCritique(`{"approved": true}`)
	require.NoError(t, err)
	assert.Empty(t, c.Issues)
	assert.NotNil(t, c.Issues)
}

func TestParseCritique_UnknownSeverity(t *testing.T) {
	_, err := ParseCritique(`{"issues": [{"severity": "blocker", "description": "x"}]}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown severity")
}

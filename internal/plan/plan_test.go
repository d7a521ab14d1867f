package plan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePlan() Plan {
	return Plan{
		Summary: "Add OAuth login",
		Steps: []Step{
			{ID: "1", Title: "Add provider config", Files: []string{"internal/config/config.go"}},
			{ID: "2", Title: "Implement callback handler", Description: "- [ ] Validate state param\n- [x] Exchange code for token"},
			{ID: "3", Title: "Write tests"},
		},
		Risks:       []string{"Token leakage in logs"},
		Assumptions: []string{"Single provider"},
	}
}

func TestPlan_Validate(t *testing.T) {
	p := samplePlan()
	require.NoError(t, p.Validate())

	tests := []struct {
		name    string
		mutate  func(*Plan)
		wantErr string
	}{
		{"missing summary", func(p *Plan) { p.Summary = "  " }, "summary is required"},
		{"no steps", func(p *Plan) { p.Steps = nil }, "at least one step"},
		{"untitled step", func(p *Plan) { p.Steps[1].Title = "" }, "step 2: title is required"},
		{"duplicate id", func(p *Plan) { p.Steps[2].ID = "1" }, "duplicate id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := samplePlan()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPlan_Normalize(t *testing.T) {
	p := Plan{Summary: "s", Steps: []Step{{Title: "a"}, {ID: "x", Title: "b"}, {Title: "c"}}}
	p.Normalize()
	assert.Equal(t, "1", p.Steps[0].ID)
	assert.Equal(t, "x", p.Steps[1].ID)
	assert.Equal(t, "3", p.Steps[2].ID)

	s, ok := p.Step("x")
	require.True(t, ok)
	assert.Equal(t, "b", s.Title)
	_, ok = p.Step("missing")
	assert.False(t, ok)
}

func TestPlan_Scrub(t *testing.T) {
	p := samplePlan()
	upper := p.Scrub(strings.ToUpper)

	assert.Equal(t, "ADD OAUTH LOGIN", upper.Summary)
	assert.Equal(t, "ADD PROVIDER CONFIG", upper.Steps[0].Title)
	assert.Equal(t, "INTERNAL/CONFIG/CONFIG.GO", upper.Steps[0].Files[0])
	assert.Equal(t, "TOKEN LEAKAGE IN LOGS", upper.Risks[0])
	assert.Equal(t, "SINGLE PROVIDER", upper.Assumptions[0])

	// original untouched
	assert.Equal(t, "Add OAuth login", p.Summary)
	assert.Equal(t, "internal/config/config.go", p.Steps[0].Files[0])
}

func TestPlan_CloneIsDeep(t *testing.T) {
	p := samplePlan()
	c := p.Clone()
	c.Steps[0].Files[0] = "changed"
	c.Risks[0] = "changed"

	assert.Equal(t, "internal/config/config.go", p.Steps[0].Files[0])
	assert.Equal(t, "Token leakage in logs", p.Risks[0])
	assert.Nil(t, Plan{Summary: "s"}.Clone().Steps)
}

func TestExtractTasks(t *testing.T) {
	tasks := ExtractTasks(samplePlan())

	var contents []string
	for _, task := range tasks {
		contents = append(contents, task.Content)
	}
	assert.Equal(t, []string{
		"Add provider config",
		"Implement callback handler",
		"Validate state param",
		"Exchange code for token",
		"Write tests",
	}, contents)
	assert.True(t, tasks[3].Completed)
	assert.Equal(t, "Step 2", tasks[2].Section)
	for i, task := range tasks {
		assert.Equal(t, i, task.Priority)
	}
}

func TestExtractTasks_NumberedAndShort(t *testing.T) {
	p := Plan{Summary: "s", Steps: []Step{{ID: "1", Title: "Do", Description: "1. Create migration\n2) Backfill rows\n3. ok"}}}
	tasks := ExtractTasks(p)

	require.Len(t, tasks, 2)
	assert.Equal(t, "Create migration", tasks[0].Content)
	assert.Equal(t, "Backfill rows", tasks[1].Content)
}

func TestTasksMarkdown(t *testing.T) {
	assert.Equal(t, "No tasks extracted.\n", TasksMarkdown(nil))

	md := TasksMarkdown(ExtractTasks(samplePlan()))
	assert.True(t, strings.HasPrefix(md, "# Task List\n"))
	assert.Contains(t, md, "## Implementation Steps\n\n- [ ] Add provider config\n")
	assert.Contains(t, md, "## Step 2\n\n- [ ] Validate state param\n- [x] Exchange code for token\n")
}

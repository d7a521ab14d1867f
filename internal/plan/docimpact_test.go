package plan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRoutes() []DocRoute {
	return []DocRoute{
		{Area: "Auth flow", DocPath: "docs/auth.md", Keywords: []string{"oauth", "login", "token", "callback", "provider", "session"}},
		{Area: "Configuration", DocPath: "docs/config.md", Keywords: []string{"config", "settings"}},
		{Area: "Auth again", DocPath: "docs/auth.md", Keywords: []string{"oauth"}},
		{Area: "Frontend", DocPath: "docs/ui.md", Keywords: []string{"component", "react"}},
	}
}

func TestAnalyzeDocImpact(t *testing.T) {
	a := AnalyzeDocImpact(samplePlan(), "Add OAuth login", sampleRoutes())

	require.Len(t, a.Impacts, 2, "unmatched routes are dropped and docs deduplicated")

	auth := a.Impacts[0]
	assert.Equal(t, "docs/auth.md", auth.DocPath)
	assert.Equal(t, "Auth flow", auth.Area, "best-scoring route wins")
	assert.Equal(t, DocRequired, auth.Priority)
	assert.Equal(t, 5, auth.Score)
	assert.Equal(t, []string{"oauth", "login", "token", "callback", "provider"}, auth.Keywords)
	assert.Equal(t, "Plan modifies Auth flow", auth.Reason)

	cfg := a.Impacts[1]
	assert.Equal(t, "docs/config.md", cfg.DocPath)
	assert.Equal(t, DocOptional, cfg.Priority)
	assert.Equal(t, 1, cfg.Score)

	assert.Len(t, a.ByPriority(DocRequired), 1)
	assert.Empty(t, a.ByPriority(DocRecommended))
}

func TestAnalyzeDocImpact_Priorities(t *testing.T) {
	routes := []DocRoute{
		{Area: "a", DocPath: "a.md", Keywords: []string{"alpha"}},
		{Area: "b", DocPath: "b.md", Keywords: []string{"alpha", "beta"}},
		{Area: "c", DocPath: "c.md", Keywords: []string{"alpha", "beta", "gamma"}},
	}
	p := Plan{Summary: "alpha beta gamma", Steps: []Step{{ID: "1", Title: "x"}}}

	a := AnalyzeDocImpact(p, "", routes)

	require.Len(t, a.Impacts, 3)
	assert.Equal(t, "c.md", a.Impacts[0].DocPath, "higher score first within a priority")
	assert.Equal(t, DocRecommended, a.Impacts[0].Priority)
	assert.Equal(t, "b.md", a.Impacts[1].DocPath)
	assert.Equal(t, DocOptional, a.Impacts[2].Priority)
}

func TestAnalyzeDocImpact_Warnings(t *testing.T) {
	tests := []struct {
		name  string
		plan  Plan
		want  string
		quiet bool
	}{
		{
			name: "undocumented endpoint",
			plan: Plan{Summary: "Add API route for users", Steps: []Step{{ID: "1", Title: "handler"}}},
			want: "New API endpoint",
		},
		{
			name:  "documented endpoint",
			plan:  Plan{Summary: "Add API route for users", Steps: []Step{{ID: "1", Title: "Update docs"}}},
			want:  "New API endpoint",
			quiet: true,
		},
		{
			name: "schema without migration",
			plan: Plan{Summary: "Extend the user schema", Steps: []Step{{ID: "1", Title: "add column"}}},
			want: "Data model changes",
		},
		{
			name: "env variable",
			plan: Plan{Summary: "Read the env variable PORT", Steps: []Step{{ID: "1", Title: "wire it"}}},
			want: ".env.example",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := AnalyzeDocImpact(tt.plan, "", nil)
			found := false
			for _, w := range a.Warnings {
				if strings.Contains(w, tt.want) {
					found = true
				}
			}
			assert.Equal(t, !tt.quiet, found, "warnings: %v", a.Warnings)
		})
	}
}

func TestMarkdown_DocImpact(t *testing.T) {
	a := AnalyzeDocImpact(samplePlan(), "Add OAuth login", sampleRoutes())
	doc := Document{Task: "Add OAuth login", Status: "COMPLETED", Plan: samplePlan(), DocImpact: &a}

	md := Markdown(doc)

	assert.Contains(t, md, "## Documentation Impact\n\n### Required\n\n- [ ] `docs/auth.md`: Plan modifies Auth flow\n")
	assert.Contains(t, md, "  _Keywords: oauth, login, token_\n")
	assert.NotContains(t, md, "### Consider", "optional docs are hidden when stronger matches exist")
	assert.NotContains(t, md, "docs/config.md")

	t.Run("only optional", func(t *testing.T) {
		weak := DocImpactAnalysis{Impacts: []DocImpact{{DocPath: "docs/config.md", Reason: "Plan modifies Configuration", Priority: DocOptional, Score: 1}}}
		md := Markdown(Document{Plan: samplePlan(), DocImpact: &weak})
		assert.Contains(t, md, "### Consider\n\n- [ ] `docs/config.md`: Plan modifies Configuration\n")
	})

	t.Run("nothing matched", func(t *testing.T) {
		md := Markdown(Document{Plan: samplePlan(), DocImpact: &DocImpactAnalysis{}})
		assert.Contains(t, md, "## Documentation Impact\n\n_No documentation updates detected._\n")
	})

	t.Run("no routing table", func(t *testing.T) {
		md := Markdown(Document{Plan: samplePlan()})
		assert.NotContains(t, md, "Documentation Impact")
	})
}

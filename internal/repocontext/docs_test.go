package repocontext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/planify/internal/plan"
)

const routingDoc = "# Project\n\n" +
	"## Documentation routing\n\n" +
	"| If you're changing... | Update... |\n" +
	"|---|:---:|\n" +
	"| API endpoints | `docs/api.md` |\n" +
	"| Config loading | docs/config.md |\n" +
	"| Orphan | |\n" +
	"Trailing prose.\n" +
	"| After the table | after.md |\n"

func TestParseRoutingTable(t *testing.T) {
	routes := ParseRoutingTable(routingDoc)

	want := []plan.DocRoute{
		{
			Area:     "API endpoints",
			DocPath:  "docs/api.md",
			Keywords: []string{"endpoint", "route", "request", "response", "http", "rest", "json", "api", "endpoints"},
		},
		{
			Area:     "Config loading",
			DocPath:  "docs/config.md",
			Keywords: []string{"config", "environment", "env", "setting", "option", "loading"},
		},
	}
	assert.Equal(t, want, routes)
}

func TestParseRoutingTable_NoTable(t *testing.T) {
	assert.Empty(t, ParseRoutingTable("# Notes\n\n| a | b |\n|---|---|\n| x | y |\n"))
	assert.Empty(t, ParseRoutingTable(""))
}

func TestSnapshot_DocRoutes(t *testing.T) {
	snap := &Snapshot{Files: []File{
		{Path: "README.md", Content: routingDoc},
		{Path: "web/CLAUDE.md", Content: "| changing | update |\n|---|---|\n| Frontend | web/docs/ui.md |\n"},
		{Path: "claude.md", Content: routingDoc},
	}}

	routes := snap.DocRoutes()
	require.Len(t, routes, 2, "the root file wins over nested ones")
	assert.Equal(t, "docs/api.md", routes[0].DocPath)

	nestedOnly := &Snapshot{Files: snap.Files[:2]}
	routes = nestedOnly.DocRoutes()
	require.Len(t, routes, 1)
	assert.Equal(t, "web/docs/ui.md", routes[0].DocPath)

	var nilSnap *Snapshot
	assert.Nil(t, nilSnap.DocRoutes())
	assert.Nil(t, (&Snapshot{Files: snap.Files[:1]}).DocRoutes(), "only CLAUDE.md carries routes")
}

package repocontext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot_Prompt(t *testing.T) {
	snap := &Snapshot{
		Branch: "main",
		Head:   "0123456789abcdef0123456789abcdef01234567",
		Tree:   []string{"README.md", "main.go"},
		Files: []File{
			{Path: "README.md", Content: "# App", Tokens: 1},
			{Path: "main.go", Content: "package main", Tokens: 3, Truncated: true},
		},
	}

	got := snap.Prompt()
	want := "# Project Context\n\n" +
		"Branch: main (0123456)\n\n" +
		"## Repository Layout\n\n```\nREADME.md\nmain.go\n```\n\n" +
		"## README.md\n```\n# App\n```\n\n" +
		"## main.go\n(truncated)\n```\npackage main\n```\n\n"
	assert.Equal(t, want, got)
	assert.Equal(t, []string{"README.md", "main.go"}, snap.Paths())
}

func TestSnapshot_PromptHeadVariants(t *testing.T) {
	assert.Contains(t, (&Snapshot{Branch: "main"}).Prompt(), "Branch: main (no commits)")
	assert.Contains(t, (&Snapshot{Head: "abcdef0123"}).Prompt(), "Detached HEAD at abcdef0")
	assert.Equal(t, "# Project Context\n\n", (&Snapshot{}).Prompt())

	var nilSnap *Snapshot
	assert.Empty(t, nilSnap.Prompt())
	assert.Nil(t, nilSnap.Paths())
}

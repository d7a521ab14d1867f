package repocontext

import (
	"fmt"
	"strings"
)

// File is one loaded repository file.
type File struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Tokens    int    `json:"tokens"`
	Truncated bool   `json:"truncated"`
}

// Snapshot is the repository view handed to agents.
type Snapshot struct {
	Root   string `json:"root"`
	Branch string `json:"branch,omitempty"`
	Head   string `json:"head,omitempty"`

	// Tree lists the visible files, capped at Options.MaxTreeEntries.
	Tree        []string `json:"tree"`
	TreeOmitted int      `json:"tree_omitted,omitempty"`

	Files       []File `json:"files"`
	TotalTokens int    `json:"total_tokens"`

	// Skipped names files that matched but were not loaded, with a reason.
	Skipped []string `json:"skipped,omitempty"`
}

// Paths returns the relative paths of the loaded files in load order.
func (s *Snapshot) Paths() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.Files))
	for i, f := range s.Files {
		out[i] = f.Path
	}
	return out
}

// Prompt renders the snapshot as the repository section of an agent prompt.
func (s *Snapshot) Prompt() string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("# Project Context\n\n")

	switch {
	case s.Branch != "" && s.Head != "":
		fmt.Fprintf(&b, "Branch: %s (%s)\n\n", s.Branch, shortHash(s.Head))
	case s.Branch != "":
		fmt.Fprintf(&b, "Branch: %s (no commits)\n\n", s.Branch)
	case s.Head != "":
		fmt.Fprintf(&b, "Detached HEAD at %s\n\n", shortHash(s.Head))
	}

	if len(s.Tree) > 0 {
		b.WriteString("## Repository Layout\n\n```\n")
		for _, p := range s.Tree {
			b.WriteString(p)
			b.WriteByte('\n')
		}
		if s.TreeOmitted > 0 {
			fmt.Fprintf(&b, "... (%d more)\n", s.TreeOmitted)
		}
		b.WriteString("```\n\n")
	}

	for _, f := range s.Files {
		fmt.Fprintf(&b, "## %s\n", f.Path)
		if f.Truncated {
			b.WriteString("(truncated)\n")
		}
		b.WriteString("```\n")
		b.WriteString(f.Content)
		b.WriteString("\n```\n\n")
	}
	return b.String()
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}

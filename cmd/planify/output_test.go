package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/planify/internal/plan"
	"github.com/fyrsmithlabs/planify/internal/session"
)

func TestPlanPath(t *testing.T) {
	repo := filepath.Join(string(filepath.Separator), "work", "repo")
	tests := []struct {
		name string
		tmpl string
		task string
		want string
	}{
		{
			name: "default template",
			tmpl: ".agents/planner/plans/{slug}.md",
			task: "Add Rate Limiting!",
			want: filepath.Join(repo, ".agents", "planner", "plans", "add-rate-limiting.md"),
		},
		{
			name: "absolute template",
			tmpl: filepath.Join(string(filepath.Separator), "tmp", "{slug}.md"),
			task: "fix login",
			want: filepath.Join(string(filepath.Separator), "tmp", "fix-login.md"),
		},
		{
			name: "no placeholder",
			tmpl: "PLAN.md",
			task: "anything",
			want: filepath.Join(repo, "PLAN.md"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, planPath(tt.tmpl, repo, tt.task))
		})
	}
}

func TestTasksPath(t *testing.T) {
	assert.Equal(t, filepath.Join("plans", "x.tasks.md"), tasksPath(filepath.Join("plans", "x.md")))
	assert.Equal(t, "PLAN.tasks.md", tasksPath("PLAN"))
}

func TestResolveOutput(t *testing.T) {
	got, err := resolveOutput("out.md", "ignored/{slug}.md", "/repo", "task")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, "out.md", filepath.Base(got))

	got, err = resolveOutput("", "plans/{slug}.md", "/repo", "my task")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/repo", "plans", "my-task.md"), got)
}

func TestWritePlan(t *testing.T) {
	final := plan.Plan{
		Summary: "Add retries to the payment client",
		Steps: []plan.Step{
			{ID: "1", Title: "Wrap client calls in a retry loop", Description: "- [ ] add jittered backoff"},
			{ID: "2", Title: "Cover retries with unit tests"},
		},
	}
	sess := &session.Session{
		ID:        "2025-03-14-150926-add-retries-1a2b3c4d",
		Request:   session.Request{Task: "add retries"},
		Status:    session.StatusCompleted,
		FinalPlan: &final,
		Rounds:    []session.Round{{Index: 1, Integrated: final}},
		CreatedAt: time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC),
	}

	path := filepath.Join(t.TempDir(), "nested", "plans", "add-retries.md")
	require.NoError(t, writePlan(path, sess))

	doc, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "# Plan: add retries")
	assert.Contains(t, string(doc), "Wrap client calls in a retry loop")

	tasks, err := os.ReadFile(tasksPath(path))
	require.NoError(t, err)
	assert.Contains(t, string(tasks), "# Task List")
	assert.Contains(t, string(tasks), "- [ ] Cover retries with unit tests")
	assert.Contains(t, string(tasks), "add jittered backoff")
}

func TestWritePlan_RequiresFinalPlan(t *testing.T) {
	sess := &session.Session{ID: "2025-03-14-150926-add-retries-1a2b3c4d", Status: session.StatusFailed}
	path := filepath.Join(t.TempDir(), "plan.md")

	err := writePlan(path, sess)
	assert.ErrorContains(t, err, "no final plan")
	assert.NoFileExists(t, path)
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/planify/internal/plan"
	"github.com/fyrsmithlabs/planify/internal/session"
)

// planPath expands the {slug} placeholder of tmpl for task. Relative paths
// resolve against repo.
func planPath(tmpl, repo, task string) string {
	p := strings.ReplaceAll(tmpl, "{slug}", session.Slug(task))
	if !filepath.IsAbs(p) {
		p = filepath.Join(repo, p)
	}
	return filepath.Clean(p)
}

// tasksPath returns the checklist path written next to a plan document.
func tasksPath(planFile string) string {
	return strings.TrimSuffix(planFile, filepath.Ext(planFile)) + ".tasks.md"
}

// writePlan renders a completed session to path and its task checklist next
// to it.
func writePlan(path string, sess *session.Session) error {
	if sess.FinalPlan == nil {
		return fmt.Errorf("session %s has no final plan", sess.ID)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating plan directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(plan.Markdown(sess.Document())), 0644); err != nil {
		return fmt.Errorf("writing plan: %w", err)
	}
	tasks := plan.TasksMarkdown(plan.ExtractTasks(*sess.FinalPlan))
	if err := os.WriteFile(tasksPath(path), []byte(tasks), 0644); err != nil {
		return fmt.Errorf("writing task list: %w", err)
	}
	return nil
}

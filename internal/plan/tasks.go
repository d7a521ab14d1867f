package plan

import (
	"regexp"
	"strings"
)

// Task is an actionable item extracted from a plan.
type Task struct {
	Content   string `json:"content"`
	Section   string `json:"section"`
	Completed bool   `json:"completed"`
	Priority  int    `json:"priority"` // lower runs first
}

const minTaskLen = 5

var (
	checkboxItem = regexp.MustCompile(`^[-*]\s*\[([ xX])\]\s*(.+)$`)
	numberedItem = regexp.MustCompile(`^(\d+)[.)]\s*(.+)$`)
)

// ExtractTasks returns the ordered task list for p: each step title, followed
// by the checkbox and numbered items found in that step's description.
func ExtractTasks(p Plan) []Task {
	var tasks []Task
	add := func(content, section string, completed bool) {
		content = strings.TrimSpace(content)
		if len(content) < minTaskLen {
			return
		}
		tasks = append(tasks, Task{
			Content:   content,
			Section:   section,
			Completed: completed,
			Priority:  len(tasks),
		})
	}

	for _, step := range p.Steps {
		section := "Step " + step.ID
		add(step.Title, "Implementation Steps", false)
		for _, line := range strings.Split(step.Description, "\n") {
			line = strings.TrimSpace(line)
			if m := checkboxItem.FindStringSubmatch(line); m != nil {
				add(m[2], section, strings.EqualFold(m[1], "x"))
				continue
			}
			if m := numberedItem.FindStringSubmatch(line); m != nil {
				add(m[2], section, false)
			}
		}
	}
	return tasks
}

// TasksMarkdown renders tasks as a checklist grouped by section in first-seen
// order.
func TasksMarkdown(tasks []Task) string {
	if len(tasks) == 0 {
		return "No tasks extracted.\n"
	}

	var order []string
	bySection := make(map[string][]Task)
	for _, t := range tasks {
		if _, ok := bySection[t.Section]; !ok {
			order = append(order, t.Section)
		}
		bySection[t.Section] = append(bySection[t.Section], t)
	}

	var b strings.Builder
	b.WriteString("# Task List\n")
	for _, section := range order {
		b.WriteString("\n## " + section + "\n\n")
		for _, t := range bySection[section] {
			b.WriteString(checkbox(t.Completed) + " " + t.Content + "\n")
		}
	}
	return b.String()
}

func checkbox(done bool) string {
	if done {
		return "- [x]"
	}
	return "- [ ]"
}

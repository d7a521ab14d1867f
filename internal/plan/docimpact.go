package plan

import (
	"sort"
	"strings"
)

// DocRoute maps an area of change to the document that owns it, as listed in
// a project's routing table ("If you're changing... | Update...").
type DocRoute struct {
	Area     string   `json:"area"`
	DocPath  string   `json:"doc_path"`
	Keywords []string `json:"keywords,omitempty"`
}

// DocPriority ranks how strongly a plan touches a routed document.
type DocPriority string

const (
	DocRequired    DocPriority = "required"
	DocRecommended DocPriority = "recommended"
	DocOptional    DocPriority = "optional"
)

var docPriorityRank = map[DocPriority]int{DocRequired: 0, DocRecommended: 1, DocOptional: 2}

const (
	requiredScore    = 4
	recommendedScore = 2

	maxMatchedKeywords = 5
)

func priorityFor(score int) DocPriority {
	switch {
	case score >= requiredScore:
		return DocRequired
	case score >= recommendedScore:
		return DocRecommended
	default:
		return DocOptional
	}
}

// DocImpact is one document the final plan probably requires updating.
type DocImpact struct {
	DocPath  string      `json:"doc_path"`
	Area     string      `json:"area"`
	Reason   string      `json:"reason"`
	Priority DocPriority `json:"priority"`
	Score    int         `json:"match_score"`
	Keywords []string    `json:"matched_keywords,omitempty"`
}

// DocImpactAnalysis lists routed documents touched by a plan, required first.
type DocImpactAnalysis struct {
	Impacts  []DocImpact `json:"impacts"`
	Warnings []string    `json:"warnings,omitempty"`
}

// ByPriority returns the impacts with priority p in ranked order.
func (a *DocImpactAnalysis) ByPriority(p DocPriority) []DocImpact {
	var out []DocImpact
	for _, i := range a.Impacts {
		if i.Priority == p {
			out = append(out, i)
		}
	}
	return out
}

// AnalyzeDocImpact scores each route by how many of its keywords appear in
// the task or the plan. A document routed more than once keeps its best
// score.
func AnalyzeDocImpact(p Plan, task string, routes []DocRoute) DocImpactAnalysis {
	body := strings.ToLower(p.text())
	combined := strings.ToLower(task) + "\n\n" + body

	byDoc := make(map[string]int)
	var impacts []DocImpact
	for _, r := range routes {
		var matched []string
		for _, kw := range r.Keywords {
			if kw != "" && strings.Contains(combined, strings.ToLower(kw)) {
				matched = append(matched, kw)
			}
		}
		score := len(matched)
		if score == 0 {
			continue
		}
		if len(matched) > maxMatchedKeywords {
			matched = matched[:maxMatchedKeywords]
		}
		impact := DocImpact{
			DocPath:  r.DocPath,
			Area:     r.Area,
			Reason:   "Plan modifies " + r.Area,
			Priority: priorityFor(score),
			Score:    score,
			Keywords: matched,
		}
		if i, ok := byDoc[r.DocPath]; ok {
			if impacts[i].Score < score {
				impacts[i] = impact
			}
			continue
		}
		byDoc[r.DocPath] = len(impacts)
		impacts = append(impacts, impact)
	}

	sort.SliceStable(impacts, func(i, j int) bool {
		ri, rj := docPriorityRank[impacts[i].Priority], docPriorityRank[impacts[j].Priority]
		if ri != rj {
			return ri < rj
		}
		return impacts[i].Score > impacts[j].Score
	})
	return DocImpactAnalysis{Impacts: impacts, Warnings: docWarnings(body)}
}

// docWarnings flags changes that usually need a companion update the plan
// does not mention.
func docWarnings(body string) []string {
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(body, w) {
				return true
			}
		}
		return false
	}

	var out []string
	if has("endpoint", "api") && has("route") && !has("document", "docs") {
		out = append(out, "New API endpoint: make sure it is documented in the OpenAPI/Swagger spec")
	}
	if has("component") && has("tsx") && !has("test") {
		out = append(out, "New component: consider adding unit tests")
	}
	if has("env") && has("variable", "config") && !has(".env.example") {
		out = append(out, "Environment variable changes: update .env.example")
	}
	if has("model", "schema", "database") && !has("migration") {
		out = append(out, "Data model changes: check whether a migration is needed")
	}
	return out
}

// text flattens the plan for keyword matching.
func (p Plan) text() string {
	parts := []string{p.Summary}
	parts = append(parts, p.Assumptions...)
	for _, s := range p.Steps {
		parts = append(parts, s.Title, s.Description)
		parts = append(parts, s.Files...)
		parts = append(parts, s.Notes...)
	}
	parts = append(parts, p.Risks...)
	return strings.Join(parts, "\n")
}

// docImpactMarkdown renders the body of the Documentation Impact section.
// Optional updates are listed only when nothing stronger matched.
func docImpactMarkdown(a *DocImpactAnalysis) string {
	if len(a.Impacts) == 0 && len(a.Warnings) == 0 {
		return "_No documentation updates detected._\n"
	}

	var b strings.Builder
	section := func(title string) {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("### " + title + "\n\n")
	}
	item := func(i DocImpact) {
		b.WriteString("- [ ] `" + i.DocPath + "`: " + i.Reason + "\n")
	}

	required := a.ByPriority(DocRequired)
	if len(required) > 0 {
		section("Required")
		for _, i := range required {
			item(i)
			if len(i.Keywords) > 0 {
				kws := i.Keywords
				if len(kws) > 3 {
					kws = kws[:3]
				}
				b.WriteString("  _Keywords: " + strings.Join(kws, ", ") + "_\n")
			}
		}
	}
	recommended := a.ByPriority(DocRecommended)
	if len(recommended) > 0 {
		section("Recommended")
		for _, i := range recommended {
			item(i)
		}
	}
	if optional := a.ByPriority(DocOptional); len(optional) > 0 && len(required) == 0 && len(recommended) == 0 {
		section("Consider")
		if len(optional) > 3 {
			optional = optional[:3]
		}
		for _, i := range optional {
			item(i)
		}
	}
	if len(a.Warnings) > 0 {
		section("Warnings")
		for _, w := range a.Warnings {
			b.WriteString("- " + w + "\n")
		}
	}
	return b.String()
}

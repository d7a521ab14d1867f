package repocontext

import (
	"path"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/planify/internal/plan"
)

const routingFile = "CLAUDE.md"

var (
	separatorRow = regexp.MustCompile(`^\s*\|[\s\-:]+\|`)
	routingRow   = regexp.MustCompile(`^\s*\|([^|]+)\|([^|]+)`)
	areaWord     = regexp.MustCompile(`\b[a-z]{3,}\b`)
)

// areaKeywords expands common area names into the words a plan touching
// that area tends to use. Order is significant: it decides which keywords
// are reported first.
var areaKeywords = []struct {
	area     string
	keywords []string
}{
	{"frontend", []string{"component", "react", "tsx", "jsx", "css", "style", "ui", "page", "route", "hook"}},
	{"component", []string{"component", "react", "tsx", "jsx", "props", "state", "hook", "render"}},
	{"e2e", []string{"test", "playwright", "e2e", "end-to-end", "spec", "fixture"}},
	{"a11y", []string{"accessibility", "a11y", "aria", "screen reader", "wcag", "contrast"}},
	{"backend", []string{"api", "endpoint", "route", "fastapi", "python", "server", "handler"}},
	{"api", []string{"endpoint", "route", "request", "response", "http", "rest", "json"}},
	{"caching", []string{"cache", "ttl", "redis", "memcache", "expir"}},
	{"provider", []string{"provider", "service", "integration", "external", "client"}},
	{"design", []string{"color", "theme", "style", "token", "typography", "spacing", "ui"}},
	{"token", []string{"color", "font", "spacing", "size", "variable", "css"}},
	{"contrast", []string{"contrast", "wcag", "accessibility", "readable"}},
	{"safety", []string{"guardrail", "block", "filter", "policy", "security", "sanitize"}},
	{"security", []string{"auth", "permission", "token", "secret", "encrypt", "sanitize"}},
	{"config", []string{"config", "environment", "env", "setting", "option"}},
	{"infra", []string{"docker", "deploy", "ci", "cd", "pipeline", "kubernetes"}},
}

// ParseRoutingTable reads the documentation routing table from a CLAUDE.md
// style file: a markdown table whose header names what is being changed and
// which document to update. Rows without a document are skipped.
func ParseRoutingTable(content string) []plan.DocRoute {
	var routes []plan.DocRoute
	inTable := false
	for _, line := range strings.Split(content, "\n") {
		lower := strings.ToLower(line)
		if !inTable {
			if strings.Contains(lower, "changing") && strings.Contains(lower, "update") {
				inTable = true
			}
			continue
		}
		if separatorRow.MatchString(line) {
			continue
		}
		if !strings.HasPrefix(strings.TrimSpace(line), "|") {
			break
		}
		m := routingRow.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		area := strings.TrimSpace(m[1])
		doc := strings.TrimSpace(strings.ReplaceAll(m[2], "`", ""))
		if area == "" || doc == "" || strings.Contains(area, "---") {
			continue
		}
		routes = append(routes, plan.DocRoute{Area: area, DocPath: doc, Keywords: routeKeywords(area)})
	}
	return routes
}

// routeKeywords combines the expansions of every known area named in area
// with the area's own words.
func routeKeywords(area string) []string {
	lower := strings.ToLower(area)
	seen := make(map[string]bool)
	var out []string
	add := func(kw string) {
		if !seen[kw] {
			seen[kw] = true
			out = append(out, kw)
		}
	}
	for _, ak := range areaKeywords {
		if strings.Contains(lower, ak.area) {
			for _, kw := range ak.keywords {
				add(kw)
			}
		}
	}
	for _, w := range areaWord.FindAllString(lower, -1) {
		add(w)
	}
	return out
}

// DocRoutes returns the routing table of the first loaded CLAUDE.md that
// has one, preferring the repository root.
func (s *Snapshot) DocRoutes() []plan.DocRoute {
	if s == nil {
		return nil
	}
	var nested []File
	for _, f := range s.Files {
		if !strings.EqualFold(path.Base(f.Path), routingFile) {
			continue
		}
		if path.Dir(f.Path) != "." {
			nested = append(nested, f)
			continue
		}
		if routes := ParseRoutingTable(f.Content); len(routes) > 0 {
			return routes
		}
	}
	for _, f := range nested {
		if routes := ParseRoutingTable(f.Content); len(routes) > 0 {
			return routes
		}
	}
	return nil
}

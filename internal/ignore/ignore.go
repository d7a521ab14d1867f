// Package ignore matches repository paths against gitignore-style patterns.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// DefaultIgnoreFiles are read from every directory during a walk.
var DefaultIgnoreFiles = []string{".gitignore", ".planifyignore"}

// Parser reads gitignore-style files.
type Parser struct {
	// IgnoreFiles is the list of ignore file names to look for.
	IgnoreFiles []string

	// FallbackPatterns apply at the root when no ignore file exists there.
	FallbackPatterns []string
}

// NewParser creates a new ignore file parser with the given configuration.
func NewParser(ignoreFiles, fallbackPatterns []string) *Parser {
	return &Parser{
		IgnoreFiles:      ignoreFiles,
		FallbackPatterns: fallbackPatterns,
	}
}

// ParseDir reads the ignore files in root/rel and returns their patterns
// scoped to rel. rel is slash separated and empty for the root.
func (p *Parser) ParseDir(root, rel string) ([]gitignore.Pattern, error) {
	domain := Split(rel)
	var patterns []gitignore.Pattern
	foundAny := false

	for _, name := range p.IgnoreFiles {
		lines, err := parseFile(filepath.Join(root, filepath.FromSlash(rel), name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		patterns = append(patterns, Compile(lines, domain)...)
		foundAny = true
	}

	if !foundAny && rel == "" {
		return Compile(p.FallbackPatterns, nil), nil
	}
	return patterns, nil
}

// parseFile reads a single gitignore-style file and returns its pattern lines.
func parseFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := parseLine(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// parseLine returns the pattern on a line, or "" for blanks and comments.
// Trailing unescaped spaces are not significant.
func parseLine(line string) string {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	if !strings.HasSuffix(line, `\ `) {
		line = strings.TrimRight(line, " \t")
	}
	return line
}

// Compile turns pattern lines into gitignore patterns scoped to domain.
func Compile(lines []string, domain []string) []gitignore.Pattern {
	out := make([]gitignore.Pattern, 0, len(lines))
	for _, l := range lines {
		if l = parseLine(l); l == "" {
			continue
		}
		out = append(out, gitignore.ParsePattern(l, domain))
	}
	return out
}

// Split turns a slash separated relative path into components.
func Split(rel string) []string {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return nil
	}
	return strings.Split(rel, "/")
}

// Matcher reports whether a path is matched by a growing set of patterns.
// Later patterns take precedence, so parents must be added before children.
type Matcher struct {
	patterns []gitignore.Pattern
}

// NewMatcher returns a matcher over patterns.
func NewMatcher(patterns ...gitignore.Pattern) *Matcher {
	return &Matcher{patterns: patterns}
}

// Add appends patterns.
func (m *Matcher) Add(patterns ...gitignore.Pattern) {
	m.patterns = append(m.patterns, patterns...)
}

// Len returns the number of patterns.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.patterns)
}

// Match reports whether rel is matched. A negated pattern that matches last
// un-matches the path.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m.Len() == 0 {
		return false
	}
	return gitignore.NewMatcher(m.patterns).Match(Split(rel), isDir)
}

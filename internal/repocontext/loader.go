package repocontext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/planify/internal/config"
	"github.com/fyrsmithlabs/planify/internal/ignore"
	"github.com/fyrsmithlabs/planify/internal/logging"
	"github.com/fyrsmithlabs/planify/internal/secrets"
)

const (
	instrumentationName = "github.com/fyrsmithlabs/planify/internal/repocontext"

	// maxReadBytes caps a single file read. Anything past it would be
	// truncated by the token budget anyway.
	maxReadBytes = 4 << 20

	defaultConcurrency    = 8
	defaultMaxTreeEntries = 300
)

// skipDirs are never walked or watched.
var skipDirs = map[string]bool{
	".git":             true,
	"node_modules":     true,
	"vendor":           true,
	"__pycache__":      true,
	".venv":            true,
	"venv":             true,
	"dist":             true,
	"build":            true,
	".next":            true,
	".nuxt":            true,
	"coverage":         true,
	".pytest_cache":    true,
	".mypy_cache":      true,
	".idea":            true,
	".planify-session": true,
}

// binaryExtensions are skipped without reading.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".ico": true, ".webp": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
	".zip": true, ".tar": true, ".gz": true, ".rar": true, ".7z": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true, ".o": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".mp3": true, ".mp4": true, ".wav": true, ".avi": true, ".mov": true,
	".sqlite": true, ".db": true, ".sqlite3": true,
	".pyc": true, ".pyo": true, ".class": true, ".jar": true,
	".lock": true,
}

// Options bounds what a Loader reads.
type Options struct {
	// AutoDetect names root-level docs loaded before anything else.
	AutoDetect []string

	// Include and Exclude are gitignore-style patterns relative to the root.
	// Only AutoDetect files are loaded when Include is empty.
	Include []string
	Exclude []string

	MaxTokens      int
	MaxFileTokens  int
	MaxTreeEntries int
	Concurrency    int
}

// OptionsFrom maps the context section of the configuration.
func OptionsFrom(cfg config.ContextConfig) Options {
	return Options{
		AutoDetect:     cfg.AutoDetect,
		Include:        cfg.Include,
		Exclude:        cfg.Exclude,
		MaxTokens:      cfg.MaxTokens,
		MaxFileTokens:  cfg.MaxFileTokens,
		MaxTreeEntries: defaultMaxTreeEntries,
		Concurrency:    defaultConcurrency,
	}
}

// Loader builds Snapshots. It is safe for concurrent use.
type Loader struct {
	opts     Options
	scrubber secrets.Scrubber
	logger   *logging.Logger
	tracer   trace.Tracer
	parser   *ignore.Parser
	include  *ignore.Matcher
	exclude  *ignore.Matcher
}

// NewLoader creates a Loader. A nil scrubber disables scrubbing and a nil
// logger discards output.
func NewLoader(opts Options, scrubber secrets.Scrubber, logger *logging.Logger) *Loader {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 50000
	}
	if opts.MaxFileTokens <= 0 {
		opts.MaxFileTokens = 5000
	}
	if opts.MaxTreeEntries <= 0 {
		opts.MaxTreeEntries = defaultMaxTreeEntries
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if scrubber == nil {
		scrubber = &secrets.NoopScrubber{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Loader{
		opts:     opts,
		scrubber: scrubber,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		parser:   ignore.NewParser(ignore.DefaultIgnoreFiles, nil),
		include:  ignore.NewMatcher(ignore.Compile(opts.Include, nil)...),
		exclude:  ignore.NewMatcher(ignore.Compile(opts.Exclude, nil)...),
	}
}

// walkResult is what the tree walk found.
type walkResult struct {
	tree       []string
	candidates []string
	skipped    []string
}

// readResult is one file read by a worker.
type readResult struct {
	path    string
	content string
	skip    string
}

// Load walks repoPath and returns a budgeted snapshot. Only cancellation
// and an unreadable root are errors; unreadable files are skipped.
func (l *Loader) Load(ctx context.Context, repoPath string) (snap *Snapshot, err error) {
	ctx, span := l.tracer.Start(ctx, "repocontext.load")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.Int("repocontext.files", len(snap.Files)),
				attribute.Int("repocontext.tokens", snap.TotalTokens),
			)
		}
		span.End()
	}()

	root, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRepoUnreadable, repoPath, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRepoUnreadable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRepoUnreadable, root)
	}

	walked, err := l.walk(ctx, root)
	if err != nil {
		return nil, err
	}

	order := l.loadOrder(root, walked.candidates)
	read, err := l.readAll(ctx, root, order)
	if err != nil {
		return nil, err
	}

	snap = &Snapshot{
		Root:    root,
		Files:   []File{},
		Skipped: walked.skipped,
	}
	snap.Branch, snap.Head = gitHead(root)
	snap.Tree = walked.tree
	if len(snap.Tree) > l.opts.MaxTreeEntries {
		snap.TreeOmitted = len(snap.Tree) - l.opts.MaxTreeEntries
		snap.Tree = snap.Tree[:l.opts.MaxTreeEntries]
	}

	redacted := 0
	for _, r := range read {
		if r.skip != "" {
			snap.Skipped = append(snap.Skipped, fmt.Sprintf("%s (%s)", r.path, r.skip))
			continue
		}
		remaining := l.opts.MaxTokens - snap.TotalTokens
		if remaining <= truncationReserve {
			snap.Skipped = append(snap.Skipped, r.path+" (token limit)")
			continue
		}

		result := l.scrubber.Scrub(r.content)
		content := result.Scrubbed
		if result.HasFindings() {
			redacted += result.Count()
			l.logger.Debug(ctx, "secrets redacted from file",
				zap.String("path", r.path),
				zap.Strings("rules", result.RuleIDs()))
		}

		f := File{Path: r.path, Content: content, Tokens: EstimateTokens(content)}
		if f.Tokens > l.opts.MaxFileTokens {
			f.Content = truncateToTokens(f.Content, l.opts.MaxFileTokens)
			f.Tokens = l.opts.MaxFileTokens
			f.Truncated = true
		}
		if f.Tokens > remaining {
			f.Content = truncateToTokens(f.Content, remaining)
			f.Tokens = remaining
			f.Truncated = true
		}
		snap.Files = append(snap.Files, f)
		snap.TotalTokens += f.Tokens
	}

	l.logger.Info(ctx, "repository context loaded",
		zap.String("root", root),
		zap.String("branch", snap.Branch),
		zap.Int("files", len(snap.Files)),
		zap.Int("tokens", snap.TotalTokens),
		zap.Int("skipped", len(snap.Skipped)),
		zap.Int("secrets_redacted", redacted))
	return snap, nil
}

// walk lists the visible files under root. Nested ignore files apply to
// their own subtree.
func (l *Loader) walk(ctx context.Context, root string) (*walkResult, error) {
	res := &walkResult{}
	ignored := ignore.NewMatcher()

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			rel = ""
		}

		if walkErr != nil {
			if rel == "" {
				return fmt.Errorf("%w: %v", ErrRepoUnreadable, walkErr)
			}
			l.logger.Debug(ctx, "skipping unreadable path", zap.String("path", rel), zap.Error(walkErr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if rel != "" && (skipDirs[d.Name()] || ignored.Match(rel, true) || l.exclude.Match(rel, true)) {
				return fs.SkipDir
			}
			patterns, err := l.parser.ParseDir(root, rel)
			if err != nil {
				l.logger.Debug(ctx, "unreadable ignore file", zap.String("dir", rel), zap.Error(err))
				return nil
			}
			ignored.Add(patterns...)
			return nil
		}

		if !d.Type().IsRegular() || ignored.Match(rel, false) {
			return nil
		}
		if secrets.IsDangerousFile(rel) {
			res.skipped = append(res.skipped, rel+" (sensitive)")
			return nil
		}
		if l.exclude.Match(rel, false) {
			return nil
		}

		res.tree = append(res.tree, rel)
		if binaryExtensions[strings.ToLower(path.Ext(rel))] {
			return nil
		}
		if l.include.Match(rel, false) {
			res.candidates = append(res.candidates, rel)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRepoUnreadable) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrRepoUnreadable, err)
	}
	return res, nil
}

// loadOrder puts auto-detected docs first, then include matches in walk
// order, without duplicates.
func (l *Loader) loadOrder(root string, candidates []string) []string {
	seen := make(map[string]bool, len(candidates)+len(l.opts.AutoDetect))
	order := make([]string, 0, len(candidates)+len(l.opts.AutoDetect))

	for _, name := range l.opts.AutoDetect {
		rel := filepath.ToSlash(filepath.Clean(name))
		if seen[rel] || strings.HasPrefix(rel, "../") || filepath.IsAbs(name) {
			continue
		}
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if secrets.IsDangerousFile(rel) || l.exclude.Match(rel, false) {
			continue
		}
		seen[rel] = true
		order = append(order, rel)
	}
	for _, rel := range candidates {
		if !seen[rel] {
			seen[rel] = true
			order = append(order, rel)
		}
	}
	return order
}

// readAll reads files in parallel. Results keep the order of paths.
func (l *Loader) readAll(ctx context.Context, root string, paths []string) ([]readResult, error) {
	results := make([]readResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Concurrency)
	for i, rel := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = readText(filepath.Join(root, filepath.FromSlash(rel)), rel)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// readText reads a UTF-8 text file. Failures are reported through skip.
func readText(abs, rel string) readResult {
	res := readResult{path: rel}

	f, err := os.Open(abs)
	if err != nil {
		res.skip = "unreadable"
		return res
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxReadBytes+1))
	if err != nil {
		res.skip = "unreadable"
		return res
	}
	if len(data) > maxReadBytes {
		data = data[:maxReadBytes]
		for i := 0; i < utf8.UTFMax && len(data) > 0 && !utf8.Valid(data); i++ {
			data = data[:len(data)-1]
		}
	}
	if bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data) {
		res.skip = "binary"
		return res
	}
	res.content = string(data)
	return res
}
